package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Adda-Baaj/certless/internal/app"
	"github.com/Adda-Baaj/certless/internal/config"
	"github.com/Adda-Baaj/certless/pkg/apierr"
	"github.com/Adda-Baaj/certless/pkg/catalog"
	"github.com/Adda-Baaj/certless/pkg/nodes"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type catalogFetcher interface {
	Fetch(ctx context.Context, req catalog.Request) (catalog.Result, error)
}

// newFetcher is swapped in tests.
var newFetcher = func(cfg *config.Config) (catalogFetcher, func(), error) {
	client, pool, err := app.NewCatalogClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, pool.Close, nil
}

type fetchOptions struct {
	environment    string
	trustedFacts   string
	transportFacts string
	transactionID  string
	jobID          string
	failOn404      bool
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <certname>",
		Short: "Fetch the compiled catalog for a node",
		Long: `Fetch the compiled catalog for a node and print it as JSON.

Trusted and transport facts default to those of a remotely authenticated
node; --trusted-facts and --transport-facts read YAML or JSON objects whose
keys override the defaults. Failures are printed to stderr as a structured
error and exit with status 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.environment, "environment", "e", "production", "environment to compile the catalog in")
	cmd.Flags().StringVar(&opts.trustedFacts, "trusted-facts", "", "YAML/JSON file with trusted facts")
	cmd.Flags().StringVar(&opts.transportFacts, "transport-facts", "", "YAML/JSON file with transport facts")
	cmd.Flags().StringVar(&opts.transactionID, "transaction-id", "", "transaction uuid (generated when empty)")
	cmd.Flags().StringVar(&opts.jobID, "job-id", "", "orchestrator job id")
	cmd.Flags().BoolVar(&opts.failOn404, "fail-on-404", true, "ask the server to fail when the node is unknown")
	return cmd
}

func runFetch(cmd *cobra.Command, certname string, opts *fetchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	trusted, err := readFacts(opts.trustedFacts)
	if err != nil {
		return fmt.Errorf("trusted facts: %w", err)
	}
	transport, err := readFacts(opts.transportFacts)
	if err != nil {
		return fmt.Errorf("transport facts: %w", err)
	}

	failOn404 := opts.failOn404
	reg, err := nodes.NewRegistry([]nodes.Node{{
		Certname:       certname,
		Environment:    opts.environment,
		FailOn404:      &failOn404,
		TrustedFacts:   trusted,
		TransportFacts: transport,
	}}, cfg.PuppetVersion)
	if err != nil {
		return err
	}
	n := reg.All()[0]

	txID := strings.TrimSpace(opts.transactionID)
	if txID == "" {
		txID = uuid.NewString()
	}
	req := catalog.Request{
		Key:            n.Certname,
		Environment:    n.Environment,
		TransportFacts: n.TransportFacts,
		TrustedFacts:   n.TrustedFacts,
		FailOn404:      n.FailOn404Value(),
		TransactionID:  txID,
		JobID:          strings.TrimSpace(opts.jobID),
	}

	fetcher, release, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	defer release()

	res, err := fetcher.Fetch(cmd.Context(), req)
	if err != nil {
		return reportError(cmd, apierr.FromError(err))
	}
	if !res.OK() {
		return reportError(cmd, res.Failure.Err())
	}

	out, err := json.MarshalIndent(res.Catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func reportError(cmd *cobra.Command, e *apierr.Error) error {
	out, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), string(out))
	return errReported
}

// readFacts loads a facts object. YAML is a superset of JSON, so one decoder
// handles both.
func readFacts(path string) (map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var facts map[string]any
	if err := yaml.Unmarshal(raw, &facts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if facts == nil {
		return nil, fmt.Errorf("%s does not contain a facts object", path)
	}
	return facts, nil
}
