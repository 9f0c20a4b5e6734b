package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// errReported marks failures already written to stderr.
var errReported = errors.New("failure reported")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Fetch compiled catalogs on behalf of certless nodes",
		Long: `catalogctl requests a compiled catalog from the catalog service over
mutual TLS for a node that holds no certificate of its own.

Connection settings (server, ssl_* files, puppet_version) are read from the
environment, configs/.env or the file named by CERTLESS_CONF.

Examples:
  catalogctl fetch web01.example.net
  catalogctl fetch web01.example.net --environment staging --trusted-facts trusted.yaml
  catalogctl headers`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newFetchCmd())
	root.AddCommand(newHeadersCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "catalogctl: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
