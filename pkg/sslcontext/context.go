package sslcontext

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spiffe/go-spiffe/v2/bundle/x509bundle"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
)

// Package sslcontext builds the verified client TLS settings used to reach
// the catalog service.

const (
	// ModePEM trusts a CA bundle and presents a client certificate from PEM files.
	ModePEM = "pem"
	// ModeSPIFFE presents an X.509 SVID and verifies the server against a SPIFFE bundle.
	ModeSPIFFE = "spiffe"
)

// Options describes where the client identity and trust roots live.
type Options struct {
	Mode         string
	CertFile     string
	KeyFile      string
	CAFile       string
	CipherSuites []string

	// SPIFFE mode only. ServerID, when set, pins the exact server identity;
	// otherwise any member of TrustDomain is accepted.
	TrustDomain string
	ServerID    string
}

// Context is an immutable, verified client TLS configuration.
type Context struct {
	mode string
	cfg  *tls.Config
}

// Load builds a Context from files on disk.
func Load(opts Options) (*Context, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = ModePEM
	}

	suites, err := cipherSuiteIDs(opts.CipherSuites)
	if err != nil {
		return nil, err
	}

	var cfg *tls.Config
	switch mode {
	case ModePEM:
		cfg, err = loadPEM(opts)
	case ModeSPIFFE:
		cfg, err = loadSPIFFE(opts)
	default:
		return nil, fmt.Errorf("unsupported ssl mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	if len(suites) > 0 {
		cfg.CipherSuites = suites
	}
	return &Context{mode: mode, cfg: cfg}, nil
}

// FromTLSConfig wraps an existing configuration. Configurations that skip
// peer verification without a replacement verifier are rejected.
func FromTLSConfig(cfg *tls.Config) (*Context, error) {
	if cfg == nil {
		return nil, errors.New("tls config must not be nil")
	}
	if cfg.InsecureSkipVerify && cfg.VerifyPeerCertificate == nil {
		return nil, errors.New("tls config must verify the server certificate")
	}
	return &Context{mode: "custom", cfg: cfg.Clone()}, nil
}

// Mode reports how the context was built.
func (c *Context) Mode() string { return c.mode }

// TLSConfig returns a copy of the client configuration.
func (c *Context) TLSConfig() *tls.Config { return c.cfg.Clone() }

func loadPEM(opts Options) (*tls.Config, error) {
	if strings.TrimSpace(opts.CAFile) == "" {
		return nil, errors.New("ssl ca cert is required")
	}
	caPEM, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ssl ca cert: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("ssl ca cert %s contains no certificates", opts.CAFile)
	}

	if strings.TrimSpace(opts.CertFile) == "" || strings.TrimSpace(opts.KeyFile) == "" {
		return nil, errors.New("ssl cert and ssl key are required")
	}
	pair, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client key pair: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		RootCAs:      roots,
		Certificates: []tls.Certificate{pair},
	}, nil
}

func loadSPIFFE(opts Options) (*tls.Config, error) {
	td, err := spiffeid.TrustDomainFromString(opts.TrustDomain)
	if err != nil {
		return nil, fmt.Errorf("invalid spiffe trust domain: %w", err)
	}

	authorizer := tlsconfig.AuthorizeMemberOf(td)
	if id := strings.TrimSpace(opts.ServerID); id != "" {
		serverID, err := spiffeid.FromString(id)
		if err != nil {
			return nil, fmt.Errorf("invalid spiffe server id: %w", err)
		}
		authorizer = tlsconfig.AuthorizeID(serverID)
	}

	svid, err := x509svid.Load(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load x509 svid: %w", err)
	}
	bundle, err := x509bundle.Load(td, opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("load x509 bundle: %w", err)
	}

	cfg := tlsconfig.MTLSClientConfig(svid, bundle, authorizer)
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg, nil
}

// cipherSuiteIDs maps IANA suite names to ids. Only suites Go considers
// secure are accepted.
func cipherSuiteIDs(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
