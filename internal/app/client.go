package app

import (
	"fmt"

	"github.com/Adda-Baaj/certless/internal/config"
	"github.com/Adda-Baaj/certless/pkg/catalog"
	"github.com/Adda-Baaj/certless/pkg/httpclient"
	"github.com/Adda-Baaj/certless/pkg/sslcontext"
	"github.com/Adda-Baaj/certless/pkg/version"
)

// SSLOptions maps configuration onto the TLS identity loader.
func SSLOptions(cfg *config.Config) sslcontext.Options {
	return sslcontext.Options{
		Mode:         cfg.SSLMode,
		CertFile:     cfg.SSLCert,
		KeyFile:      cfg.SSLKey,
		CAFile:       cfg.SSLCACert,
		CipherSuites: cfg.SSLCipherSuites,
		TrustDomain:  cfg.SPIFFETrustDomain,
		ServerID:     cfg.SPIFFEServerID,
	}
}

// NewCatalogClient loads the TLS identity and builds a catalog client bound
// to the configured server. Callers own the returned pool and must Close it.
func NewCatalogClient(cfg *config.Config) (*catalog.Client, *httpclient.RestyPool, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config must not be nil")
	}

	ssl, err := sslcontext.Load(SSLOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("load ssl context: %w", err)
	}

	pool, err := httpclient.NewRestyPool(httpclient.PoolOptions{
		Server:  cfg.Server,
		Port:    cfg.ServerPort,
		Timeout: cfg.RequestTimeout,
		Caching: cfg.ConnectionCaching,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init connection pool: %w", err)
	}

	client, err := catalog.NewClient(pool, ssl, version.Static(cfg.PuppetVersion))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("init catalog client: %w", err)
	}
	return client, pool, nil
}
