package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Adda-Baaj/certless/internal/config"
	"github.com/Adda-Baaj/certless/internal/fetcher"
	"github.com/Adda-Baaj/certless/internal/logger"
	"github.com/Adda-Baaj/certless/internal/storage"
	"github.com/Adda-Baaj/certless/pkg/httpclient"
	"github.com/Adda-Baaj/certless/pkg/nodes"
	"github.com/Adda-Baaj/certless/pkg/publishers"
)

// Agent is the certless agent runtime. It owns the fetch loop, the
// connection pool, the publishers and the catalog store.
type Agent struct {
	cfg           *config.Config
	nodeReg       *nodes.Registry
	pool          *httpclient.RestyPool
	fanout        *publishers.Fanout
	fetchService  *fetcher.Service
	fetchInterval time.Duration
	log           logger.Logger
	store         storage.Store
}

// NewAgent builds an agent runtime from config files.
func NewAgent(ctx context.Context, cfg *config.Config, log logger.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	nodeReg, err := nodes.LoadRegistry(cfg.NodesFile, cfg.PuppetVersion)
	if err != nil {
		return nil, fmt.Errorf("load nodes registry: %w", err)
	}
	nodeList := nodeReg.All()
	certnames := make([]string, 0, len(nodeList))
	for _, n := range nodeList {
		certnames = append(certnames, n.Certname)
	}
	log.InfoObj("nodes registry loaded", "nodes_meta", map[string]any{
		"count":     len(certnames),
		"certnames": certnames,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}

	client, pool, err := NewCatalogClient(cfg)
	if err != nil {
		return nil, err
	}
	log.InfoObj("catalog client ready", "client_meta", map[string]any{
		"server":   pool.BaseURL(),
		"ssl_mode": cfg.SSLMode,
		"caching":  cfg.ConnectionCaching,
	})

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	storeOpts := storage.Options{
		CatalogTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		pool.Close()
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"catalog_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return &Agent{
		cfg:           cfg,
		nodeReg:       nodeReg,
		pool:          pool,
		fanout:        fanout,
		fetchService:  fetcher.NewService(client, fanout, log, store, cfg.FetchConcurrency),
		fetchInterval: cfg.FetchInterval,
		log:           log,
		store:         store,
	}, nil
}

// Run starts the fetch loop until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a == nil || a.fetchService == nil {
		return fmt.Errorf("agent is not initialized")
	}
	defer a.shutdown()

	enabled := a.nodeReg.Enabled()
	if len(enabled) == 0 {
		a.log.WarnObj("no enabled nodes; agent idle", "nodes_file", a.cfg.NodesFile)
		<-ctx.Done()
		return ctx.Err()
	}

	a.log.InfoObj("agent loop starting", "agent_state", map[string]any{
		"nodes_count":      len(enabled),
		"publishers_count": a.fanout.Size(),
		"fetch_interval":   a.fetchInterval.String(),
	})

	if err := a.runOnce(ctx, enabled); err != nil {
		a.log.ErrorObj("initial fetch failed", "error", err)
	}

	ticker := time.NewTicker(a.fetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.InfoObj("agent loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := a.runOnce(ctx, enabled); err != nil {
				a.log.ErrorObj("scheduled fetch failed", "error", err)
			}
		}
	}
}

// runOnce performs a single fetch pass across all enabled nodes.
func (a *Agent) runOnce(ctx context.Context, list []nodes.Node) error {
	start := time.Now()
	a.log.InfoObj("fetch started", "fetch_meta", map[string]any{
		"nodes_count": len(list),
		"started_at":  start.UTC(),
	})
	if err := a.fetchService.Run(ctx, list); err != nil {
		return err
	}
	a.log.InfoObj("fetch completed", "fetch_meta", map[string]any{
		"nodes_count": len(list),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	return nil
}

// shutdown releases the store, publishers and pooled connections, logging
// any errors encountered.
func (a *Agent) shutdown() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.ErrorObj("storage close failed", "error", err)
		}
	}
	if err := a.fanout.Close(); err != nil {
		a.log.ErrorObj("publishers close failed", "error", err)
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
