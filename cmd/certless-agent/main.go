package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/certless/internal/app"
	"github.com/Adda-Baaj/certless/internal/config"
	"github.com/Adda-Baaj/certless/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "certless-agent start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	log := logger.Default()
	log.InfoObj("certless-agent starting", "config", map[string]any{
		"server":            cfg.Server,
		"server_port":       cfg.ServerPort,
		"ssl_mode":          cfg.SSLMode,
		"puppet_version":    cfg.PuppetVersion,
		"nodes_file":        cfg.NodesFile,
		"publishers_file":   cfg.PublishersFile,
		"fetch_interval":    cfg.FetchInterval.String(),
		"fetch_concurrency": cfg.FetchConcurrency,
		"storage_type":      cfg.StorageType,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent, err := app.NewAgent(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize agent", "error", err)
		return err
	}

	if err := agent.Run(ctx); err != nil {
		return fmt.Errorf("agent run: %w", err)
	}

	return nil
}
