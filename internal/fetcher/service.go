package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Adda-Baaj/certless/internal/logger"
	"github.com/Adda-Baaj/certless/pkg/nodes"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Service coordinates catalog fetches across multiple nodes.
type Service struct {
	processor   *NodeProcessor
	log         logger.Logger
	concurrency int
	newJobID    func() string
}

// NewService wires a fetch service. concurrency bounds the number of
// in-flight catalog requests per pass.
func NewService(f CatalogFetcher, pub EventPublisher, log logger.Logger, deduper Deduper, concurrency int) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	var proc *NodeProcessor
	if f != nil {
		proc = NewNodeProcessor(f, pub, log, deduper)
	}
	return &Service{
		processor:   proc,
		log:         log,
		concurrency: concurrency,
		newJobID:    uuid.NewString,
	}
}

// Run executes one fetch pass for all nodes. Every node is attempted; the
// returned error joins the per-node failures.
func (s *Service) Run(ctx context.Context, list []nodes.Node) error {
	if s == nil || s.processor == nil {
		return fmt.Errorf("fetch service is not initialized")
	}
	if len(list) == 0 {
		return fmt.Errorf("no nodes configured for fetching")
	}

	errs := s.runAll(ctx, list)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) runAll(ctx context.Context, list []nodes.Node) []error {
	jobID := s.newJobID()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, n := range list {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.processor.Process(ctx, n, jobID); err != nil {
				s.log.ErrorObj("node fetch failed", "node_error", map[string]any{
					"certname": n.Certname,
					"job_id":   jobID,
					"error":    err.Error(),
				})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.InfoObj("fetch pass finished", "fetch_pass", map[string]any{
		"job_id":      jobID,
		"nodes_count": len(list),
		"failures":    len(errs),
	})
	return errs
}
