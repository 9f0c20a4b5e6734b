package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adda-Baaj/certless/internal/logger"
	"github.com/Adda-Baaj/certless/pkg/apierr"
	"github.com/Adda-Baaj/certless/pkg/catalog"
	"github.com/Adda-Baaj/certless/pkg/nodes"
	"github.com/Adda-Baaj/certless/pkg/publishers"
	"github.com/google/uuid"
)

// NodeProcessor fetches the catalog of a single node and publishes the outcome.
type NodeProcessor struct {
	fetcher   CatalogFetcher
	publisher EventPublisher
	deduper   Deduper
	log       logger.Logger
	newID     func() string
}

// NewNodeProcessor wires a processor. publisher, log and deduper may be nil.
func NewNodeProcessor(f CatalogFetcher, pub EventPublisher, log logger.Logger, deduper Deduper) *NodeProcessor {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &NodeProcessor{
		fetcher:   f,
		publisher: pub,
		deduper:   deduper,
		log:       log,
		newID:     uuid.NewString,
	}
}

// Process fetches the catalog for n within the pass identified by jobID.
// Failed fetches are published as catalog_failed events and returned as
// errors. A catalog whose digest matches the one last published for the node
// is skipped. A fetch aborted by ctx is returned without a failure event.
func (p *NodeProcessor) Process(ctx context.Context, n nodes.Node, jobID string) error {
	req := catalog.Request{
		Key:            n.Certname,
		Environment:    n.Environment,
		TransportFacts: n.TransportFacts,
		TrustedFacts:   n.TrustedFacts,
		FailOn404:      n.FailOn404Value(),
		TransactionID:  p.newID(),
		JobID:          jobID,
	}

	res, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.log.DebugObj("catalog fetch cancelled", "catalog_meta", map[string]any{
				"certname":       n.Certname,
				"transaction_id": req.TransactionID,
			})
			return errors.Join(ctxErr, fmt.Errorf("fetch catalog for %s: %w", n.Certname, err))
		}
		apiErr := apierr.FromError(err)
		return errors.Join(
			fmt.Errorf("fetch catalog for %s: %w", n.Certname, err),
			p.publish(ctx, publishers.NewFailedEvent(req, apiErr)),
		)
	}

	if !res.OK() {
		apiErr := res.Failure.Err()
		p.log.WarnObj("catalog request failed", "catalog_failure", map[string]any{
			"certname":       n.Certname,
			"transaction_id": req.TransactionID,
			"status_code":    res.Failure.StatusCode,
		})
		return errors.Join(
			fmt.Errorf("fetch catalog for %s: %w", n.Certname, apiErr),
			p.publish(ctx, publishers.NewFailedEvent(req, apiErr)),
		)
	}

	digest := res.Catalog.Digest()
	if p.unchanged(n.Certname, digest) {
		p.log.DebugObj("catalog unchanged", "catalog_meta", map[string]any{
			"certname": n.Certname,
			"digest":   digest,
		})
		return nil
	}

	if err := p.publish(ctx, publishers.NewFetchedEvent(req, res.Catalog, digest)); err != nil {
		return err
	}
	if p.deduper != nil {
		if err := p.deduper.RecordDigest(n.Certname, digest); err != nil {
			p.log.WarnObj("catalog digest not recorded", "dedupe_error", map[string]any{
				"certname": n.Certname,
				"error":    err.Error(),
			})
		}
	}

	p.log.InfoObj("catalog fetched", "catalog_meta", map[string]any{
		"certname":       n.Certname,
		"environment":    n.Environment,
		"catalog_uuid":   res.Catalog.CatalogUUID,
		"version":        res.Catalog.Version,
		"resources":      len(res.Catalog.Resources),
		"transaction_id": req.TransactionID,
	})
	return nil
}

// unchanged treats lookup errors as a change so the catalog is published again.
func (p *NodeProcessor) unchanged(certname, digest string) bool {
	if p.deduper == nil {
		return false
	}
	last, found, err := p.deduper.LastDigest(certname)
	if err != nil {
		p.log.WarnObj("dedupe lookup failed", "dedupe_error", map[string]any{
			"certname": certname,
			"error":    err.Error(),
		})
		return false
	}
	return found && last == digest
}

func (p *NodeProcessor) publish(ctx context.Context, evt publishers.Event) error {
	if p.publisher == nil {
		return nil
	}
	if _, err := p.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish %s for %s: %w", evt.Type, evt.Certname, err)
	}
	return nil
}
