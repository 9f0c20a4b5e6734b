package fetcher

import (
	"context"

	"github.com/Adda-Baaj/certless/pkg/catalog"
	"github.com/Adda-Baaj/certless/pkg/publishers"
)

// CatalogFetcher retrieves a compiled catalog for one node.
type CatalogFetcher interface {
	Fetch(ctx context.Context, req catalog.Request) (catalog.Result, error)
}

// EventPublisher publishes catalog events downstream and reports how many
// sinks accepted the event.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deduper remembers the digest of the catalog last published for each node.
type Deduper interface {
	LastDigest(certname string) (string, bool, error)
	RecordDigest(certname, digest string) error
}
