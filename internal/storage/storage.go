package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage remembers the last catalog digest published for each node.

// Store keeps one digest per certname. A node's catalog is only suppressed
// while its digest matches the one recorded last.
type Store interface {
	Close() error
	LastDigest(certname string) (string, bool, error)
	RecordDigest(certname, digest string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	CatalogTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultCatalogTTL      = 7 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openDigestDB(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = defaultCatalogTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                            { return nil }
func (noopStore) LastDigest(string) (string, bool, error) { return "", false, nil }
func (noopStore) RecordDigest(string, string) error       { return nil }
