package storage

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func openTestDB(t *testing.T, opts Options) (*digestDB, *fakeClock) {
	t.Helper()
	d, err := openDigestDB(filepath.Join(t.TempDir(), "state", "catalogs.db"), normalizeOptions(opts))
	if err != nil {
		t.Fatalf("openDigestDB: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	d.now = clock.Now
	d.nextSweep = clock.t.Add(d.interval)
	return d, clock
}

func TestDigestDBKeepsLatestDigestPerNode(t *testing.T) {
	d, _ := openTestDB(t, Options{})

	if _, found, err := d.LastDigest("web01"); err != nil || found {
		t.Fatalf("expected no digest, found=%v err=%v", found, err)
	}

	for _, digest := range []string{"aaa", "bbb", "aaa"} {
		if err := d.RecordDigest("web01", digest); err != nil {
			t.Fatalf("RecordDigest(%s): %v", digest, err)
		}
		got, found, err := d.LastDigest("web01")
		if err != nil || !found || got != digest {
			t.Fatalf("LastDigest = %q found=%v err=%v, want %q", got, found, err, digest)
		}
	}

	if _, found, _ := d.LastDigest("web02"); found {
		t.Fatalf("digests must be tracked per node")
	}
}

func TestDigestDBExpiresRecords(t *testing.T) {
	d, clock := openTestDB(t, Options{CatalogTTL: time.Hour, CleanupInterval: 30 * time.Minute})

	if err := d.RecordDigest("web01", "aaa"); err != nil {
		t.Fatalf("RecordDigest: %v", err)
	}

	clock.t = clock.t.Add(2 * time.Hour)
	if _, found, _ := d.LastDigest("web01"); found {
		t.Fatalf("expired digest must read as absent")
	}

	// Writing another node triggers the sweep that removes the stale record.
	if err := d.RecordDigest("web02", "bbb"); err != nil {
		t.Fatalf("RecordDigest: %v", err)
	}
	var keys int
	err := d.db.View(func(tx *bolt.Tx) error {
		keys = tx.Bucket(digestBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if keys != 1 {
		t.Fatalf("expected the stale record to be swept, %d keys remain", keys)
	}
}

func TestDigestDBSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogs.db")
	first, err := NewStore("bbolt", path, Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := first.RecordDigest("web01", "aaa"); err != nil {
		t.Fatalf("RecordDigest: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewStore("bbolt", path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if got, found, err := second.LastDigest("web01"); err != nil || !found || got != "aaa" {
		t.Fatalf("LastDigest after reopen = %q found=%v err=%v", got, found, err)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.RecordDigest("web01", "aaa"); err != nil {
		t.Fatalf("noop store RecordDigest: %v", err)
	}
	if _, found, _ := store.LastDigest("web01"); found {
		t.Fatalf("noop store must never report a digest")
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	if _, err := NewStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := NewStore("bbolt", " ", Options{}); err == nil {
		t.Fatalf("expected error for missing bbolt path")
	}
}
