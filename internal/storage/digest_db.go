package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var digestBucket = []byte("catalog_digests")

// A record is stored as an 8 byte big-endian expiry followed by the digest.
const expiryPrefix = 8

type digestDB struct {
	db       *bolt.DB
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	nextSweep time.Time
}

func openDigestDB(path string, opts Options) (*digestDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(digestBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create digest bucket: %w", err)
	}

	d := &digestDB{db: db, ttl: opts.CatalogTTL, interval: opts.CleanupInterval, now: time.Now}
	d.nextSweep = d.now().Add(d.interval)
	return d, nil
}

func (d *digestDB) Close() error {
	return d.db.Close()
}

// LastDigest returns the digest recorded for certname. Records past their
// expiry read as absent.
func (d *digestDB) LastDigest(certname string) (string, bool, error) {
	var (
		digest string
		found  bool
	)
	now := d.now()
	err := d.db.View(func(tx *bolt.Tx) error {
		rec := tx.Bucket(digestBucket).Get([]byte(certname))
		digest, found = decodeRecord(rec, now)
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("read digest for %s: %w", certname, err)
	}
	return digest, found, nil
}

// RecordDigest replaces the digest stored for certname and restarts its expiry.
func (d *digestDB) RecordDigest(certname, digest string) error {
	now := d.now()
	rec := make([]byte, expiryPrefix+len(digest))
	binary.BigEndian.PutUint64(rec, uint64(now.Add(d.ttl).Unix()))
	copy(rec[expiryPrefix:], digest)

	err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(digestBucket).Put([]byte(certname), rec)
	})
	if err != nil {
		return fmt.Errorf("record digest for %s: %w", certname, err)
	}
	return d.sweep(now)
}

// sweep drops expired records once per cleanup interval.
func (d *digestDB) sweep(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Before(d.nextSweep) {
		return nil
	}

	var stale [][]byte
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(digestBucket)
		err := b.ForEach(func(k, v []byte) error {
			if _, ok := decodeRecord(v, now); !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sweep expired digests: %w", err)
	}
	d.nextSweep = now.Add(d.interval)
	return nil
}

func decodeRecord(rec []byte, now time.Time) (string, bool) {
	if len(rec) <= expiryPrefix {
		return "", false
	}
	expiry := time.Unix(int64(binary.BigEndian.Uint64(rec[:expiryPrefix])), 0)
	if !expiry.After(now) {
		return "", false
	}
	return string(rec[expiryPrefix:]), true
}
