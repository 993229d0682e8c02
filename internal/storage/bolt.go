package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/yndnr/authmesh-go/internal/core/service"
)

var boltBucket = []byte("authmesh")

// BoltConfig contains bbolt parameters.
type BoltConfig struct {
	// Path is the database file.
	Path string

	// Timeout bounds waiting for the file lock. Default: 1s
	Timeout time.Duration

	// NoSync skips fsync on commit (tests only).
	NoSync bool
}

// DefaultBoltConfig returns the default bbolt configuration.
func DefaultBoltConfig(path string) BoltConfig {
	return BoltConfig{
		Path:    path,
		Timeout: time.Second,
	}
}

// BoltStore implements service.Store on a single bbolt bucket. bbolt
// serializes writers, so Update never conflicts.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// OpenBolt opens (creating if needed) a bbolt-backed store.
func OpenBolt(cfg BoltConfig, logger *slog.Logger) (*BoltStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: open db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}

	logger = logger.With("component", "bolt")
	logger.Info("bolt store opened", "path", cfg.Path)
	return &BoltStore{db: db, logger: logger}, nil
}

// Update runs fn in the single bbolt write transaction.
func (s *BoltStore) Update(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&kvTx{txn: boltTxn{tx.Bucket(boltBucket)}, writable: true})
	})
}

// View runs fn in a read-only bbolt transaction.
func (s *BoltStore) View(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&kvTx{txn: boltTxn{tx.Bucket(boltBucket)}})
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("bolt: close db: %w", err)
	}
	s.logger.Info("bolt store closed")
	return nil
}

// boltTxn adapts a bbolt bucket to kvTxn. bbolt values are only valid for
// the life of the transaction, so reads are copied.
type boltTxn struct {
	b *bbolt.Bucket
}

func (t boltTxn) get(k []byte) ([]byte, error) {
	v := t.b.Get(k)
	if v == nil {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

func (t boltTxn) set(k, v []byte) error {
	return t.b.Put(k, v)
}

func (t boltTxn) delete(k []byte) error {
	return t.b.Delete(k)
}

func (t boltTxn) scan(prefix []byte, fn func(k, v []byte) error) error {
	c := t.b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(bytes.Clone(k), bytes.Clone(v)); err != nil {
			return err
		}
	}
	return nil
}
