package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/storage/memory"
	"github.com/yndnr/authmesh-go/internal/storage/postgres"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	DataDir     string
	PostgresDSN string

	// BadgerGCInterval is the value-log GC period. Zero disables GC.
	BadgerGCInterval time.Duration
}

// Backend is an open store that owns resources.
type Backend interface {
	service.Store
	io.Closer
}

// Open opens the configured backend. Embedded backends create DataDir.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		logger.Warn("using in-memory storage; all sessions are lost on restart")
		return memory.New(), nil

	case BackendBadger:
		dir := filepath.Join(cfg.DataDir, "badger")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		bc := DefaultBadgerConfig(dir)
		bc.GCInterval = cfg.BadgerGCInterval
		return OpenBadger(bc, logger)

	case BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		return OpenBolt(DefaultBoltConfig(filepath.Join(cfg.DataDir, "authmesh.db")), logger)

	case BackendPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, logger)

	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
