package main

import (
	"context"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/authmesh-go/internal/infra/confloader"
	"github.com/yndnr/authmesh-go/internal/infra/shutdown"
	"github.com/yndnr/authmesh-go/internal/server/config"
	"github.com/yndnr/authmesh-go/internal/server/httpserver"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
	"github.com/yndnr/authmesh-go/internal/telemetry/metric"
)

const (
	shutdownTimeout = 30 * time.Second
	sweepInterval   = time.Minute
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP server (default)",
		Flags:  configFlags(),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	defer memguard.Purge()

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting authmesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"go", info.GoVersion)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	store, err := openStorage(ctx, cfg, slogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	var (
		metrics  *metric.Registry
		recorder service.Recorder
		observer httpserver.Observer
	)
	if cfg.Metrics.Enabled {
		metrics = metric.NewRegistry()
		recorder, observer = metrics, metrics
		if bs, ok := store.(*storage.BadgerStore); ok {
			bs.RegisterMetrics(metrics.Registerer())
		}
	}

	comps, err := buildServices(cfg, store, recorder, slogger)
	if err != nil {
		_ = store.Close()
		return err
	}

	routerCfg := httpserver.RouterConfig{
		Auth:              comps.auth,
		Logger:            log,
		Observer:          observer,
		RateLimit:         rateLimitConfig(cfg),
		TrustProxyHeaders: cfg.Server.HTTP.TrustProxyHeaders,
	}
	if metrics != nil {
		metrics.Registerer().MustRegister(metric.NewCollector(comps.attempts.Tracked))
		routerCfg.MetricsHandler = metrics.Handler()
	}
	router := httpserver.NewRouter(routerCfg)

	go router.Limiter().Run(ctx, sweepInterval)
	go sweepAttempts(ctx, comps, log)

	srv := httpserver.New(cfg.Server.HTTP, router, slogger)

	sh := shutdown.NewHandler(shutdownTimeout, slogger)
	sh.OnShutdown("storage", func(context.Context) error {
		return store.Close()
	})
	sh.OnShutdown("background", func(context.Context) error {
		cancel()
		return nil
	})
	sh.OnShutdown("http", srv.Shutdown)

	if path, ok := lookupFlag(c, "config"); ok && path != "" {
		watcher, err := watchConfig(c, path, router, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			sh.OnShutdown("config-watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			"addr", cfg.Server.HTTP.Addr,
			"tls", cfg.Server.HTTP.TLSCertFile != "",
			"backend", cfg.Storage.Backend)
		errCh <- srv.Start()
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- sh.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", "error", err)
			_ = store.Close()
			return err
		}
		// closed by the shutdown handler; let the remaining hooks finish
		if err := <-waitErr; err != nil {
			return err
		}
	case err := <-waitErr:
		if err != nil {
			return err
		}
	}

	log.Info("server stopped")
	return nil
}

func sweepAttempts(ctx context.Context, comps *components, log logger.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := comps.attempts.Sweep(); n > 0 {
				log.Debug("swept mfa failure records", "removed", n)
			}
		}
	}
}

// watchConfig reloads the file on change and applies the settings that can
// change without a restart: log level and rate limiting. Anything else
// needs a restart.
func watchConfig(c *cli.Context, path string, router *httpserver.Router, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog()))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		_ = watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		cfg, err := loadConfig(c)
		if err != nil {
			log.Error("config reload rejected", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		router.UpdateRateLimit(rateLimitConfig(cfg))
		log.Info("configuration reloaded",
			"log_level", cfg.Log.Level,
			"requests_per_minute", cfg.RateLimit.RequestsPerMinute)
	})
	watcher.StartAsync()
	return watcher, nil
}

func rateLimitConfig(cfg *config.ServerConfig) httpserver.RateLimitConfig {
	return httpserver.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BypassHeader:      cfg.RateLimit.Header,
		BypassSecret:      cfg.RateLimit.Secret,
	}
}
