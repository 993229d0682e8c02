package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/authmesh-go/internal/infra/certreload"
	"github.com/yndnr/authmesh-go/internal/server/config"
)

const readHeaderTimeout = 5 * time.Second

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	certFile   string
	keyFile    string
	logger     *slog.Logger

	mu sync.Mutex
	// stopReload ends the certificate watcher started by Serve.
	stopReload context.CancelFunc
}

// New creates a new HTTP server for cfg.
func New(cfg config.HTTPConfig, h http.Handler, l *slog.Logger) *Server {
	if l == nil {
		l = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			ErrorLog:          slog.NewLogLogger(l.Handler(), slog.LevelWarn),
		},
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
		logger:   l.With("component", "http_server"),
	}
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln, with TLS when a certificate is configured. The
// certificate is reloaded when its files change.
func (s *Server) Serve(ln net.Listener) error {
	var err error
	if s.certFile != "" {
		if err := s.startReloader(); err != nil {
			_ = ln.Close()
			return err
		}
		s.logger.Info("https server listening", "addr", ln.Addr().String())
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) startReloader() error {
	reloader, err := certreload.New(s.certFile, s.keyFile, certreload.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("httpserver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.stopReload = cancel
	s.mu.Unlock()
	go func() {
		if err := reloader.Run(ctx); err != nil {
			s.logger.Warn("certificate hot reload disabled", "error", err)
		}
	}()

	s.httpServer.TLSConfig = reloader.TLSConfig()
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	s.mu.Lock()
	if s.stopReload != nil {
		s.stopReload()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
