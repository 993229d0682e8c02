package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/authmesh-go/internal/core/domain"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := verifySession(&cfg.Session); err != nil {
		return err
	}
	if err := verifyMfa(&cfg.Mfa); err != nil {
		return err
	}
	if err := verifyPassword(&cfg.Password); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr %q: %w", cfg.HTTP.Addr, err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file: %w", err)
		}
	}
	if cfg.HTTP.ReadTimeout < 0 || cfg.HTTP.WriteTimeout < 0 {
		return errors.New("server.http timeouts must not be negative")
	}
	return nil
}

func verifyRateLimit(cfg *RateLimitSection) error {
	if cfg.RequestsPerMinute <= 0 {
		return errors.New("rate_limit.requests_per_minute must be positive")
	}
	if cfg.Secret != "" && cfg.Header == "" {
		return errors.New("rate_limit.header is required when rate_limit.secret is set")
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if cfg.RestrictedTTL <= 0 {
		return errors.New("session.restricted_ttl must be positive")
	}
	if cfg.NormalTTL < 0 {
		return errors.New("session.normal_ttl must not be negative")
	}
	if cfg.NormalTTL > 0 && cfg.NormalTTL < cfg.RestrictedTTL {
		return errors.New("session.normal_ttl must not be shorter than session.restricted_ttl")
	}
	return nil
}

func verifyMfa(cfg *MfaSection) error {
	if cfg.Issuer == "" {
		return errors.New("mfa.issuer is required")
	}
	if cfg.RecoveryCodeCount <= 0 || cfg.RecoveryCodeCount > domain.MaxRecoveryCodeCount {
		return fmt.Errorf("mfa.recovery_code_count must be in [1..%d]", domain.MaxRecoveryCodeCount)
	}
	if cfg.MaxFailures <= 0 {
		return errors.New("mfa.max_failures must be positive")
	}
	if cfg.LockoutBase <= 0 || cfg.LockoutMax < cfg.LockoutBase {
		return errors.New("mfa.lockout_base must be positive and not exceed mfa.lockout_max")
	}
	return nil
}

func verifyPassword(cfg *PasswordSection) error {
	if cfg.MemoryKiB < 8 {
		return errors.New("password.memory_kib must be at least 8")
	}
	if cfg.Iterations == 0 || cfg.Parallelism == 0 {
		return errors.New("password.iterations and password.parallelism must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "badger", "bolt":
		if cfg.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for backend %q", cfg.Backend)
		}
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return errors.New("cannot create data directory: " + err.Error())
		}
		if cfg.Backend == "badger" && cfg.Badger.GCInterval < 0 {
			return errors.New("storage.badger.gc_interval must not be negative")
		}
		return nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for backend \"postgres\"")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, badger, bolt, postgres", cfg.Backend)
	}
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}
