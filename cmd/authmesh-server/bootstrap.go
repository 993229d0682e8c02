package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authmesh-go/internal/core/service"
	"github.com/yndnr/authmesh-go/internal/infra/confloader"
	"github.com/yndnr/authmesh-go/internal/server/config"
	"github.com/yndnr/authmesh-go/internal/storage"
	"github.com/yndnr/authmesh-go/internal/telemetry/logger"
	"github.com/yndnr/authmesh-go/pkg/crypto/adaptive"
	"github.com/yndnr/authmesh-go/pkg/crypto/password"
)

// mfaSealPurpose scopes the key derived for sealing TOTP seeds.
const mfaSealPurpose = "authmesh/mfa-seed/v1"

// loadConfig layers defaults, the config file, AUTHMESH_* variables and
// command line flags, then verifies the result.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()
	path, _ := lookupFlag(c, "config")

	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(flagOverrides(c)),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Enabled: cfg.Log.Enabled,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func openStorage(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (storage.Backend, error) {
	return storage.Open(ctx, storage.Config{
		Backend:          cfg.Storage.Backend,
		DataDir:          cfg.Storage.DataDir,
		PostgresDSN:      cfg.Storage.PostgresDSN,
		BadgerGCInterval: cfg.Storage.Badger.GCInterval,
	}, log)
}

// components are the services built from one configuration.
type components struct {
	auth     *service.AuthService
	attempts *service.AttemptLimiter
}

func newPasswordHasher(cfg *config.ServerConfig) (*password.Hasher, error) {
	params := password.DefaultParams()
	params.MemoryKiB = cfg.Password.MemoryKiB
	params.Iterations = cfg.Password.Iterations
	params.Parallelism = cfg.Password.Parallelism
	return password.New(params)
}

// newSealer returns nil when no encryption key is configured; seeds are
// then stored unsealed.
func newSealer(cfg *config.ServerConfig, log *slog.Logger) (service.SecretSealer, error) {
	if cfg.Security.EncryptionKey == "" {
		log.Warn("security.encryption_key is empty; TOTP seeds are stored unsealed")
		return nil, nil
	}
	box, err := adaptive.NewSecretBox([]byte(cfg.Security.EncryptionKey), mfaSealPurpose, "")
	if err != nil {
		return nil, fmt.Errorf("init secret box: %w", err)
	}
	log.Info("sealing TOTP seeds", "cipher", string(box.CipherType()))
	return box, nil
}

func buildServices(cfg *config.ServerConfig, store service.Store, rec service.Recorder, log *slog.Logger) (*components, error) {
	hasher, err := newPasswordHasher(cfg)
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}
	params := hasher.Params()
	log.Debug("password hashing",
		"memory_kib", params.MemoryKiB,
		"iterations", params.Iterations,
		"parallelism", params.Parallelism)
	sealer, err := newSealer(cfg, log)
	if err != nil {
		return nil, err
	}

	sessions := service.NewSessionManager(service.SessionConfig{
		NormalTTL:     cfg.Session.NormalTTL,
		RestrictedTTL: cfg.Session.RestrictedTTL,
	}, log)

	policy := service.DefaultAttemptPolicy()
	policy.MaxFailures = cfg.Mfa.MaxFailures
	policy.BaseLockout = cfg.Mfa.LockoutBase
	policy.MaxLockout = cfg.Mfa.LockoutMax
	attempts := service.NewAttemptLimiter(policy)

	mfaCfg := service.DefaultMfaConfig()
	mfaCfg.Issuer = cfg.Mfa.Issuer
	mfaCfg.RecoveryCodeCount = cfg.Mfa.RecoveryCodeCount
	mfaCfg.Skew = cfg.Mfa.Skew
	mfa := service.NewMfaManager(mfaCfg, sessions, sealer, attempts, log)

	opts := []service.AuthServiceOption{service.WithLogger(log)}
	if rec != nil {
		opts = append(opts, service.WithRecorder(rec))
	}
	auth := service.NewAuthService(store, service.NewCredentialVerifier(hasher, log), sessions, mfa, opts...)

	return &components{auth: auth, attempts: attempts}, nil
}
