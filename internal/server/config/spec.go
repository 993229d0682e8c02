package config

import "time"

// ServerConfig is the root configuration for authmesh-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	RateLimit RateLimitSection `koanf:"rate_limit"`
	Session   SessionSection   `koanf:"session"`
	Mfa       MfaSection       `koanf:"mfa"`
	Password  PasswordSection  `koanf:"password"`
	Storage   StorageSection   `koanf:"storage"`
	Security  SecuritySection  `koanf:"security"`
	Log       LogSection       `koanf:"log"`
	Metrics   MetricsSection   `koanf:"metrics"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	TLSCertFile  string        `koanf:"tls_cert_file"`
	TLSKeyFile   string        `koanf:"tls_key_file"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

// RateLimitSection configures the per-IP request limiter.
type RateLimitSection struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// Secret lets callers presenting it in Header skip the limiter.
	// Empty disables the bypass.
	Secret string `koanf:"secret"`
	Header string `koanf:"header"`
}

// SessionSection configures session lifetimes.
type SessionSection struct {
	NormalTTL     time.Duration `koanf:"normal_ttl"`
	RestrictedTTL time.Duration `koanf:"restricted_ttl"`
}

// MfaSection configures TOTP and the failure lockout.
type MfaSection struct {
	Issuer            string        `koanf:"issuer"`
	RecoveryCodeCount int           `koanf:"recovery_code_count"`
	Skew              uint          `koanf:"skew"`
	MaxFailures       int           `koanf:"max_failures"`
	LockoutBase       time.Duration `koanf:"lockout_base"`
	LockoutMax        time.Duration `koanf:"lockout_max"`
}

// PasswordSection configures Argon2id cost.
type PasswordSection struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
}

// StorageSection configures the storage backend.
type StorageSection struct {
	// Backend is one of memory, badger, bolt or postgres.
	Backend     string        `koanf:"backend"`
	DataDir     string        `koanf:"data_dir"`
	PostgresDSN string        `koanf:"postgres_dsn"`
	Badger      BadgerSection `koanf:"badger"`
}

// BadgerSection tunes the Badger engine.
type BadgerSection struct {
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey seals TOTP seeds at rest. Empty stores them unsealed.
	EncryptionKey string `koanf:"encryption_key"`
}

// LogSection configures logging.
type LogSection struct {
	Enabled bool   `koanf:"enabled"`
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
}

// MetricsSection configures the /metrics endpoint.
type MetricsSection struct {
	Enabled bool `koanf:"enabled"`
}
