package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr     = "[::]:2747"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	DefaultRequestsPerMinute = 20
	DefaultBypassHeader      = "X-Exempt-RateLimit"

	DefaultNormalTTL     = 720 * time.Hour
	DefaultRestrictedTTL = 10 * time.Minute

	DefaultMfaIssuer         = "authmesh"
	DefaultRecoveryCodeCount = 12
	DefaultMfaSkew           = 1
	DefaultMaxFailures       = 5
	DefaultLockoutBase       = time.Minute
	DefaultLockoutMax        = 15 * time.Minute

	DefaultPasswordMemoryKiB   = 64 * 1024
	DefaultPasswordIterations  = 3
	DefaultPasswordParallelism = 2

	DefaultBackend          = "badger"
	DefaultDataDir          = "/var/lib/authmesh-server/data"
	DefaultBadgerGCInterval = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
			},
		},
		RateLimit: RateLimitSection{
			RequestsPerMinute: DefaultRequestsPerMinute,
			Header:            DefaultBypassHeader,
		},
		Session: SessionSection{
			NormalTTL:     DefaultNormalTTL,
			RestrictedTTL: DefaultRestrictedTTL,
		},
		Mfa: MfaSection{
			Issuer:            DefaultMfaIssuer,
			RecoveryCodeCount: DefaultRecoveryCodeCount,
			Skew:              DefaultMfaSkew,
			MaxFailures:       DefaultMaxFailures,
			LockoutBase:       DefaultLockoutBase,
			LockoutMax:        DefaultLockoutMax,
		},
		Password: PasswordSection{
			MemoryKiB:   DefaultPasswordMemoryKiB,
			Iterations:  DefaultPasswordIterations,
			Parallelism: DefaultPasswordParallelism,
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
			DataDir: DefaultDataDir,
			Badger: BadgerSection{
				GCInterval: DefaultBadgerGCInterval,
			},
		},
		Log: LogSection{
			Enabled: true,
			Level:   DefaultLogLevel,
			Format:  DefaultLogFormat,
		},
		Metrics: MetricsSection{
			Enabled: true,
		},
	}
}
