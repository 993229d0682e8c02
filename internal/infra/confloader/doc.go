// Package confloader loads server configuration and watches it for changes.
//
// Sources are layered with koanf, highest priority first:
//
//  1. Overrides, normally command line flags (WithOverrides)
//  2. Environment variables (AUTHMESH_ prefix)
//  3. YAML configuration file
//  4. Values already present in the target struct
//
// Environment names are resolved against the target's koanf tags, so
// AUTHMESH_RATE_LIMIT_REQUESTS_PER_MINUTE maps to
// rate_limit.requests_per_minute rather than rate.limit.requests.per.minute.
package confloader
