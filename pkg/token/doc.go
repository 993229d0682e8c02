// Package token generates and hashes prefixed opaque secrets.
//
// A Format fixes the plaintext prefix, the random body size and the prefix
// of the stored hash. Bodies are Base64 RawURL encoded bytes from
// crypto/rand; hashes are hex SHA-256 and compared in constant time.
//
// Only hashes are meant to be persisted.
package token
