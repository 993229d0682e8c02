package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is returned by NewFormat for unusable settings.
var ErrInvalidFormat = errors.New("token: invalid format")

// Format describes one kind of secret, e.g. "amtk_" + 43 chars.
type Format struct {
	prefix     string
	hashPrefix string
	size       int
	bodyLen    int
}

// NewFormat creates a Format whose plaintexts are prefix followed by size
// random bytes and whose hashes are hashPrefix followed by 64 hex chars.
func NewFormat(prefix, hashPrefix string, size int) (Format, error) {
	if size < 16 {
		return Format{}, fmt.Errorf("%w: body must be at least 16 bytes", ErrInvalidFormat)
	}
	if prefix == "" || hashPrefix == "" || prefix == hashPrefix {
		return Format{}, fmt.Errorf("%w: prefixes must be set and distinct", ErrInvalidFormat)
	}
	return Format{
		prefix:     prefix,
		hashPrefix: hashPrefix,
		size:       size,
		bodyLen:    base64.RawURLEncoding.EncodedLen(size),
	}, nil
}

// MustFormat is NewFormat that panics, for package-level formats.
func MustFormat(prefix, hashPrefix string, size int) Format {
	f, err := NewFormat(prefix, hashPrefix, size)
	if err != nil {
		panic(err)
	}
	return f
}

// Prefix returns the plaintext prefix.
func (f Format) Prefix() string { return f.prefix }

// Len is the plaintext length.
func (f Format) Len() int { return len(f.prefix) + f.bodyLen }

// HashLen is the stored hash length.
func (f Format) HashLen() int { return len(f.hashPrefix) + 2*sha256.Size }

// Generate returns a fresh plaintext and its hash.
func (f Format) Generate() (plaintext, hash string, err error) {
	buf := make([]byte, f.size)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("token: read random: %w", err)
	}
	plaintext = f.prefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, f.Hash(plaintext), nil
}

// Hash hashes a plaintext. The whole plaintext, prefix included, is hashed.
func (f Format) Hash(plaintext string) string {
	return Digest(f.hashPrefix, plaintext)
}

// Valid reports whether s has this format's plaintext shape.
func (f Format) Valid(s string) bool {
	if len(s) != f.Len() || !strings.HasPrefix(s, f.prefix) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s[len(f.prefix):])
	return err == nil
}

// ValidHash reports whether s has this format's hash shape.
func (f Format) ValidHash(s string) bool {
	if len(s) != f.HashLen() || !strings.HasPrefix(s, f.hashPrefix) {
		return false
	}
	_, err := hex.DecodeString(s[len(f.hashPrefix):])
	return err == nil
}

// Matches reports whether plaintext hashes to hash, in constant time.
func (f Format) Matches(plaintext, hash string) bool {
	return Equal(f.Hash(plaintext), hash)
}

// Mask returns a log-safe form: prefix plus the first and last three body
// characters.
func (f Format) Mask(s string) string {
	if len(s) <= len(f.prefix)+6 || !strings.HasPrefix(s, f.prefix) {
		return f.prefix + "***"
	}
	body := s[len(f.prefix):]
	return f.prefix + body[:3] + "..." + body[len(body)-3:]
}

// Digest returns prefix + hex(SHA-256(value)).
func Digest(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
