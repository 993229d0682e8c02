package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = 19

var (
	// ErrInvalidHash is returned for malformed or unsupported digests.
	ErrInvalidHash = errors.New("password: invalid argon2id hash")

	// ErrEmptyPassword is returned by Hash for an empty password.
	ErrEmptyPassword = errors.New("password: empty password")
)

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns interactive-login settings with parallelism
// clamped to [1..4].
func DefaultParams() Params {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads),
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks that params are usable.
func (p Params) Validate() error {
	switch {
	case p.MemoryKiB < 8:
		return fmt.Errorf("password: memory_kib must be >= 8")
	case p.Iterations == 0:
		return fmt.Errorf("password: iterations must be > 0")
	case p.Parallelism == 0:
		return fmt.Errorf("password: parallelism must be > 0")
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("password: salt length must be in [8, 64]")
	case p.KeyLength < 16 || p.KeyLength > 128:
		return fmt.Errorf("password: key length must be in [16, 128]")
	}
	return nil
}

// Hasher hashes and verifies passwords.
//
// A Hasher also carries a dummy digest computed with its own params, so
// callers can burn the same verification cost for unknown users.
type Hasher struct {
	params Params
	dummy  string
}

// New creates a Hasher.
func New(params Params) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	h := &Hasher{params: params}

	dummySecret := make([]byte, 32)
	if _, err := rand.Read(dummySecret); err != nil {
		return nil, fmt.Errorf("password: dummy secret: %w", err)
	}
	dummy, err := h.Hash(base64.RawStdEncoding.EncodeToString(dummySecret))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Params returns the configured cost parameters.
func (h *Hasher) Params() Params {
	return h.params
}

// DummyDigest returns a digest no password matches.
func (h *Hasher) DummyDigest() string {
	return h.dummy
}

// Hash returns the PHC-encoded Argon2id digest of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest.
// A malformed digest returns (false, ErrInvalidHash).
func (h *Hasher) Verify(password, digest string) (bool, error) {
	params, salt, expected, err := decode(digest)
	if err != nil {
		return false, err
	}
	if !h.withinBounds(params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt,
		params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// NeedsRehash reports whether digest was produced with different params.
func (h *Hasher) NeedsRehash(digest string) bool {
	params, _, _, err := decode(digest)
	if err != nil {
		return true
	}
	return params.MemoryKiB != h.params.MemoryKiB ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
}

func (h *Hasher) withinBounds(got Params) bool {
	limits := h.params
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if uint32(got.Parallelism) > uint32(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	return got.KeyLength >= 16 && got.KeyLength <= 128
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, nil
}
