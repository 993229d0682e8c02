package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length every supported AEAD takes.
const KeySize = 32

var (
	// ErrUnknownCipher is returned for an unsupported CipherType or tag.
	ErrUnknownCipher = errors.New("adaptive: unknown cipher")

	// ErrCiphertextTooShort is returned when a sealed payload cannot hold
	// a tag byte and a nonce.
	ErrCiphertextTooShort = errors.New("adaptive: ciphertext too short")
)

// Each sealed payload starts with one tag byte naming its cipher, so a box
// can open values sealed on a host that preferred the other algorithm.
const (
	tagAESGCM   byte = 0x01
	tagChaCha20 byte = 0x02
)

// Preferred returns AES-GCM where Go has hardware AES (amd64, arm64 and
// s390x) and ChaCha20-Poly1305 elsewhere.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

func (t CipherType) tag() (byte, error) {
	switch t {
	case CipherAESGCM:
		return tagAESGCM, nil
	case CipherChaCha20:
		return tagChaCha20, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, string(t))
	}
}

func cipherForTag(tag byte) (CipherType, error) {
	switch tag {
	case tagAESGCM:
		return CipherAESGCM, nil
	case tagChaCha20:
		return CipherChaCha20, nil
	default:
		return "", fmt.Errorf("%w: tag 0x%02x", ErrUnknownCipher, tag)
	}
}

func newAEAD(key []byte, t CipherType) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes, got %d", KeySize, len(key))
	}
	switch t {
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case CipherChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, string(t))
	}
}

// encrypt returns tag || nonce || ciphertext.
func encrypt(key []byte, t CipherType, plaintext, aad []byte) ([]byte, error) {
	tag, err := t.tag()
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key, t)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = tag
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return aead.Seal(out, out[1:], plaintext, aad), nil
}

// decrypt reverses encrypt, picking the cipher from the tag byte.
func decrypt(key, payload, aad []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, ErrCiphertextTooShort
	}
	t, err := cipherForTag(payload[0])
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(key, t)
	if err != nil {
		return nil, err
	}

	body := payload[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := body[:aead.NonceSize()], body[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, aad)
}
