package adaptive

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
)

// SealedPrefix marks values produced by SecretBox.Seal.
const SealedPrefix = "sealed:v1:"

// ErrNotSealed is returned by Open for values without SealedPrefix.
var ErrNotSealed = errors.New("adaptive: value is not sealed")

// SecretBox seals short secrets into printable strings.
//
// The derived key lives in a memguard Enclave and is only decrypted into
// locked memory for the duration of one Seal or Open.
type SecretBox struct {
	key        *memguard.Enclave
	cipherType CipherType
}

// NewSecretBox derives a KeySize key for purpose from masterKey.
// cipherType selects the AEAD for new seals; empty means Preferred().
// Open accepts values sealed with either cipher.
func NewSecretBox(masterKey []byte, purpose string, cipherType CipherType) (*SecretBox, error) {
	if cipherType == "" {
		cipherType = Preferred()
	}
	if _, err := cipherType.tag(); err != nil {
		return nil, err
	}

	key, err := DeriveKey(masterKey, purpose, KeySize)
	if err != nil {
		return nil, err
	}

	// NewEnclave wipes key.
	return &SecretBox{
		key:        memguard.NewEnclave(key),
		cipherType: cipherType,
	}, nil
}

// CipherType returns the AEAD used for new seals.
func (b *SecretBox) CipherType() CipherType {
	return b.cipherType
}

// Seal encrypts plaintext bound to aad.
func (b *SecretBox) Seal(plaintext, aad []byte) (string, error) {
	buf, err := b.key.Open()
	if err != nil {
		return "", fmt.Errorf("adaptive: open enclave: %w", err)
	}
	defer buf.Destroy()

	payload, err := encrypt(buf.Bytes(), b.cipherType, plaintext, aad)
	if err != nil {
		return "", fmt.Errorf("adaptive: seal: %w", err)
	}
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(payload), nil
}

// Open decrypts a value produced by Seal with the same aad.
func (b *SecretBox) Open(sealed string, aad []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	payload, err := base64.RawURLEncoding.DecodeString(sealed[len(SealedPrefix):])
	if err != nil {
		return nil, fmt.Errorf("adaptive: open: %w", err)
	}

	buf, err := b.key.Open()
	if err != nil {
		return nil, fmt.Errorf("adaptive: open enclave: %w", err)
	}
	defer buf.Destroy()

	pt, err := decrypt(buf.Bytes(), payload, aad)
	if err != nil {
		return nil, fmt.Errorf("adaptive: open: %w", err)
	}
	return pt, nil
}

// IsSealed reports whether value carries SealedPrefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
