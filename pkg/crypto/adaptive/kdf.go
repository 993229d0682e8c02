package adaptive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinMasterKeyLength is the minimum master key length accepted by DeriveKey.
const MinMasterKeyLength = 16

// ErrKeyTooShort is returned when a master key is shorter than MinMasterKeyLength.
var ErrKeyTooShort = errors.New("adaptive: master key too short")

// DeriveKey derives a purpose-bound subkey from masterKey using HKDF-SHA256.
// Different info strings yield independent keys.
func DeriveKey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < MinMasterKeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}
