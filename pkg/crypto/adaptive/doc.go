// Package adaptive seals short secrets with an AEAD chosen for the host.
//
// AES-256-GCM is used where the CPU has AES instructions and
// ChaCha20-Poly1305 elsewhere. Every sealed value records which one
// produced it, so a fleet of mixed hosts can read each other's values.
//
// DeriveKey derives purpose-bound subkeys with HKDF-SHA256. SecretBox keeps
// its subkey in a memguard enclave and seals TOTP seeds into printable
// strings:
//
//	box, err := adaptive.NewSecretBox(masterKey, "totp-seed", "")
//	sealed, err := box.Seal(seed, []byte(userID))
//	seed, err := box.Open(sealed, []byte(userID))
package adaptive
