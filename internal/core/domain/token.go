package domain

import "github.com/yndnr/authmesh-go/pkg/token"

// Session tokens are amtk_ followed by 32 random bytes in unpadded
// base64url. Stores only ever see amth_ followed by the hex SHA-256 of the
// whole token.
const (
	TokenPrefix      = "amtk_"
	TokenHashPrefix  = "amth_"
	TokenBytesLength = 32
	TokenBodyLength  = 43
	TokenLength      = len(TokenPrefix) + TokenBodyLength
	TokenHashLength  = len(TokenHashPrefix) + 64
)

var sessionTokens = token.MustFormat(TokenPrefix, TokenHashPrefix, TokenBytesLength)

// GenerateToken returns a new token and its hash. The token is handed to
// the client once and never persisted.
func GenerateToken() (plaintext string, hash string, err error) {
	plaintext, hash, err = sessionTokens.Generate()
	if err != nil {
		return "", "", ErrInternalServer.WithCause(err)
	}
	return plaintext, hash, nil
}

func HashToken(plaintext string) string {
	return sessionTokens.Hash(plaintext)
}

// ValidateTokenFormat checks prefix, length and alphabet only.
func ValidateTokenFormat(s string) bool {
	return sessionTokens.Valid(s)
}

func ValidateTokenHashFormat(hash string) bool {
	return sessionTokens.ValidHash(hash)
}

// MaskToken returns a log-safe form of a token.
func MaskToken(s string) string {
	return sessionTokens.Mask(s)
}
