package krypto

import (
	"encoding/hex"
	"errors"
	"log/slog"

	"golang.org/x/crypto/blake2b"
)

const (
	tokenLen = 32
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a random token that is sent via email.
//
// The only time a token should be provided in plaintext is as part of
// the email to the user. Tokens are confidential and should never be
// exposed in logs or persisted in plaintext. Persist the Digest instead.
type Token [tokenLen]byte

// GenerateToken creates a new random token of 256 bits.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return [tokenLen]byte{}, err
	}
	return [tokenLen]byte(b), nil
}

// ParseToken parses a token from a string.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return [tokenLen]byte{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return [tokenLen]byte{}, ErrInvalidToken
	}

	return [tokenLen]byte(b), nil
}

// String returns the hex representation of the token, used in the
// links that are emailed.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// Digest returns the hex encoded BLAKE2b-256 digest of the token.
// Tokens are looked up by digest, so it is unsalted.
func (t Token) Digest() string {
	sum := blake2b.Sum256(t[:])
	return hex.EncodeToString(sum[:])
}

// LogValue implements the slog.Valuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}
