package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
	userIDSize          = 16

	minOTPDigits = 4
	maxOTPDigits = 10
)

// ErrMalformedRefreshToken is returned for tokens that do not decode to a
// user id and secret.
var ErrMalformedRefreshToken = errors.New("malformed refresh token")

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret returns the hex digest stored in the refresh set.
// Only digests are persisted.
func HashRefreshSecret(secret [refreshSecretSize]byte) string {
	sum := sha256.Sum256(secret[:])
	return hex.EncodeToString(sum[:])
}

// EncodeRefreshToken packs the owner id and secret into the opaque token
// handed to clients. The owner id lets a refresh find its token set.
func EncodeRefreshToken(userID uuid.UUID, secret [refreshSecretSize]byte) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:userIDSize], userID[:])
	copy(raw[userIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeRefreshToken(token string) (uuid.UUID, [refreshSecretSize]byte, error) {
	var (
		userID uuid.UUID
		secret [refreshSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) != refreshTokenRawSize {
		return userID, secret, ErrMalformedRefreshToken
	}

	copy(userID[:], raw[:userIDSize])
	copy(secret[:], raw[userIDSize:])

	return userID, secret, nil
}

// NewOTP returns a numeric code of exactly digits characters drawn
// uniformly from [0, 10^digits). Leading zeros are kept.
func NewOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode digests a verification code together with its scope (user and
// purpose), so equal codes for different scopes never share a digest.
func HashCode(scope, code string) string {
	sum := sha256.Sum256([]byte(scope + ":" + code))
	return hex.EncodeToString(sum[:])
}
