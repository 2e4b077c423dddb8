package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Floors enforced on configuration and on every stored digest. A digest
// below them is treated as malformed, not merely weak.
var minimums = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

const argon2Prefix = "$argon2id$"

// ErrMalformedHash is returned when a stored digest cannot be decoded.
var ErrMalformedHash = errors.New("malformed password hash")

// Argon2 hashes passwords into PHC strings
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash).
type Argon2 struct {
	config Config
}

// NewArgon2 rejects parameters below the package minimums.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minimums.Memory:
		return nil, fmt.Errorf("password memory must be >= %d KB", minimums.Memory)
	case cfg.Time < minimums.Time:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < minimums.Parallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minimums.SaltLength:
		return nil, fmt.Errorf("password salt length must be >= %d", minimums.SaltLength)
	case cfg.KeyLength < minimums.KeyLength:
		return nil, fmt.Errorf("password key length must be >= %d", minimums.KeyLength)
	}
	return &Argon2{config: cfg}, nil
}

// Hash uses the password bytes exactly as given; no Unicode normalization.
// Length and composition rules belong to [Policy].
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := derive(password, salt, a.config)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest with the parameters embedded in encodedHash
// and compares in constant time.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	params, salt, want, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := derive(password, salt, params)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	params, _, _, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return params.Memory < a.config.Memory ||
		params.Time < a.config.Time ||
		params.Parallelism < a.config.Parallelism ||
		params.KeyLength != a.config.KeyLength, nil
}

// Handles reports whether encodedHash is an argon2id PHC string.
func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}

func derive(password string, salt []byte, p Config) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

// decodePHC splits a PHC string into its cost parameters, salt and key.
// Both padded and unpadded base64 are accepted.
func decodePHC(encodedHash string) (Config, []byte, []byte, error) {
	var params Config

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, malformed("not an argon2id PHC string")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, malformed("missing version")
	}
	if version != argon2.Version {
		return params, nil, nil, malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var rest string
	n, _ := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d%s", &params.Memory, &params.Time, &params.Parallelism, &rest)
	if n != 3 {
		return params, nil, nil, malformed("invalid parameters")
	}
	if params.Memory < minimums.Memory || params.Time < minimums.Time || params.Parallelism < minimums.Parallelism {
		return params, nil, nil, malformed("parameters below minimum")
	}

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < int(minimums.SaltLength) {
		return params, nil, nil, malformed("invalid salt")
	}
	key, err := decodeB64(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, malformed("invalid key")
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
