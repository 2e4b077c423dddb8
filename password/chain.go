package password

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("empty password")
	// ErrUnsupportedHash is returned for digests no configured scheme recognizes.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Scheme is one hash family the Chain can verify.
type Scheme interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Handles(encodedHash string) bool
}

// Chain hashes with its primary scheme and verifies with whichever scheme
// recognizes the stored digest. Digests from a legacy scheme always need
// an upgrade.
type Chain struct {
	primary Scheme
	legacy  []Scheme
}

// NewChain returns a Chain hashing with primary and also accepting legacy.
func NewChain(primary Scheme, legacy ...Scheme) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	scheme, err := c.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	return scheme.Verify(password, encodedHash)
}

func (c *Chain) NeedsUpgrade(encodedHash string) (bool, error) {
	if c.primary.Handles(encodedHash) {
		return c.primary.NeedsUpgrade(encodedHash)
	}
	if _, err := c.schemeFor(encodedHash); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Chain) schemeFor(encodedHash string) (Scheme, error) {
	if c.primary.Handles(encodedHash) {
		return c.primary, nil
	}
	for _, s := range c.legacy {
		if s.Handles(encodedHash) {
			return s, nil
		}
	}
	return nil, ErrUnsupportedHash
}
