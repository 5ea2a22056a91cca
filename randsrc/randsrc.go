// Package randsrc provides the cryptographic random byte source
// RecordBuilder uses for padding and sub-quantum timestamp back-dating.
package randsrc

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Random is a cryptographic random byte generator. Implementations must be
// safe for concurrent use (crypto/rand.Reader already is).
type Random interface {
	// Read fills b with cryptographically random bytes.
	Read(b []byte) error
	// Uint32Below returns a uniform random value in [0, bound).
	Uint32Below(bound uint32) (uint32, error)
}

// System is the default Random backed by crypto/rand.
type System struct{}

// Read fills b with crypto/rand output.
func (System) Read(b []byte) error {
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("read random bytes: %w", err)
	}
	return nil
}

// Uint32Below returns a uniform random value in [0, bound) using rejection
// sampling over crypto/rand, via math/big.Int to avoid modulo bias.
func (System) Uint32Below(bound uint32) (uint32, error) {
	if bound == 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return 0, fmt.Errorf("random below %d: %w", bound, err)
	}
	return uint32(n.Int64()), nil
}
