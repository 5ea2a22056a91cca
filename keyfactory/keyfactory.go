// Package keyfactory generates the ephemeral X25519 key pairs consumed by
// the Noise N handshake on the encrypt path.
package keyfactory

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/kaonet/garlic-tbm/noisen"
)

// System is the default noisen.KeyFactory, backed by crypto/rand.
type System struct{}

var _ noisen.KeyFactory = System{}

// GenerateKeyPair draws a fresh X25519 private scalar and computes its
// public point. Safe for concurrent use.
func (System) GenerateKeyPair() (noisen.KeyPair, error) {
	var kp noisen.KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return kp, fmt.Errorf("generate ephemeral private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, fmt.Errorf("derive ephemeral public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}
