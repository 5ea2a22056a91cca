// Package garlicsession is the thin producer/consumer boundary around the
// garlic key/tag pair a modern-short outbound-endpoint record derives
// (buildrecord.GarlicKeyPair). It seals and opens a single encrypted
// "clove": a small payload exchanged over the post-build garlic session
// that downstream dispatch is expected to route by its tag. The dispatcher
// that does that routing is out of scope here.
package garlicsession

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

// ErrTagMismatch is returned by MatchesTag when the clove's digest doesn't
// match the session's garlic tag, before any AEAD work is attempted.
var ErrTagMismatch = errors.New("garlicsession: clove tag mismatch")

// ErrOpenFailed collapses every AEAD authentication failure, matching the
// oracle-resistant posture buildrecord.RecordDecryptor uses for its own
// decrypt path.
var ErrOpenFailed = errors.New("garlicsession: clove open failed")

// Clove is a single sealed message addressed to the garlic key/tag pair
// derived for one outbound-endpoint tunnel build record.
type Clove struct {
	Nonce      [chacha20poly1305.NonceSize]byte
	Ciphertext []byte
}

// Seal encrypts plaintext under garlicKey, using garlicTag as additional
// authenticated data so a tampered or misrouted clove fails to open rather
// than silently decrypting under the wrong session.
func Seal(garlicKey, garlicTag [32]byte, plaintext []byte) (Clove, error) {
	aead, err := chacha20poly1305.New(garlicKey[:])
	if err != nil {
		return Clove{}, fmt.Errorf("garlicsession: new AEAD: %w", err)
	}

	var c Clove
	if _, err := rand.Read(c.Nonce[:]); err != nil {
		return Clove{}, fmt.Errorf("garlicsession: generate nonce: %w", err)
	}
	c.Ciphertext = aead.Seal(nil, c.Nonce[:], plaintext, garlicTag[:])
	return c, nil
}

// Open reverses Seal. Any tag mismatch or AEAD authentication failure is
// reported without distinguishing the cause, mirroring the decrypt
// taxonomy's oracle-resistance requirement.
func Open(garlicKey, garlicTag [32]byte, clove Clove) ([]byte, error) {
	aead, err := chacha20poly1305.New(garlicKey[:])
	if err != nil {
		return nil, fmt.Errorf("garlicsession: new AEAD: %w", err)
	}
	plaintext, err := aead.Open(nil, clove.Nonce[:], clove.Ciphertext, garlicTag[:])
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// VerificationDigest derives a SHA3-256 digest over the tag and ciphertext
// that a clove's holder can publish alongside it, letting a session
// consumer confirm it has the right clove before attempting Open — the
// same "hash the session material, never the key" pattern the teacher's
// onion package uses for rendezvous digests, adapted here for clove
// addressing rather than relay-cell authentication.
func VerificationDigest(garlicTag [32]byte, clove Clove) [32]byte {
	h := sha3.New256()
	h.Write(garlicTag[:])
	h.Write(clove.Nonce[:])
	h.Write(clove.Ciphertext)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MatchesTag reports whether clove was sealed under expectedTag, checked
// before Open is attempted (ErrTagMismatch) so a session consumer holding
// the wrong tag never hands attacker-controlled ciphertext to the AEAD.
func MatchesTag(expectedTag [32]byte, clove Clove, digest [32]byte) error {
	if VerificationDigest(expectedTag, clove) != digest {
		return ErrTagMismatch
	}
	return nil
}
