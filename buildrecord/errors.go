package buildrecord

import "errors"

// Error taxonomy (spec §7). Decrypt failures are deliberately collapsed
// into a single ErrDecryptFailed so callers can never distinguish a bad
// Poly1305 tag from a bad ephemeral key from a bad ElGamal block — any
// such distinction would hand an adversary an oracle.
var (
	// ErrUnsupportedKeyType is returned when the recipient or local key is
	// neither ElGamal-2048 nor X25519.
	ErrUnsupportedKeyType = errors.New("buildrecord: unsupported key type")

	// ErrDecryptFailed collapses every decrypt-path rejection: malformed
	// ephemeral key, AEAD authentication failure, and legacy ElGamal
	// failure all surface as this one error.
	ErrDecryptFailed = errors.New("buildrecord: decrypt failed")

	// ErrOversizedOptions is returned at build time when options do not
	// fit the format's budget.
	ErrOversizedOptions = errors.New("buildrecord: options exceed format budget")

	// ErrIllegalState is returned by an accessor called on a format that
	// does not carry the requested field, or before derivation has run.
	ErrIllegalState = errors.New("buildrecord: illegal state")

	// ErrMalformedCleartext is returned when a cleartext or wire buffer's
	// length does not match any known format.
	ErrMalformedCleartext = errors.New("buildrecord: malformed cleartext")

	// ErrInvalidArgument is returned by the builder on all-zero key
	// material where a key is required, or on conflicting role flags.
	ErrInvalidArgument = errors.New("buildrecord: invalid argument")
)
