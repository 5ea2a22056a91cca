package buildrecord

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/kaonet/garlic-tbm/elgamal2048"
	"github.com/kaonet/garlic-tbm/noisen"
	"github.com/kaonet/garlic-tbm/tunnelkeys"
)

// LocalKey is the receiving hop's own private key for either supported
// key type. Exactly one of ElGamal or X25519 must be set, matching the
// format being decrypted.
type LocalKey struct {
	ElGamal *elgamal2048.PrivateKey
	X25519  *[32]byte // private scalar
}

// RecordDecryptor reverses RecordEncryptor. Callers must confirm the wire
// record's 16-byte selector matches their own identity hash before calling
// Decrypt; Decrypt itself does not re-check the selector.
type RecordDecryptor struct {
	// Logger receives trace-level diagnostics on the failing Noise state.
	// Never logs the reason in a way that lets a caller distinguish
	// rejection causes — that distinction stays internal to this struct.
	Logger *slog.Logger

	lastHandshake noisen.HandshakeOutput
	lastDerived   *tunnelkeys.Derived
}

// LastHandshake returns the chaining key/handshake hash from the most
// recent successful modern-format Decrypt call.
func (d *RecordDecryptor) LastHandshake() noisen.HandshakeOutput { return d.lastHandshake }

// LastDerivedKeys returns the modern-short derived key schedule from the
// most recent successful Decrypt call, or nil otherwise.
func (d *RecordDecryptor) LastDerivedKeys() *tunnelkeys.Derived { return d.lastDerived }

func (d *RecordDecryptor) trace(msg string, args ...any) {
	if d.Logger == nil {
		return
	}
	d.Logger.Log(nil, slog.Level(-8), msg, args...) // below LevelDebug: internal-only diagnostics
}

// Decrypt reverses Encrypt, dispatching on wire length and local key type.
// Every rejection of the record's contents (ephemeral-key checks, AEAD
// failure, ElGamal failure) collapses into ErrDecryptFailed; see the
// taxonomy comment in errors.go and spec §7 for why. A wire length that
// matches no format is ErrMalformedCleartext, and a missing local key of
// the needed type is ErrUnsupportedKeyType.
func (d *RecordDecryptor) Decrypt(wire []byte, localKey LocalKey, ourStaticPublic *[32]byte) ([]byte, error) {
	switch len(wire) {
	case LegacyWireLen:
		if localKey.ElGamal != nil {
			return d.decryptLegacy(wire, localKey.ElGamal)
		}
		return d.decryptModern(wire, ModernLong, localKey, ourStaticPublic)
	case ModernShortWireLen:
		return d.decryptModern(wire, ModernShort, localKey, ourStaticPublic)
	default:
		return nil, fmt.Errorf("%w: wire length %d", ErrMalformedCleartext, len(wire))
	}
}

func (d *RecordDecryptor) decryptLegacy(wire []byte, priv *elgamal2048.PrivateKey) ([]byte, error) {
	var a, b [elgamal2048.BlockSize]byte
	// Reassemble the two 257-byte halves, reinserting the leading zero
	// byte the wire format strips (see elgamal2048 package doc).
	copy(a[1:], wire[SelectorLen:SelectorLen+256])
	copy(b[1:], wire[SelectorLen+256:SelectorLen+512])

	cleartext, err := elgamal2048.Decrypt(priv, a, b)
	if err != nil {
		d.trace("legacy ElGamal decrypt failed", "error", err)
		return nil, ErrDecryptFailed
	}
	if len(cleartext) != LegacyCleartextLen {
		d.trace("legacy decrypt produced wrong-length cleartext", "length", len(cleartext))
		return nil, ErrDecryptFailed
	}
	d.lastDerived = nil
	return cleartext, nil
}

func (d *RecordDecryptor) decryptModern(wire []byte, format Format, localKey LocalKey, ourStaticPublic *[32]byte) ([]byte, error) {
	if localKey.X25519 == nil {
		return nil, fmt.Errorf("%w: modern records require an X25519 local key", ErrUnsupportedKeyType)
	}

	var ephPub [noisen.PublicKeySize]byte
	copy(ephPub[:], wire[SelectorLen:SelectorLen+noisen.PublicKeySize])

	// Cheap rejections first, before any scalar multiplication (spec §4.3).
	if ephPub[31]&0x80 != 0 {
		d.trace("rejected: ephemeral key MSB set")
		return nil, ErrDecryptFailed
	}
	if ourStaticPublic != nil && bytes.Equal(ephPub[:], ourStaticPublic[:]) {
		d.trace("rejected: ephemeral key equals our own static key")
		return nil, ErrDecryptFailed
	}
	if ephPub == ([noisen.PublicKeySize]byte{}) {
		d.trace("rejected: ephemeral key is all-zero")
		return nil, ErrDecryptFailed
	}

	ciphertext := wire[SelectorLen+noisen.PublicKeySize:]

	var ourPub [32]byte
	if ourStaticPublic != nil {
		ourPub = *ourStaticPublic
	}
	plaintext, handshake, err := noisen.ResponderRead(*localKey.X25519, ourPub, ephPub, ciphertext)
	if err != nil {
		d.trace("Noise N responder read failed", "error", err)
		return nil, ErrDecryptFailed
	}
	d.lastHandshake = handshake

	if format == ModernLong {
		d.lastDerived = nil
		return plaintext, nil
	}

	reader, err := NewRecordReader(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	derived, err := tunnelkeys.Derive(handshake.ChainingKey, reader.IsOutboundEndpoint())
	if err != nil {
		return nil, fmt.Errorf("derive modern-short keys: %w", err)
	}
	d.lastDerived = &derived
	return plaintext, nil
}
