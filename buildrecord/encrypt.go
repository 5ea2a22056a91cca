package buildrecord

import (
	"fmt"

	"github.com/kaonet/garlic-tbm/elgamal2048"
	"github.com/kaonet/garlic-tbm/noisen"
	"github.com/kaonet/garlic-tbm/tunnelkeys"
)

// RecipientKey is the recipient's public key for either supported key
// type. Exactly one of ElGamal or X25519 must be set.
type RecipientKey struct {
	ElGamal *elgamal2048.PublicKey
	X25519  *[32]byte
}

// RecordEncryptor encrypts cleartext build records to a recipient hop,
// producing the wire-format EncryptedBuildRecord. For modern formats it
// runs the Noise N handshake and, for modern-short, the post-handshake
// HKDF chain, exposing the results via LastDerivedKeys/LastHandshake.
type RecordEncryptor struct {
	KeyFactory noisen.KeyFactory

	lastHandshake noisen.HandshakeOutput
	lastDerived   *tunnelkeys.Derived
}

// LastHandshake returns the chaining key and handshake hash from the most
// recent modern-format Encrypt call.
func (e *RecordEncryptor) LastHandshake() noisen.HandshakeOutput { return e.lastHandshake }

// LastDerivedKeys returns the modern-short derived key schedule from the
// most recent Encrypt call, or nil if the last record encrypted wasn't
// modern-short.
func (e *RecordEncryptor) LastDerivedKeys() *tunnelkeys.Derived { return e.lastDerived }

// Encrypt encrypts cleartext (one of the three fixed lengths) to
// recipientKey, writing the truncated recipientIdentityHash selector into
// the wire record's first 16 bytes.
func (e *RecordEncryptor) Encrypt(cleartext []byte, recipientKey RecipientKey, recipientIdentityHash [32]byte) ([]byte, error) {
	format, err := FormatForCleartextLen(len(cleartext))
	if err != nil {
		return nil, err
	}

	wire := make([]byte, format.WireLen())
	copy(wire[:SelectorLen], recipientIdentityHash[:SelectorLen])

	if format == Legacy {
		return e.encryptLegacy(cleartext, recipientKey, wire)
	}
	return e.encryptModern(cleartext, format, recipientKey, wire)
}

func (e *RecordEncryptor) encryptLegacy(cleartext []byte, recipientKey RecipientKey, wire []byte) ([]byte, error) {
	if recipientKey.ElGamal == nil {
		return nil, fmt.Errorf("%w: legacy records require an ElGamal-2048 recipient key", ErrUnsupportedKeyType)
	}

	a, b, err := elgamal2048.Encrypt(*recipientKey.ElGamal, cleartext)
	if err != nil {
		return nil, fmt.Errorf("ElGamal encrypt: %w", err)
	}
	e.lastDerived = nil

	// Strip each half's forced leading zero byte (elgamal2048.BlockSize ==
	// 257) down to the 256-byte payload the wire format carries.
	copy(wire[SelectorLen:SelectorLen+256], a[1:])
	copy(wire[SelectorLen+256:SelectorLen+512], b[1:])
	return wire, nil
}

func (e *RecordEncryptor) encryptModern(cleartext []byte, format Format, recipientKey RecipientKey, wire []byte) ([]byte, error) {
	if recipientKey.X25519 == nil {
		return nil, fmt.Errorf("%w: modern records require an X25519 recipient key", ErrUnsupportedKeyType)
	}
	factory := e.KeyFactory
	if factory == nil {
		return nil, fmt.Errorf("%w: RecordEncryptor.KeyFactory is required for modern formats", ErrInvalidArgument)
	}

	ephPub, ciphertext, handshake, err := noisen.InitiatorWrite(factory, *recipientKey.X25519, cleartext)
	if err != nil {
		return nil, fmt.Errorf("Noise N handshake: %w", err)
	}
	e.lastHandshake = handshake

	copy(wire[SelectorLen:SelectorLen+noisen.PublicKeySize], ephPub[:])
	copy(wire[SelectorLen+noisen.PublicKeySize:], ciphertext)

	if format == ModernLong {
		e.lastDerived = nil
		return wire, nil
	}

	reader, err := NewRecordReader(cleartext)
	if err != nil {
		return nil, err
	}
	derived, err := tunnelkeys.Derive(handshake.ChainingKey, reader.IsOutboundEndpoint())
	if err != nil {
		return nil, fmt.Errorf("derive modern-short keys: %w", err)
	}
	e.lastDerived = &derived
	return wire, nil
}

// ChachaReplyKey and ChachaReplyAD are convenience accessors over
// LastHandshake for modern-long records, matching the spec's naming
// (chachaReplyKey = final chaining key, chachaReplyAD = handshake hash).
func (e *RecordEncryptor) ChachaReplyKey() [32]byte { return e.lastHandshake.ChainingKey }
func (e *RecordEncryptor) ChachaReplyAD() [32]byte  { return e.lastHandshake.Hash }
