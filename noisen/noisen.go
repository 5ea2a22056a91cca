// Package noisen implements the single-message Noise "N" handshake
// (DH = X25519, cipher = ChaCha20-Poly1305, hash = SHA-256) used to
// encrypt the modern tunnel build record formats.
//
// Pattern N has the initiator send one message to a responder whose
// static public key the initiator already knows out of band:
//
//	<- s
//	...
//	-> e, es
//
// There is no handshake completion on the responder side beyond
// reading that one message; both sides end up holding the same
// chaining key and handshake hash, which the caller uses as key
// material for whatever comes next (see package tunnelkeys).
package noisen

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const protocolName = "Noise_N_25519_ChaChaPoly_SHA256"

// TagSize is the Poly1305 authentication tag length appended to ciphertext.
const TagSize = chacha20poly1305.Overhead

// PublicKeySize and PrivateKeySize are the X25519 key sizes used throughout.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
)

// KeyPair is an ephemeral or static X25519 key pair.
type KeyPair struct {
	Private [PrivateKeySize]byte
	Public  [PublicKeySize]byte
}

// KeyFactory generates ephemeral X25519 key pairs. Implementations must be
// safe for concurrent use.
type KeyFactory interface {
	GenerateKeyPair() (KeyPair, error)
}

// symmetricState tracks the running hash and chaining key of the handshake.
type symmetricState struct {
	h  [32]byte
	ck [32]byte
}

func initSymmetric() symmetricState {
	var ss symmetricState
	name := []byte(protocolName)
	if len(name) <= len(ss.h) {
		copy(ss.h[:], name)
	} else {
		ss.h = sha256.Sum256(name)
	}
	ss.ck = ss.h
	return ss
}

func (ss *symmetricState) mixHash(data []byte) {
	h := sha256.New()
	h.Write(ss.h[:])
	h.Write(data)
	copy(ss.h[:], h.Sum(nil))
}

// mixKey runs Noise's two-output HKDF over the chaining key and new input
// key material, returning the fresh symmetric-cipher key.
func (ss *symmetricState) mixKey(ikm []byte) (cipherKey [32]byte) {
	r := hkdf.New(sha256.New, ikm, ss.ck[:], nil)
	var out [64]byte
	_, _ = io.ReadFull(r, out[:]) // fixed 64-byte read from HKDF never errors
	copy(ss.ck[:], out[:32])
	copy(cipherKey[:], out[32:])
	return cipherKey
}

func nonceFor(n uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce
}

// HandshakeOutput carries the chaining key and handshake hash surviving the
// single Noise N message. The initiator's ephemeral public key (needed by
// the wire encoder) is returned separately by InitiatorWrite.
type HandshakeOutput struct {
	ChainingKey [32]byte
	Hash        [32]byte
}

// InitiatorWrite runs the initiator side of Noise N: it generates a fresh
// ephemeral key pair via factory, performs DH against the responder's known
// static public key, and seals plaintext under the derived key with the
// running handshake hash as associated data.
//
// It returns the ephemeral public key, the sealed ciphertext (with the
// 16-byte Poly1305 tag appended), and the resulting handshake output.
func InitiatorWrite(factory KeyFactory, responderStatic [PublicKeySize]byte, plaintext []byte) (ephPub [PublicKeySize]byte, ciphertext []byte, out HandshakeOutput, err error) {
	kp, err := factory.GenerateKeyPair()
	if err != nil {
		return ephPub, nil, out, fmt.Errorf("generate ephemeral key pair: %w", err)
	}
	defer clearKeyPair(&kp)

	ss := initSymmetric()
	ss.mixHash(nil) // empty prologue
	ss.mixHash(responderStatic[:])

	ephPub = kp.Public
	ss.mixHash(ephPub[:])

	dh, err := curve25519.X25519(kp.Private[:], responderStatic[:])
	if err != nil {
		return ephPub, nil, out, fmt.Errorf("X25519(e, rs): %w", err)
	}
	cipherKey := ss.mixKey(dh)
	clearBytes(dh)

	aead, err := chacha20poly1305.New(cipherKey[:])
	if err != nil {
		return ephPub, nil, out, fmt.Errorf("init AEAD: %w", err)
	}
	clearBytes(cipherKey[:])

	nonce := nonceFor(0)
	ciphertext = aead.Seal(nil, nonce[:], plaintext, ss.h[:])
	ss.mixHash(ciphertext)

	out = HandshakeOutput{ChainingKey: ss.ck, Hash: ss.h}
	return ephPub, ciphertext, out, nil
}

// ResponderRead runs the responder side of Noise N: it reads the
// initiator's ephemeral public key, performs DH against its own static
// private key, and opens the ciphertext. Callers MUST perform the cheap
// canonical-key rejections (see buildrecord's decryptor) before calling
// this, since it runs the scalar multiplication unconditionally.
func ResponderRead(staticPrivate [PrivateKeySize]byte, staticPublic [PublicKeySize]byte, ephPub [PublicKeySize]byte, ciphertext []byte) (plaintext []byte, out HandshakeOutput, err error) {
	ss := initSymmetric()
	ss.mixHash(nil)
	ss.mixHash(staticPublic[:])
	ss.mixHash(ephPub[:])

	dh, err := curve25519.X25519(staticPrivate[:], ephPub[:])
	if err != nil {
		return nil, out, fmt.Errorf("X25519(s, e): %w", err)
	}
	cipherKey := ss.mixKey(dh)
	clearBytes(dh)

	aead, err := chacha20poly1305.New(cipherKey[:])
	if err != nil {
		return nil, out, fmt.Errorf("init AEAD: %w", err)
	}
	clearBytes(cipherKey[:])

	nonce := nonceFor(0)
	plaintext, err = aead.Open(nil, nonce[:], ciphertext, ss.h[:])
	if err != nil {
		return nil, out, fmt.Errorf("AEAD open: %w", err)
	}
	ss.mixHash(ciphertext)

	out = HandshakeOutput{ChainingKey: ss.ck, Hash: ss.h}
	return plaintext, out, nil
}

func clearKeyPair(kp *KeyPair) {
	clearBytes(kp.Private[:])
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
