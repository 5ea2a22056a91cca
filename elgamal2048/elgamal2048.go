// Package elgamal2048 implements the legacy 2048-bit discrete-log ElGamal
// primitive used by the legacy long build record format.
//
// The prime and generator are the well-known RFC 3526 2048-bit MODP Group
// #14 parameters, which the legacy onion-routing network reuses for its
// ElGamal keys. This is not a general-purpose ElGamal implementation: the
// plaintext is always a PKCS#1-v1.5-shaped 255-byte block (matching the
// network's historical padding), and the ciphertext halves are always
// returned as 257 bytes each with a forced leading zero byte — a quirk of
// the reference engine's big-integer encoding that RecordEncryptor/
// RecordDecryptor strip and reinsert at the wire boundary (see
// buildrecord/encrypt.go, buildrecord/decrypt.go).
package elgamal2048

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// BlockSize is the length of each returned/expected ciphertext half,
// including its forced leading zero byte.
const BlockSize = 257

// PlaintextSize is the padded block size ElGamal operates on.
const PlaintextSize = 255

// MaxMessageSize is the largest payload padMessage will carry.
const MaxMessageSize = PlaintextSize - 3 - minPaddingLen

const minPaddingLen = 8

var (
	// prime is the RFC 3526 2048-bit MODP Group #14 prime.
	prime, _ = new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E08"+
			"8A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B"+
			"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9"+
			"A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE6"+
			"49286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA"+
			"8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966"+
			"D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772"+
			"C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718"+
			"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFF"+
			"FFFFFFFF",
		16)
	generator = big.NewInt(2)
)

// PrivateKey is an ElGamal private key (a 2048-bit exponent).
type PrivateKey struct {
	X *big.Int
	Y *big.Int // public component, cached
}

// PublicKey is an ElGamal public key.
type PublicKey struct {
	Y *big.Int
}

// GenerateKey creates a new ElGamal key pair. Exposed for tests and for
// key-generation tooling outside this module's core scope.
func GenerateKey() (*PrivateKey, error) {
	x, err := rand.Int(rand.Reader, new(big.Int).Sub(prime, big.NewInt(2)))
	if err != nil {
		return nil, fmt.Errorf("generate private exponent: %w", err)
	}
	x.Add(x, big.NewInt(1)) // x in [1, p-2]
	y := new(big.Int).Exp(generator, x, prime)
	return &PrivateKey{X: x, Y: y}, nil
}

// Public returns the public key corresponding to priv.
func (priv *PrivateKey) Public() PublicKey {
	return PublicKey{Y: priv.Y}
}

// Encrypt pads and encrypts a message of at most MaxMessageSize bytes,
// returning the two ciphertext halves a, b (each BlockSize bytes, with a
// forced leading zero byte matching the reference engine's encoding).
func Encrypt(pub PublicKey, message []byte) (a, b [BlockSize]byte, err error) {
	padded, err := padMessage(message)
	if err != nil {
		return a, b, err
	}
	m := new(big.Int).SetBytes(padded)

	k, err := rand.Int(rand.Reader, new(big.Int).Sub(prime, big.NewInt(2)))
	if err != nil {
		return a, b, fmt.Errorf("generate ephemeral exponent: %w", err)
	}
	k.Add(k, big.NewInt(1))

	aInt := new(big.Int).Exp(generator, k, prime)
	s := new(big.Int).Exp(pub.Y, k, prime)
	bInt := new(big.Int).Mod(new(big.Int).Mul(m, s), prime)

	putForcedZero(a[:], aInt)
	putForcedZero(b[:], bInt)
	return a, b, nil
}

// Decrypt reverses Encrypt given the two 257-byte ciphertext halves.
func Decrypt(priv *PrivateKey, a, b [BlockSize]byte) ([]byte, error) {
	aInt := new(big.Int).SetBytes(a[:])
	bInt := new(big.Int).SetBytes(b[:])

	s := new(big.Int).Exp(aInt, priv.X, prime)
	sInv := new(big.Int).ModInverse(s, prime)
	if sInv == nil {
		return nil, fmt.Errorf("shared secret not invertible mod p")
	}
	m := new(big.Int).Mod(new(big.Int).Mul(bInt, sInv), prime)
	if m.BitLen() > PlaintextSize*8 {
		return nil, fmt.Errorf("invalid padding header")
	}

	padded := m.FillBytes(make([]byte, PlaintextSize))
	return unpadMessage(padded)
}

// putForcedZero writes n's big-endian bytes right-aligned into dst, always
// leaving dst[0] == 0x00 — the engine's reference leading-zero quirk.
func putForcedZero(dst []byte, n *big.Int) {
	raw := n.Bytes()
	if len(raw) > len(dst)-1 {
		raw = raw[len(raw)-(len(dst)-1):]
	}
	copy(dst[len(dst)-len(raw):], raw)
}

// padMessage builds the PKCS#1-v1.5-style block:
// 0x00 || 0x02 || nonzero random padding || 0x00 || message.
func padMessage(message []byte) ([]byte, error) {
	if len(message) > MaxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", len(message), MaxMessageSize)
	}
	padLen := PlaintextSize - 3 - len(message)
	block := make([]byte, PlaintextSize)
	block[0] = 0x00
	block[1] = 0x02
	padding := block[2 : 2+padLen]
	if err := fillNonzero(padding); err != nil {
		return nil, err
	}
	block[2+padLen] = 0x00
	copy(block[3+padLen:], message)
	return block, nil
}

func unpadMessage(block []byte) ([]byte, error) {
	if len(block) != PlaintextSize || block[0] != 0x00 || block[1] != 0x02 {
		return nil, fmt.Errorf("invalid padding header")
	}
	i := 2
	for i < len(block) && block[i] != 0x00 {
		i++
	}
	if i == len(block) {
		return nil, fmt.Errorf("padding terminator not found")
	}
	return block[i+1:], nil
}

func fillNonzero(b []byte) error {
	for i := range b {
		var one [1]byte
		for {
			if _, err := rand.Read(one[:]); err != nil {
				return fmt.Errorf("fill padding byte: %w", err)
			}
			if one[0] != 0 {
				break
			}
		}
		b[i] = one[0]
	}
	return nil
}
