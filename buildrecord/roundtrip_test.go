package buildrecord

import (
	"bytes"
	"testing"
	"time"

	"github.com/kaonet/garlic-tbm/elgamal2048"
	"github.com/kaonet/garlic-tbm/keyfactory"
)

func newX25519Pair(t *testing.T) (priv [32]byte, pub [32]byte) {
	t.Helper()
	kp, err := keyfactory.System{}.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate X25519 pair: %v", err)
	}
	return kp.Private, kp.Public
}

func testCommon() CommonFields {
	var nextHop [32]byte
	for i := range nextHop {
		nextHop[i] = byte(i + 1)
	}
	return CommonFields{
		ReceiveTunnelID: 1,
		NextTunnelID:    2,
		NextHop:         nextHop,
		NextMsgID:       3,
		Role:            HopRole{InboundGateway: true},
	}
}

func testHopKeys() HopKeys {
	var k HopKeys
	for i := range k.LayerKey {
		k.LayerKey[i] = 0x11
	}
	for i := range k.IVKey {
		k.IVKey[i] = 0x22
	}
	for i := range k.ReplyKey {
		k.ReplyKey[i] = 0x33
	}
	for i := range k.ReplyIV {
		k.ReplyIV[i] = 0x44
	}
	return k
}

func identityHash(seed byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = seed
	}
	return h
}

func TestLegacyBuildEncryptDecryptRoundTrip(t *testing.T) {
	priv, err := elgamal2048.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pub := priv.Public()

	rb := NewRecordBuilder()
	ourIdent := identityHash(0x00)
	cleartext, err := rb.BuildLegacy(testCommon(), ourIdent, testHopKeys())
	if err != nil {
		t.Fatalf("BuildLegacy: %v", err)
	}
	if len(cleartext) != LegacyCleartextLen {
		t.Fatalf("cleartext length = %d, want %d", len(cleartext), LegacyCleartextLen)
	}
	if cleartext[184] != 0x80 {
		t.Fatalf("flags byte = %#x, want 0x80", cleartext[184])
	}

	recipientIdent := identityHash(0xAB)
	enc := &RecordEncryptor{}
	wire, err := enc.Encrypt(cleartext, RecipientKey{ElGamal: &pub}, recipientIdent)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(wire) != LegacyWireLen {
		t.Fatalf("wire length = %d, want %d", len(wire), LegacyWireLen)
	}
	if !bytes.Equal(wire[:SelectorLen], recipientIdent[:SelectorLen]) {
		t.Fatal("selector prefix does not match recipient identity hash")
	}

	dec := &RecordDecryptor{}
	got, err := dec.Decrypt(wire, LocalKey{ElGamal: priv}, nil)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, cleartext) {
		t.Fatal("decrypted cleartext does not match original")
	}

	reader, err := NewRecordReader(got)
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	if reader.ReceiveTunnelID() != 1 || reader.NextTunnelID() != 2 || reader.NextMsgID() != 3 {
		t.Fatal("common fields did not round trip")
	}
	if !reader.IsInboundGateway() || reader.IsOutboundEndpoint() {
		t.Fatal("role flags did not round trip")
	}
	gotIdent, err := reader.OurIdent()
	if err != nil || gotIdent != ourIdent {
		t.Fatalf("OurIdent round trip: got %v, err %v", gotIdent, err)
	}
	if reader.ExpirationMillis() != 600_000 {
		t.Fatalf("legacy expiration = %d, want 600000", reader.ExpirationMillis())
	}
}

func TestModernLongEncryptDecryptDerivedKeysAgree(t *testing.T) {
	priv, pub := newX25519Pair(t)

	rb := NewRecordBuilder()
	cleartext, err := rb.BuildModernLong(testCommon(), testHopKeys(), map[string]string{"foo": "bar"})
	if err != nil {
		t.Fatalf("BuildModernLong: %v", err)
	}
	if len(cleartext) != ModernLongCleartextLen {
		t.Fatalf("cleartext length = %d, want %d", len(cleartext), ModernLongCleartextLen)
	}

	enc := &RecordEncryptor{KeyFactory: keyfactory.System{}}
	wire, err := enc.Encrypt(cleartext, RecipientKey{X25519: &pub}, identityHash(0xCD))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(wire) != ModernLongWireLen {
		t.Fatalf("wire length = %d, want %d", len(wire), ModernLongWireLen)
	}

	dec := &RecordDecryptor{}
	got, err := dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, cleartext) {
		t.Fatal("decrypted cleartext does not match original")
	}

	if enc.ChachaReplyKey() != dec.LastHandshake().ChainingKey {
		t.Fatal("chachaReplyKey disagreement between encrypt and decrypt")
	}
	if enc.ChachaReplyAD() != dec.LastHandshake().Hash {
		t.Fatal("chachaReplyAD disagreement between encrypt and decrypt")
	}

	reader, err := NewRecordReader(got)
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	opts, err := reader.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts["foo"] != "bar" {
		t.Fatalf("options round trip: got %v", opts)
	}
}

func TestModernShortOutboundEndpointProducesGarlicKeys(t *testing.T) {
	priv, pub := newX25519Pair(t)

	common := testCommon()
	common.Role = HopRole{OutboundEndpoint: true}

	rb := NewRecordBuilder()
	cleartext, err := rb.BuildModernShort(common, 0, map[string]string{})
	if err != nil {
		t.Fatalf("BuildModernShort: %v", err)
	}
	if len(cleartext) != ModernShortCleartextLen {
		t.Fatalf("cleartext length = %d, want %d", len(cleartext), ModernShortCleartextLen)
	}

	enc := &RecordEncryptor{KeyFactory: keyfactory.System{}}
	wire, err := enc.Encrypt(cleartext, RecipientKey{X25519: &pub}, identityHash(0xEF))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(wire) != ModernShortWireLen {
		t.Fatalf("wire length = %d, want %d", len(wire), ModernShortWireLen)
	}

	dec := &RecordDecryptor{}
	got, err := dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	encReader, err := NewRecordReader(cleartext)
	if err != nil {
		t.Fatalf("NewRecordReader(cleartext): %v", err)
	}
	encReader.WithDerivedKeys(enc.LastDerivedKeys())

	decReader, err := NewRecordReader(got)
	if err != nil {
		t.Fatalf("NewRecordReader(got): %v", err)
	}
	decReader.WithDerivedKeys(dec.LastDerivedKeys())

	if _, err := decReader.ReplyKey(); err == nil {
		t.Fatal("expected ReplyKey to fail with ErrIllegalState on modern-short")
	}
	if _, err := decReader.ReplyIV(); err == nil {
		t.Fatal("expected ReplyIV to fail with ErrIllegalState on modern-short")
	}

	encGarlic, err := encReader.GarlicKeys()
	if err != nil {
		t.Fatalf("encrypt-side GarlicKeys: %v", err)
	}
	decGarlic, err := decReader.GarlicKeys()
	if err != nil {
		t.Fatalf("decrypt-side GarlicKeys: %v", err)
	}
	if encGarlic != decGarlic {
		t.Fatal("garlic key/tag disagreement between encrypt and decrypt")
	}

	encLayer, err := encReader.LayerKey()
	if err != nil {
		t.Fatalf("encrypt-side LayerKey: %v", err)
	}
	decLayer, err := decReader.LayerKey()
	if err != nil {
		t.Fatalf("decrypt-side LayerKey: %v", err)
	}
	if encLayer != decLayer {
		t.Fatal("layer key disagreement between encrypt and decrypt")
	}
}

func TestModernShortNonOBEPHasNoGarlicKeys(t *testing.T) {
	priv, pub := newX25519Pair(t)

	common := testCommon() // InboundGateway, not OutboundEndpoint
	rb := NewRecordBuilder()
	cleartext, err := rb.BuildModernShort(common, 0, map[string]string{})
	if err != nil {
		t.Fatalf("BuildModernShort: %v", err)
	}

	enc := &RecordEncryptor{KeyFactory: keyfactory.System{}}
	wire, err := enc.Encrypt(cleartext, RecipientKey{X25519: &pub}, identityHash(0x01))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	dec := &RecordDecryptor{}
	got, err := dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	reader, err := NewRecordReader(got)
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	reader.WithDerivedKeys(dec.LastDerivedKeys())

	if _, err := reader.GarlicKeys(); err == nil {
		t.Fatal("expected GarlicKeys to fail for non-outbound-endpoint record")
	}
}

func TestMaliciousEphemeralKeyRejected(t *testing.T) {
	priv, pub := newX25519Pair(t)

	rb := NewRecordBuilder()
	cleartext, err := rb.BuildModernShort(testCommon(), 0, nil)
	if err != nil {
		t.Fatalf("BuildModernShort: %v", err)
	}

	enc := &RecordEncryptor{KeyFactory: keyfactory.System{}}
	wire, err := enc.Encrypt(cleartext, RecipientKey{X25519: &pub}, identityHash(0x02))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Forge the ephemeral public key's top bit.
	wire[SelectorLen+31] |= 0x80

	dec := &RecordDecryptor{}
	_, err = dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err == nil {
		t.Fatal("expected decrypt failure on malformed ephemeral key")
	}
	if err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptRejectsAllZeroEphemeralKey(t *testing.T) {
	priv, pub := newX25519Pair(t)
	wire := make([]byte, ModernShortWireLen)
	copy(wire[:SelectorLen], identityHash(0x03)[:SelectorLen])
	// ephemeral key bytes already zero.

	dec := &RecordDecryptor{}
	_, err := dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed for all-zero ephemeral key, got %v", err)
	}
}

func TestDecryptRejectsEphemeralKeyEqualToOurs(t *testing.T) {
	priv, pub := newX25519Pair(t)
	wire := make([]byte, ModernShortWireLen)
	copy(wire[:SelectorLen], identityHash(0x04)[:SelectorLen])
	copy(wire[SelectorLen:SelectorLen+32], pub[:])

	dec := &RecordDecryptor{}
	_, err := dec.Decrypt(wire, LocalKey{X25519: &priv}, &pub)
	if err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed when ephemeral key equals our own, got %v", err)
	}
}

func TestBuilderRejectsConflictingRoleFlags(t *testing.T) {
	rb := NewRecordBuilder()
	common := testCommon()
	common.Role = HopRole{InboundGateway: true, OutboundEndpoint: true}
	if _, err := rb.BuildModernShort(common, 0, nil); err == nil {
		t.Fatal("expected conflicting role flags to be rejected")
	}
}

func TestRequestTimeWithinQuantumOfBuildTime(t *testing.T) {
	rb := NewRecordBuilder()
	before := time.Now().UnixMilli()
	cleartext, err := rb.BuildModernShort(testCommon(), 0, nil)
	if err != nil {
		t.Fatalf("BuildModernShort: %v", err)
	}
	reader, err := NewRecordReader(cleartext)
	if err != nil {
		t.Fatalf("NewRecordReader: %v", err)
	}
	got := reader.RequestTimeMillis()
	if before-got > 65_000 || got > before {
		t.Fatalf("request time %d too far from build time %d", got, before)
	}
}

