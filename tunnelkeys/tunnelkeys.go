// Package tunnelkeys implements the modern-short build record's
// post-handshake key derivation chain: a sequence of RFC-5869 HKDF
// extract+expand steps over the Noise N chaining key, each producing a
// fresh chaining key and one named 32-byte output key.
//
// The chain mirrors the teacher's hs-ntor key expansion
// (onion/hsntor.go's HsNtorExpandKeys) in shape — derive everything from
// one running secret — but uses HMAC-SHA-256 HKDF instead of a SHAKE256
// sponge, per this format's key schedule.
package tunnelkeys

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Labels are the ASCII HKDF info strings for each derivation step.
const (
	LabelReplyKey = "SMTunnelReplyKey"
	LabelLayerKey = "SMTunnelLayerKey"
	LabelIVKey    = "TunnelLayerIVKey"
	LabelGarlic   = "RGarlicKeyAndTag"
)

// Step runs one HKDF(salt=ck, ikm=empty, info=label) extract+expand,
// producing a fresh chaining key and a named 32-byte output key.
func Step(ck [32]byte, label string) (nextCK, outKey [32]byte, err error) {
	r := hkdf.New(sha256.New, nil, ck[:], []byte(label))
	var out [64]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return nextCK, outKey, fmt.Errorf("HKDF step %q: %w", label, err)
	}
	copy(nextCK[:], out[:32])
	copy(outKey[:], out[32:])
	return nextCK, outKey, nil
}

// Derived holds the full modern-short key schedule output.
type Derived struct {
	ReplyKey [32]byte
	LayerKey [32]byte
	IVKey    [32]byte

	HasGarlic bool
	GarlicKey [32]byte
	GarlicTag [32]byte
}

// Derive runs the complete chain described in spec §4.2 step 6:
//
//	(ck1, replyKey) = Step(ck, LabelReplyKey)
//	(ck2, layerKey) = Step(ck1, LabelLayerKey)
//	outbound endpoint: (ck3, ivKey) = Step(ck2, LabelIVKey); (garlicTag, garlicKey) = Step(ck3, LabelGarlic)
//	otherwise:         ivKey = ck2 directly, no further expansion.
func Derive(ck [32]byte, outboundEndpoint bool) (Derived, error) {
	var d Derived

	ck1, replyKey, err := Step(ck, LabelReplyKey)
	if err != nil {
		return d, err
	}
	d.ReplyKey = replyKey

	ck2, layerKey, err := Step(ck1, LabelLayerKey)
	if err != nil {
		return d, err
	}
	d.LayerKey = layerKey

	if !outboundEndpoint {
		d.IVKey = ck2
		return d, nil
	}

	ck3, ivKey, err := Step(ck2, LabelIVKey)
	if err != nil {
		return d, err
	}
	d.IVKey = ivKey

	garlicTag, garlicKey, err := Step(ck3, LabelGarlic)
	if err != nil {
		return d, err
	}
	d.HasGarlic = true
	d.GarlicKey = garlicKey
	d.GarlicTag = garlicTag
	return d, nil
}
