package buildrecord

import (
	"fmt"

	"github.com/kaonet/garlic-tbm/tunnelkeys"
)

// RecordReader provides typed, format-hiding accessors over a decoded
// cleartext record. Construct one with NewRecordReader after a
// RecordDecryptor.Decrypt call (or directly over a freshly built
// cleartext, before encryption, for testing).
type RecordReader struct {
	format    Format
	cleartext []byte
	derived   *tunnelkeys.Derived // modern-short only, set once decrypt/encrypt has run
}

// NewRecordReader wraps cleartext for reading. cleartext's length must be
// one of {222, 464, 154}; any other length is ErrMalformedCleartext.
func NewRecordReader(cleartext []byte) (*RecordReader, error) {
	f, err := FormatForCleartextLen(len(cleartext))
	if err != nil {
		return nil, err
	}
	return &RecordReader{format: f, cleartext: cleartext}, nil
}

// WithDerivedKeys attaches the modern-short derived key schedule obtained
// from RecordEncryptor.Encrypt or RecordDecryptor.Decrypt. Calling it on a
// non-modern-short reader is harmless but the value is never consulted.
func (r *RecordReader) WithDerivedKeys(d *tunnelkeys.Derived) *RecordReader {
	r.derived = d
	return r
}

// Format reports which of the three layouts this reader is over.
func (r *RecordReader) Format() Format { return r.format }

func (r *RecordReader) ReceiveTunnelID() uint32 {
	return getUint32(r.cleartext, r.format.offsets().receiveTunnelID)
}

func (r *RecordReader) NextTunnelID() uint32 {
	return getUint32(r.cleartext, r.format.offsets().nextTunnelID)
}

func (r *RecordReader) NextHop() [32]byte {
	var h [32]byte
	o := r.format.offsets().nextHop
	copy(h[:], r.cleartext[o:o+32])
	return h
}

func (r *RecordReader) NextMsgID() uint32 {
	return getUint32(r.cleartext, r.format.offsets().nextMsgID)
}

// OurIdent returns the in-band identity hash of the hop this record is
// addressed to. Legacy only; modern formats don't carry this field.
func (r *RecordReader) OurIdent() ([32]byte, error) {
	var h [32]byte
	o := r.format.offsets().ourIdent
	if o < 0 {
		return h, fmt.Errorf("%w: %s records carry no in-band ourIdent field", ErrIllegalState, r.format)
	}
	copy(h[:], r.cleartext[o:o+32])
	return h, nil
}

// RequestTimeMillis returns the quantized request timestamp, converted
// back to milliseconds.
func (r *RecordReader) RequestTimeMillis() int64 {
	quantum := getUint32(r.cleartext, r.format.offsets().requestTime)
	return int64(quantum) * r.format.TimestampQuantumMillis()
}

// ExpirationMillis returns the record's declared expiration: a fixed
// 600000ms for legacy, or the in-band field (seconds, converted to
// milliseconds) for modern formats.
func (r *RecordReader) ExpirationMillis() int64 {
	if r.format == Legacy {
		return FixedExpirationSeconds * 1000
	}
	sec := getUint32(r.cleartext, r.format.offsets().expirationSec)
	return int64(sec) * 1000
}

func (r *RecordReader) flags() byte {
	return r.cleartext[r.format.offsets().flags]
}

func (r *RecordReader) IsInboundGateway() bool {
	return r.flags()&flagInboundGateway != 0
}

func (r *RecordReader) IsOutboundEndpoint() bool {
	return r.flags()&flagOutboundEndpoint != 0
}

// LayerKey returns the layer key: read directly from the cleartext for
// legacy/modern-long, or from derived state for modern-short.
func (r *RecordReader) LayerKey() ([32]byte, error) {
	var k [32]byte
	if o := r.format.offsets().layerKey; o >= 0 {
		copy(k[:], r.cleartext[o:o+32])
		return k, nil
	}
	if r.derived == nil {
		return k, fmt.Errorf("%w: layer key not yet derived", ErrIllegalState)
	}
	return r.derived.LayerKey, nil
}

// IVKey returns the IV key, mirroring LayerKey's dispatch.
func (r *RecordReader) IVKey() ([32]byte, error) {
	var k [32]byte
	if o := r.format.offsets().ivKey; o >= 0 {
		copy(k[:], r.cleartext[o:o+32])
		return k, nil
	}
	if r.derived == nil {
		return k, fmt.Errorf("%w: IV key not yet derived", ErrIllegalState)
	}
	return r.derived.IVKey, nil
}

// ReplyKey returns the in-band reply key. Legacy and modern-long only;
// modern-short always fails with ErrIllegalState since its reply key
// lives only in derived state, never in the cleartext.
func (r *RecordReader) ReplyKey() ([32]byte, error) {
	var k [32]byte
	o := r.format.offsets().replyKey
	if o < 0 {
		return k, fmt.Errorf("%w: %s records carry no in-band reply key", ErrIllegalState, r.format)
	}
	copy(k[:], r.cleartext[o:o+32])
	return k, nil
}

// ReplyIV mirrors ReplyKey's dispatch for the 16-byte reply IV.
func (r *RecordReader) ReplyIV() ([16]byte, error) {
	var v [16]byte
	o := r.format.offsets().replyIV
	if o < 0 {
		return v, fmt.Errorf("%w: %s records carry no in-band reply IV", ErrIllegalState, r.format)
	}
	copy(v[:], r.cleartext[o:o+16])
	return v, nil
}

// Options parses the embedded options mapping. Legacy carries none.
func (r *RecordReader) Options() (map[string]string, error) {
	o := r.format.offsets().optionsStart
	if o < 0 {
		return nil, fmt.Errorf("%w: %s records carry no options", ErrIllegalState, r.format)
	}
	return DecodeOptions(r.cleartext[o:]), nil
}

// LayerEncType returns the modern-short layer-cipher selector; 0 for every
// other format.
func (r *RecordReader) LayerEncType() uint8 {
	o := r.format.offsets().layerEncType
	if o < 0 {
		return 0
	}
	return r.cleartext[o]
}

// GarlicKeyPair is the derived symmetric key and tag handed to the
// downstream garlic session subsystem, produced only for modern-short
// outbound-endpoint records.
type GarlicKeyPair struct {
	Key [32]byte
	Tag [32]byte
}

// GarlicKeys returns the derived garlic key/tag pair. Only populated for
// modern-short outbound-endpoint records whose decrypt/encrypt-time
// derivation has run.
func (r *RecordReader) GarlicKeys() (GarlicKeyPair, error) {
	if r.format != ModernShort || !r.IsOutboundEndpoint() {
		return GarlicKeyPair{}, fmt.Errorf("%w: garlic keys only exist for modern-short outbound-endpoint records", ErrIllegalState)
	}
	if r.derived == nil || !r.derived.HasGarlic {
		return GarlicKeyPair{}, fmt.Errorf("%w: garlic keys not yet derived", ErrIllegalState)
	}
	return GarlicKeyPair{Key: r.derived.GarlicKey, Tag: r.derived.GarlicTag}, nil
}
