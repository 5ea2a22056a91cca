// Package buildrecord implements the tunnel build request record codec:
// three fixed-size, encrypted instruction blocks (legacy long, modern
// long, modern short) that tell one hop of a newly built tunnel what its
// role is, which keys to use, and how to reply.
//
// A Format tag plus a per-format offset table (this file) replace the
// scattered "isEC ? ... : ..." branching a straight port would carry;
// RecordBuilder, RecordEncryptor, RecordDecryptor, and RecordReader all
// dispatch on Format rather than inspecting lengths ad hoc.
package buildrecord

import "fmt"

// Format identifies one of the three wire/cleartext layouts this codec
// produces and consumes.
type Format int

const (
	// Legacy is the 222-byte cleartext / 528-byte wire ElGamal-2048 format.
	Legacy Format = iota
	// ModernLong is the 464-byte cleartext / 528-byte wire Noise-N format.
	ModernLong
	// ModernShort is the 154-byte cleartext / 218-byte wire Noise-N format
	// with derived (not in-band) reply/layer/IV keys.
	ModernShort
)

func (f Format) String() string {
	switch f {
	case Legacy:
		return "legacy"
	case ModernLong:
		return "modernLong"
	case ModernShort:
		return "modernShort"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Cleartext and wire lengths, per spec §3/§6.
const (
	LegacyCleartextLen = 222
	LegacyWireLen      = 528

	ModernLongCleartextLen = 464
	ModernLongWireLen      = 528

	ModernShortCleartextLen = 154
	ModernShortWireLen      = 218

	// SelectorLen is the truncated-identity prefix on every wire record.
	SelectorLen = 16
)

// FormatForCleartextLen selects a Format by cleartext length, per the
// invariant that length ∈ {222, 464, 154} is the only legal cleartext.
func FormatForCleartextLen(n int) (Format, error) {
	switch n {
	case LegacyCleartextLen:
		return Legacy, nil
	case ModernLongCleartextLen:
		return ModernLong, nil
	case ModernShortCleartextLen:
		return ModernShort, nil
	default:
		return 0, fmt.Errorf("%w: cleartext length %d", ErrMalformedCleartext, n)
	}
}

// FormatForWireLen reports whether n is a legal encrypted wire length (528
// or 218). It returns no Format: Legacy and ModernLong are both 528 bytes
// on the wire and cannot be distinguished by length alone; callers pick
// the legacy path only when the local key type is ElGamal (see
// RecordDecryptor).
func FormatForWireLen(n int) (ok bool, err error) {
	switch n {
	case LegacyWireLen, ModernShortWireLen:
		return true, nil
	default:
		return false, fmt.Errorf("%w: wire length %d", ErrMalformedCleartext, n)
	}
}

// CleartextLen returns the fixed cleartext length of f.
func (f Format) CleartextLen() int {
	switch f {
	case Legacy:
		return LegacyCleartextLen
	case ModernLong:
		return ModernLongCleartextLen
	case ModernShort:
		return ModernShortCleartextLen
	default:
		return 0
	}
}

// WireLen returns the fixed encrypted wire length of f.
func (f Format) WireLen() int {
	switch f {
	case Legacy, ModernLong:
		return LegacyWireLen
	case ModernShort:
		return ModernShortWireLen
	default:
		return 0
	}
}

// TimestampQuantumMillis returns the unit request timestamps are stored in:
// one hour for legacy, one minute for modern formats.
func (f Format) TimestampQuantumMillis() int64 {
	if f == Legacy {
		return 60 * 60 * 1000
	}
	return 60 * 1000
}

// AntiCorrelationWindowMillis returns the sub-quantum back-dating window
// RecordBuilder draws from (§4.1): up to 90s for legacy, up to 2048ms for
// modern formats.
func (f Format) AntiCorrelationWindowMillis() uint32 {
	if f == Legacy {
		return 90_000
	}
	return 2_048
}

// MaxOptionsBytes returns the serialized-options ceiling (including the
// OptionsCodec's own 2-byte length prefix); 0 for legacy, which carries no
// options at all.
func (f Format) MaxOptionsBytes() int {
	switch f {
	case ModernLong:
		return 296
	case ModernShort:
		return 98
	default:
		return 0
	}
}

// offsets describes the fixed-field byte positions within a format's
// cleartext block. Every format-aware component indexes through this
// table instead of hard-coding offsets inline.
type offsets struct {
	receiveTunnelID int
	ourIdent        int // legacy only; -1 elsewhere
	nextTunnelID    int
	nextHop         int
	layerKey        int // legacy/modernLong only; -1 elsewhere
	ivKey           int // legacy/modernLong only; -1 elsewhere
	replyKey        int // legacy/modernLong only; -1 elsewhere
	replyIV         int // legacy/modernLong only; -1 elsewhere
	flags           int
	layerEncType    int // modernShort only; -1 elsewhere
	requestTime     int
	expirationSec   int // modernLong/modernShort only; -1 elsewhere
	nextMsgID       int
	optionsStart    int // modernLong/modernShort only; -1 elsewhere
	fixedHeaderLen  int // length of everything before the options/padding region
}

var legacyOffsets = offsets{
	receiveTunnelID: 0,
	ourIdent:        4,
	nextTunnelID:    36,
	nextHop:         40,
	layerKey:        72,
	ivKey:           104,
	replyKey:        136,
	replyIV:         168,
	flags:           184,
	layerEncType:    -1,
	requestTime:     185,
	expirationSec:   -1,
	nextMsgID:       189,
	optionsStart:    -1,
	fixedHeaderLen:  193,
}

var modernLongOffsets = offsets{
	receiveTunnelID: 0,
	ourIdent:        -1,
	nextTunnelID:    4,
	nextHop:         8,
	layerKey:        40,
	ivKey:           72,
	replyKey:        104,
	replyIV:         136,
	flags:           152,
	layerEncType:    -1,
	requestTime:     156,
	expirationSec:   160,
	nextMsgID:       164,
	optionsStart:    168,
	fixedHeaderLen:  168,
}

var modernShortOffsets = offsets{
	receiveTunnelID: 0,
	ourIdent:        -1,
	nextTunnelID:    4,
	nextHop:         8,
	layerKey:        -1,
	ivKey:           -1,
	replyKey:        -1,
	replyIV:         -1,
	flags:           40,
	layerEncType:    43,
	requestTime:     44,
	expirationSec:   48,
	nextMsgID:       52,
	optionsStart:    56,
	fixedHeaderLen:  56,
}

func (f Format) offsets() offsets {
	switch f {
	case Legacy:
		return legacyOffsets
	case ModernLong:
		return modernLongOffsets
	default:
		return modernShortOffsets
	}
}

const (
	flagInboundGateway   = 0x80
	flagOutboundEndpoint = 0x40
)
