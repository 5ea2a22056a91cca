package buildrecord

import (
	"fmt"

	"github.com/kaonet/garlic-tbm/clock"
	"github.com/kaonet/garlic-tbm/randsrc"
)

// HopRole describes which of the two mutually-exclusive role flags (if
// either) this record's hop plays.
type HopRole struct {
	InboundGateway   bool
	OutboundEndpoint bool
}

func (r HopRole) validate() error {
	if r.InboundGateway && r.OutboundEndpoint {
		return fmt.Errorf("%w: inboundGateway and outboundEndpoint are mutually exclusive", ErrInvalidArgument)
	}
	return nil
}

func (r HopRole) flagByte() byte {
	var b byte
	if r.InboundGateway {
		b |= flagInboundGateway
	}
	if r.OutboundEndpoint {
		b |= flagOutboundEndpoint
	}
	return b
}

// CommonFields are the fields every format's builder accepts.
type CommonFields struct {
	ReceiveTunnelID uint32
	NextTunnelID    uint32
	NextHop         [32]byte
	NextMsgID       uint32
	Role            HopRole
}

// HopKeys are the four symmetric keys legacy and modern-long records carry
// in-band.
type HopKeys struct {
	LayerKey [32]byte
	IVKey    [32]byte
	ReplyKey [32]byte
	ReplyIV  [16]byte
}

func (k HopKeys) validate() error {
	if k.LayerKey == ([32]byte{}) || k.IVKey == ([32]byte{}) || k.ReplyKey == ([32]byte{}) || k.ReplyIV == ([16]byte{}) {
		return fmt.Errorf("%w: hop key material must not be all-zero", ErrInvalidArgument)
	}
	return nil
}

// RecordBuilder assembles cleartext build records. It draws from a Random
// source (padding, sub-quantum back-dating) and a Clock (the quantized
// request timestamp).
type RecordBuilder struct {
	Random randsrc.Random
	Clock  clock.Clock
}

// NewRecordBuilder returns a RecordBuilder backed by the default
// crypto/rand and wall-clock sources.
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{Random: randsrc.System{}, Clock: clock.System{}}
}

func (rb *RecordBuilder) quantizedTimestamp(f Format) (uint32, error) {
	window := f.AntiCorrelationWindowMillis()
	backdate, err := rb.Random.Uint32Below(window)
	if err != nil {
		return 0, fmt.Errorf("draw anti-correlation offset: %w", err)
	}
	now := rb.Clock.NowMillis()
	adjusted := now - int64(backdate)
	if adjusted < 0 {
		adjusted = 0
	}
	return uint32(adjusted / f.TimestampQuantumMillis()), nil
}

func (rb *RecordBuilder) fillPadding(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return rb.Random.Read(buf)
}

// BuildLegacy constructs a 222-byte legacy cleartext block.
//
// ourIdent is the identity hash of the hop this record is addressed to
// (embedded in-band in addition to the wire selector so the hop can
// confirm the record is truly its own after decrypting — see spec §6's
// legacy layout, which the distilled field list in §3 omits but the
// bit-exact offset table requires).
func (rb *RecordBuilder) BuildLegacy(common CommonFields, ourIdent [32]byte, keys HopKeys) ([]byte, error) {
	if err := common.Role.validate(); err != nil {
		return nil, err
	}
	if err := keys.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, LegacyCleartextLen)
	o := legacyOffsets

	putUint32(buf, o.receiveTunnelID, common.ReceiveTunnelID)
	copy(buf[o.ourIdent:o.ourIdent+32], ourIdent[:])
	putUint32(buf, o.nextTunnelID, common.NextTunnelID)
	copy(buf[o.nextHop:o.nextHop+32], common.NextHop[:])
	copy(buf[o.layerKey:o.layerKey+32], keys.LayerKey[:])
	copy(buf[o.ivKey:o.ivKey+32], keys.IVKey[:])
	copy(buf[o.replyKey:o.replyKey+32], keys.ReplyKey[:])
	copy(buf[o.replyIV:o.replyIV+16], keys.ReplyIV[:])
	buf[o.flags] = common.Role.flagByte()

	ts, err := rb.quantizedTimestamp(Legacy)
	if err != nil {
		return nil, err
	}
	putUint32(buf, o.requestTime, ts)
	putUint32(buf, o.nextMsgID, common.NextMsgID)

	if err := rb.fillPadding(buf[o.fixedHeaderLen:]); err != nil {
		return nil, fmt.Errorf("fill legacy padding: %w", err)
	}
	return buf, nil
}

// FixedExpirationSeconds is the 600-second expiration every format uses:
// declared in-band for the modern formats, implicit for legacy (spec §4.1).
const FixedExpirationSeconds = 600

// BuildModernLong constructs a 464-byte modern-long cleartext block.
func (rb *RecordBuilder) BuildModernLong(common CommonFields, keys HopKeys, options map[string]string) ([]byte, error) {
	if err := common.Role.validate(); err != nil {
		return nil, err
	}
	if err := keys.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, ModernLongCleartextLen)
	o := modernLongOffsets

	putUint32(buf, o.receiveTunnelID, common.ReceiveTunnelID)
	putUint32(buf, o.nextTunnelID, common.NextTunnelID)
	copy(buf[o.nextHop:o.nextHop+32], common.NextHop[:])
	copy(buf[o.layerKey:o.layerKey+32], keys.LayerKey[:])
	copy(buf[o.ivKey:o.ivKey+32], keys.IVKey[:])
	copy(buf[o.replyKey:o.replyKey+32], keys.ReplyKey[:])
	copy(buf[o.replyIV:o.replyIV+16], keys.ReplyIV[:])
	buf[o.flags] = common.Role.flagByte()

	ts, err := rb.quantizedTimestamp(ModernLong)
	if err != nil {
		return nil, err
	}
	putUint32(buf, o.requestTime, ts)
	putUint32(buf, o.expirationSec, FixedExpirationSeconds)
	putUint32(buf, o.nextMsgID, common.NextMsgID)

	return rb.writeOptionsAndPad(buf, ModernLong, options)
}

// BuildModernShort constructs a 154-byte modern-short cleartext block.
// layerEncType names the in-band cipher selector for the (derived) layer
// key; 0 is the only currently defined value.
func (rb *RecordBuilder) BuildModernShort(common CommonFields, layerEncType uint8, options map[string]string) ([]byte, error) {
	if err := common.Role.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, ModernShortCleartextLen)
	o := modernShortOffsets

	putUint32(buf, o.receiveTunnelID, common.ReceiveTunnelID)
	putUint32(buf, o.nextTunnelID, common.NextTunnelID)
	copy(buf[o.nextHop:o.nextHop+32], common.NextHop[:])
	buf[o.flags] = common.Role.flagByte()
	buf[o.layerEncType] = layerEncType

	ts, err := rb.quantizedTimestamp(ModernShort)
	if err != nil {
		return nil, err
	}
	putUint32(buf, o.requestTime, ts)
	putUint32(buf, o.expirationSec, FixedExpirationSeconds)
	putUint32(buf, o.nextMsgID, common.NextMsgID)

	return rb.writeOptionsAndPad(buf, ModernShort, options)
}

func (rb *RecordBuilder) writeOptionsAndPad(buf []byte, f Format, options map[string]string) ([]byte, error) {
	o := f.offsets()
	encoded, err := EncodeOptions(options, f.MaxOptionsBytes())
	if err != nil {
		return nil, err
	}
	copy(buf[o.optionsStart:], encoded)
	if err := rb.fillPadding(buf[o.optionsStart+len(encoded):]); err != nil {
		return nil, fmt.Errorf("fill padding: %w", err)
	}
	return buf, nil
}

func putUint32(buf []byte, off int, v uint32) {
	buf[off] = byte(v >> 24)
	buf[off+1] = byte(v >> 16)
	buf[off+2] = byte(v >> 8)
	buf[off+3] = byte(v)
}

func getUint32(buf []byte, off int) uint32 {
	return uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
}
