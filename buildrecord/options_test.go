package buildrecord

import (
	"errors"
	"reflect"
	"testing"
)

func TestOptionsRoundTrip(t *testing.T) {
	opts := map[string]string{"foo": "bar", "baz": "quux"}
	encoded, err := EncodeOptions(opts, 296)
	if err != nil {
		t.Fatalf("EncodeOptions: %v", err)
	}
	got := DecodeOptions(encoded)
	if !reflect.DeepEqual(got, opts) {
		t.Fatalf("round trip mismatch: got %v want %v", got, opts)
	}
}

func TestOptionsEmptyRoundTrip(t *testing.T) {
	encoded, err := EncodeOptions(map[string]string{}, 98)
	if err != nil {
		t.Fatalf("EncodeOptions: %v", err)
	}
	got := DecodeOptions(encoded)
	if len(got) != 0 {
		t.Fatalf("expected empty mapping, got %v", got)
	}
}

func TestOptionsTolerateTrailingPadding(t *testing.T) {
	encoded, err := EncodeOptions(map[string]string{"a": "b"}, 98)
	if err != nil {
		t.Fatalf("EncodeOptions: %v", err)
	}
	padded := append(encoded, 0xDE, 0xAD, 0xBE, 0xEF)
	got := DecodeOptions(padded)
	if got["a"] != "b" {
		t.Fatalf("expected {a:b}, got %v", got)
	}
}

func TestOptionsDecodeCorruptedHeaderIsNonFatal(t *testing.T) {
	garbage := []byte{0xFF, 0xFF, 1, 2, 3}
	got := DecodeOptions(garbage)
	if len(got) != 0 {
		t.Fatalf("expected empty mapping for corrupted header, got %v", got)
	}
}

func TestOptionsOversizedFailsBudget(t *testing.T) {
	opts := map[string]string{"foo": "bar"}
	if _, err := EncodeOptions(opts, 4); err == nil {
		t.Fatal("expected ErrOversizedOptions")
	} else if !errors.Is(err, ErrOversizedOptions) {
		t.Fatalf("expected ErrOversizedOptions, got %v", err)
	}
}

func TestModernShortOptionsBoundary(t *testing.T) {
	// 98-byte budget; construct options whose serialized form is exactly
	// 98 and 99 bytes.
	const budget = 98
	// entry overhead = klen+vlen+4; prefix = 2.
	value98 := make([]byte, 91)
	for i := range value98 {
		value98[i] = 'x'
	}
	opts98 := map[string]string{"k": string(value98)}
	if n := EncodedOptionsLen(opts98); n != budget {
		t.Fatalf("test fixture miscalibrated: encoded len = %d, want %d", n, budget)
	}
	if _, err := EncodeOptions(opts98, budget); err != nil {
		t.Fatalf("expected exactly-98-byte options to succeed: %v", err)
	}

	value99 := make([]byte, 92)
	for i := range value99 {
		value99[i] = 'x'
	}
	opts99 := map[string]string{"k": string(value99)}
	if n := EncodedOptionsLen(opts99); n != budget+1 {
		t.Fatalf("test fixture miscalibrated: encoded len = %d, want %d", n, budget+1)
	}
	if _, err := EncodeOptions(opts99, budget); !errors.Is(err, ErrOversizedOptions) {
		t.Fatalf("expected 99-byte options to fail with ErrOversizedOptions, got %v", err)
	}
}
