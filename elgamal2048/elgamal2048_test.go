package elgamal2048

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	msg := make([]byte, 222)
	for i := range msg {
		msg[i] = byte(i)
	}

	a, b, err := Encrypt(priv.Public(), msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a[0] != 0 || b[0] != 0 {
		t.Fatal("expected forced leading zero byte on both halves")
	}

	got, err := Decrypt(priv, a, b)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("round trip mismatch: got %x want %x", got, msg)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	priv, _ := GenerateKey()
	other, _ := GenerateKey()

	msg := []byte("legacy tunnel build record cleartext")
	a, b, err := Encrypt(priv.Public(), msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(other, a, b)
	if err == nil && bytes.Equal(got, msg) {
		t.Fatal("decrypt succeeded with the wrong private key")
	}
}

func TestEncryptRejectsOversizedMessage(t *testing.T) {
	priv, _ := GenerateKey()
	_, _, err := Encrypt(priv.Public(), make([]byte, MaxMessageSize+1))
	if err == nil {
		t.Fatal("expected oversized message to be rejected")
	}
}
