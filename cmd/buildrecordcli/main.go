package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kaonet/garlic-tbm/buildrecord"
	"github.com/kaonet/garlic-tbm/elgamal2048"
	"github.com/kaonet/garlic-tbm/keyfactory"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	format := flag.String("format", "modernShort", "record format: legacy, modernLong, modernShort")
	obep := flag.Bool("obep", false, "mark the hop as the outbound tunnel endpoint")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	fmt.Printf("=== garlic-tbm buildrecordcli %s ===\n", Version)

	cleartext, err := buildCleartext(*format, *obep)
	if err != nil {
		logger.Error("build cleartext", "error", err)
		os.Exit(1)
	}
	fmt.Printf("built %d-byte cleartext\n", len(cleartext))

	wire, dec, localKey, recipientPub, err := roundTrip(*format, cleartext, logger)
	if err != nil {
		logger.Error("round trip", "error", err)
		os.Exit(1)
	}
	fmt.Printf("encrypted to %d-byte wire record\n", len(wire))

	got, err := dec.Decrypt(wire, localKey, recipientPub)
	if err != nil {
		logger.Error("decrypt", "error", err)
		os.Exit(1)
	}

	reader, err := buildrecord.NewRecordReader(got)
	if err != nil {
		logger.Error("read recovered cleartext", "error", err)
		os.Exit(1)
	}
	reader.WithDerivedKeys(dec.LastDerivedKeys())

	printRecord(reader)
}

func buildCleartext(format string, obep bool) ([]byte, error) {
	rb := buildrecord.NewRecordBuilder()
	common := buildrecord.CommonFields{
		ReceiveTunnelID: 1,
		NextTunnelID:    2,
		NextHop:         randomIdentity(),
		NextMsgID:       3,
		Role:            buildrecord.HopRole{OutboundEndpoint: obep},
	}

	switch format {
	case "legacy":
		return rb.BuildLegacy(common, randomIdentity(), randomHopKeys())
	case "modernLong":
		return rb.BuildModernLong(common, randomHopKeys(), map[string]string{"demo": "true"})
	case "modernShort":
		return rb.BuildModernShort(common, 0, map[string]string{"demo": "true"})
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func roundTrip(format string, cleartext []byte, logger *slog.Logger) ([]byte, *buildrecord.RecordDecryptor, buildrecord.LocalKey, *[32]byte, error) {
	enc := &buildrecord.RecordEncryptor{KeyFactory: keyfactory.System{}}
	dec := &buildrecord.RecordDecryptor{Logger: logger}

	if format == "legacy" {
		priv, err := elgamal2048.GenerateKey()
		if err != nil {
			return nil, nil, buildrecord.LocalKey{}, nil, fmt.Errorf("generate ElGamal key: %w", err)
		}
		pub := priv.Public()
		wire, err := enc.Encrypt(cleartext, buildrecord.RecipientKey{ElGamal: &pub}, randomIdentity())
		if err != nil {
			return nil, nil, buildrecord.LocalKey{}, nil, err
		}
		return wire, dec, buildrecord.LocalKey{ElGamal: priv}, nil, nil
	}

	kp, err := keyfactory.System{}.GenerateKeyPair()
	if err != nil {
		return nil, nil, buildrecord.LocalKey{}, nil, fmt.Errorf("generate X25519 key: %w", err)
	}
	wire, err := enc.Encrypt(cleartext, buildrecord.RecipientKey{X25519: &kp.Public}, randomIdentity())
	if err != nil {
		return nil, nil, buildrecord.LocalKey{}, nil, err
	}
	return wire, dec, buildrecord.LocalKey{X25519: &kp.Private}, &kp.Public, nil
}

func printRecord(r *buildrecord.RecordReader) {
	fmt.Printf("format: %s\n", r.Format())
	fmt.Printf("receiveTunnelID: %d\n", r.ReceiveTunnelID())
	fmt.Printf("nextTunnelID: %d\n", r.NextTunnelID())
	fmt.Printf("nextMsgID: %d\n", r.NextMsgID())
	fmt.Printf("inboundGateway: %v, outboundEndpoint: %v\n", r.IsInboundGateway(), r.IsOutboundEndpoint())

	if layerKey, err := r.LayerKey(); err == nil {
		fmt.Printf("layerKey: %x\n", layerKey)
	}
	if garlic, err := r.GarlicKeys(); err == nil {
		fmt.Printf("garlicKey: %x, garlicTag: %x\n", garlic.Key, garlic.Tag)
	}
	if opts, err := r.Options(); err == nil {
		fmt.Printf("options: %v\n", opts)
	}
}

func randomIdentity() [32]byte {
	var h [32]byte
	_, _ = rand.Read(h[:])
	return h
}

func randomHopKeys() buildrecord.HopKeys {
	var k buildrecord.HopKeys
	_, _ = rand.Read(k.LayerKey[:])
	_, _ = rand.Read(k.IVKey[:])
	_, _ = rand.Read(k.ReplyKey[:])
	_, _ = rand.Read(k.ReplyIV[:])
	return k
}
