package substrate

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func testPubKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestSS58_RoundTrip(t *testing.T) {
	key := testPubKey()

	// One-byte and two-byte prefix forms.
	for _, prefix := range []uint16{0, 2, 42, 63, 64, 255, 7391} {
		addr, err := EncodeAddress(key, prefix)
		if err != nil {
			t.Fatalf("EncodeAddress(prefix=%d): %v", prefix, err)
		}

		gotKey, gotPrefix, err := DecodeAddress(addr)
		if err != nil {
			t.Fatalf("DecodeAddress(prefix=%d): %v", prefix, err)
		}
		if gotPrefix != prefix {
			t.Errorf("prefix round trip: got %d, want %d", gotPrefix, prefix)
		}
		if !bytes.Equal(gotKey, key) {
			t.Errorf("key round trip failed for prefix %d", prefix)
		}
	}
}

func TestSS58_ChecksumDetectsCorruption(t *testing.T) {
	addr, err := EncodeAddress(testPubKey(), 2)
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := base58.Decode(addr)
	raw[5] ^= 0x01
	corrupted := base58.Encode(raw)

	_, _, err = DecodeAddress(corrupted)
	if !errors.Is(err, ErrInvalidChecksum) {
		t.Errorf("expected ErrInvalidChecksum, got %v", err)
	}
}

func TestSS58_Reencode(t *testing.T) {
	key := testPubKey()
	generic, err := EncodeAddress(key, 42)
	if err != nil {
		t.Fatal(err)
	}

	statemine, err := ReencodeAddress(generic, 2)
	if err != nil {
		t.Fatalf("ReencodeAddress: %v", err)
	}
	gotKey, gotPrefix, err := DecodeAddress(statemine)
	if err != nil {
		t.Fatal(err)
	}
	if gotPrefix != 2 || !bytes.Equal(gotKey, key) {
		t.Errorf("reencode produced prefix %d", gotPrefix)
	}
}

func TestSS58_InvalidInputs(t *testing.T) {
	if _, _, err := DecodeAddress("not-base58-0OIl"); err == nil {
		t.Error("expected error for non-base58 input")
	}
	if _, _, err := DecodeAddress(base58.Encode([]byte{1, 2, 3})); err == nil {
		t.Error("expected error for truncated payload")
	}
	if _, err := EncodeAddress([]byte{1, 2, 3}, 2); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := EncodeAddress(testPubKey(), 0x4000); err == nil {
		t.Error("expected error for out-of-range prefix")
	}
}

func TestIsOnCurve(t *testing.T) {
	// The ed25519 generator's compressed encoding.
	generator := append([]byte{0x58}, bytes.Repeat([]byte{0x66}, 31)...)
	if !IsOnCurve(generator) {
		t.Error("generator must decode as a point")
	}

	// A non-canonical field element is rejected.
	invalid := bytes.Repeat([]byte{0xFF}, 32)
	if IsOnCurve(invalid) {
		t.Error("non-canonical encoding must not decode")
	}

	if IsOnCurve([]byte{1, 2, 3}) {
		t.Error("wrong-length key must not decode")
	}
}
