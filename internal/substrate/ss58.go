package substrate

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// SS58 address layout: prefix (1 or 2 bytes) + 32-byte public key +
// 2-byte checksum. The checksum is blake2b-512("SS58PRE" || prefix ||
// key) truncated to two bytes.

const (
	checksumPreamble = "SS58PRE"
	publicKeyLength  = 32
	checksumLength   = 2

	// maxSimplePrefix is the highest prefix encodable in one byte.
	maxSimplePrefix = 63
	// maxPrefix is the highest prefix the two-byte form can carry.
	maxPrefix = 0x3FFF
)

// SS58 errors.
var (
	ErrInvalidAddress  = errors.New("invalid ss58 address")
	ErrInvalidChecksum = errors.New("invalid ss58 checksum")
	ErrInvalidPrefix   = errors.New("invalid ss58 prefix")
)

// DecodeAddress decodes an SS58 address into its public key and network
// prefix, verifying the checksum.
func DecodeAddress(address string) (pubKey []byte, prefix uint16, err error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 1+publicKeyLength+checksumLength {
		return nil, 0, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidAddress, len(raw))
	}

	var prefixLen int
	switch {
	case raw[0] <= maxSimplePrefix:
		prefix = uint16(raw[0])
		prefixLen = 1
	case raw[0] < 128:
		// Two-byte form: 14 prefix bits spread across both bytes.
		if len(raw) < 2+publicKeyLength+checksumLength {
			return nil, 0, fmt.Errorf("%w: too short for two-byte prefix", ErrInvalidAddress)
		}
		prefix = uint16(raw[0]&0x3F)<<2 | uint16(raw[1])>>6 | uint16(raw[1]&0x3F)<<8
		prefixLen = 2
	default:
		return nil, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidPrefix, raw[0])
	}

	body := raw[:len(raw)-checksumLength]
	gotSum := raw[len(raw)-checksumLength:]
	wantSum := checksum(body)
	if gotSum[0] != wantSum[0] || gotSum[1] != wantSum[1] {
		return nil, 0, ErrInvalidChecksum
	}

	pubKey = raw[prefixLen : len(raw)-checksumLength]
	if len(pubKey) != publicKeyLength {
		return nil, 0, fmt.Errorf("%w: key length %d", ErrInvalidAddress, len(pubKey))
	}
	return pubKey, prefix, nil
}

// EncodeAddress encodes a 32-byte public key under the given network prefix.
func EncodeAddress(pubKey []byte, prefix uint16) (string, error) {
	if len(pubKey) != publicKeyLength {
		return "", fmt.Errorf("%w: key length %d", ErrInvalidAddress, len(pubKey))
	}
	if prefix > maxPrefix {
		return "", fmt.Errorf("%w: %d out of range", ErrInvalidPrefix, prefix)
	}

	var body []byte
	if prefix <= maxSimplePrefix {
		body = append(body, byte(prefix))
	} else {
		body = append(body,
			byte(prefix&0x00FC)>>2|0x40,
			byte(prefix>>8)|byte(prefix&0x0003)<<6,
		)
	}
	body = append(body, pubKey...)
	sum := checksum(body)
	return base58.Encode(append(body, sum[:checksumLength]...)), nil
}

// ReencodeAddress re-encodes an address under a different network prefix.
func ReencodeAddress(address string, prefix uint16) (string, error) {
	pubKey, _, err := DecodeAddress(address)
	if err != nil {
		return "", err
	}
	return EncodeAddress(pubKey, prefix)
}

// IsOnCurve reports whether pubKey decodes as an ed25519 point.
// sr25519 keys use a different point encoding, so a false result is a
// soft signal, not proof of a malformed key.
func IsOnCurve(pubKey []byte) bool {
	if len(pubKey) != publicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(pubKey)
	return err == nil
}

func checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write([]byte(checksumPreamble))
	h.Write(body)
	return h.Sum(nil)
}
