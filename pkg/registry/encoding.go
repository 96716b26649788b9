package registry

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

const (
	// MaxAttributeValueLength caps attribute values accepted for signing.
	MaxAttributeValueLength = 16 * 1024
	// MaxNameLength is the width of the registry's bytes32 name/type fields.
	MaxNameLength = 32
)

// messagePrefix is the EIP-191 version 0x00 header the registry hashes
// ahead of its own address.
var messagePrefix = []byte{0x19, 0x00}

// attributeNamePattern splits did/<section>/<type>[/<purpose>][/<encoding>].
var attributeNamePattern = regexp.MustCompile(`^did/(pub|auth|svc)/(\w+)(/(\w+))?(/(\w+))?$`)

// AttributeName is a parsed namespaced attribute name.
type AttributeName struct {
	Section  string // pub, auth or svc
	Type     string // key algorithm or service type
	Purpose  string // veriKey, sigAuth, enc
	Encoding string // hex, base64, base58, pem
}

// ParseAttributeName splits a namespaced attribute name. ok is false for
// names outside the did/ namespace, which are still valid registry names.
func ParseAttributeName(name string) (AttributeName, bool) {
	m := attributeNamePattern.FindStringSubmatch(name)
	if m == nil {
		return AttributeName{}, false
	}
	return AttributeName{Section: m[1], Type: m[2], Purpose: m[4], Encoding: m[6]}, true
}

// Bytes32 right-pads s with zeros to 32 bytes.
func Bytes32(s string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, fmt.Errorf("%w: empty bytes32 field", ErrInvalidInput)
	}
	if len(s) > MaxNameLength {
		return out, fmt.Errorf("%w: %q is %d bytes, bytes32 holds %d", ErrInvalidInput, s, len(s), MaxNameLength)
	}
	copy(out[:], s)
	return out, nil
}

// Bytes32ToString strips the zero padding added by Bytes32.
func Bytes32ToString(b [32]byte) string {
	return string(bytes.TrimRight(b[:], "\x00"))
}

// uint256Word encodes v as a 32-byte big-endian word.
func uint256Word(v uint64) []byte {
	w := uint256.NewInt(v).Bytes32()
	return w[:]
}

// EncodeAttributeValue converts a caller-facing attribute value into the raw
// bytes stored on chain. 0x-prefixed hex is decoded, keys declared as base64
// or base58 are decoded, anything else is taken as UTF-8.
func EncodeAttributeValue(name, value string) ([]byte, error) {
	if strings.HasPrefix(value, "0x") {
		raw, err := hexutil.Decode(value)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute value: %v", ErrInvalidInput, err)
		}
		return raw, nil
	}
	if attr, ok := ParseAttributeName(name); ok && attr.Section == "pub" {
		switch attr.Encoding {
		case "base64":
			raw, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("%w: base64 attribute value: %v", ErrInvalidInput, err)
			}
			return raw, nil
		case "base58":
			raw, err := base58.Decode(value)
			if err != nil {
				return nil, fmt.Errorf("%w: base58 attribute value: %v", ErrInvalidInput, err)
			}
			return raw, nil
		}
	}
	return []byte(value), nil
}
