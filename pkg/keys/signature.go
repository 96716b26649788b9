package keys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalformedSignature is returned when a signature is missing components or
// its components do not have the canonical widths.
var ErrMalformedSignature = errors.New("malformed signature")

// SignatureLength is the size of an r||s||v signature.
const SignatureLength = 65

// Signature is a secp256k1 signature split into its canonical components.
// V is 27 or 28, R and S are 32 bytes each.
type Signature struct {
	V uint8         `json:"v"`
	R hexutil.Bytes `json:"r"`
	S hexutil.Bytes `json:"s"`
}

// SignatureFromBytes splits a 65-byte r||s||v signature. Recovery ids 0/1 are
// normalised to 27/28.
func SignatureFromBytes(raw []byte) (Signature, error) {
	if len(raw) != SignatureLength {
		return Signature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSignature, SignatureLength, len(raw))
	}
	sig := Signature{
		V: raw[64],
		R: append([]byte(nil), raw[:32]...),
		S: append([]byte(nil), raw[32:64]...),
	}
	return sig.Normalize()
}

// ParseSignature decodes a 0x-prefixed hex r||s||v signature.
func ParseSignature(s string) (Signature, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return SignatureFromBytes(raw)
}

// Normalize validates the signature and maps a 0/1 recovery id onto 27/28.
func (s Signature) Normalize() (Signature, error) {
	if s.V < 27 {
		s.V += 27
	}
	if err := s.Validate(); err != nil {
		return Signature{}, err
	}
	return s, nil
}

// Validate checks the structural shape of the signature. It does not verify it.
func (s Signature) Validate() error {
	if s.V != 27 && s.V != 28 {
		return fmt.Errorf("%w: v must be 27 or 28, got %d", ErrMalformedSignature, s.V)
	}
	if len(s.R) != 32 {
		return fmt.Errorf("%w: r must be 32 bytes, got %d", ErrMalformedSignature, len(s.R))
	}
	if len(s.S) != 32 {
		return fmt.Errorf("%w: s must be 32 bytes, got %d", ErrMalformedSignature, len(s.S))
	}
	zero := make([]byte, 32)
	if bytes.Equal(s.R, zero) || bytes.Equal(s.S, zero) {
		return fmt.Errorf("%w: r and s must be non-zero", ErrMalformedSignature)
	}
	return nil
}

// R32 returns r as a fixed-size array. The signature must be valid.
func (s Signature) R32() [32]byte {
	var out [32]byte
	copy(out[:], s.R)
	return out
}

// S32 returns s as a fixed-size array. The signature must be valid.
func (s Signature) S32() [32]byte {
	var out [32]byte
	copy(out[:], s.S)
	return out
}

// Bytes returns r||s||v with v in {27, 28}.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, SignatureLength)
	out = append(out, s.R...)
	out = append(out, s.S...)
	return append(out, s.V)
}

// RecoveryBytes returns r||s||v with v in {0, 1}, the layout go-ethereum's
// recovery functions expect.
func (s Signature) RecoveryBytes() []byte {
	out := s.Bytes()
	out[64] -= 27
	return out
}

// String renders the signature as 0x-prefixed hex.
func (s Signature) String() string {
	return hexutil.Encode(s.Bytes())
}

// Recover returns the address that produced sig over digest.
func Recover(digest []byte, sig Signature) (common.Address, error) {
	if err := sig.Validate(); err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sig.RecoveryBytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
