package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind identifies a registry mutation. The string value doubles as the
// domain tag hashed into the digest and as the direct method name.
type Kind string

const (
	KindChangeOwner     Kind = "changeOwner"
	KindAddDelegate     Kind = "addDelegate"
	KindRevokeDelegate  Kind = "revokeDelegate"
	KindSetAttribute    Kind = "setAttribute"
	KindRevokeAttribute Kind = "revokeAttribute"
)

// Valid reports whether k is a known mutation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChangeOwner, KindAddDelegate, KindRevokeDelegate, KindSetAttribute, KindRevokeAttribute:
		return true
	}
	return false
}

// SignedMethod is the registry method accepting an off-chain signature.
func (k Kind) SignedMethod() string {
	return string(k) + "Signed"
}

// Mutation is one change to an identity's registry state. Only the fields
// relevant to Kind are read. It is the single encoding shared by the digest
// and by both the direct and signed calldata.
type Mutation struct {
	Kind         Kind
	Identity     common.Address
	NewOwner     common.Address
	DelegateType DelegateType
	Delegate     common.Address
	Name         string
	Value        []byte
	Validity     uint64 // seconds
}

// ChangeOwner transfers ownership of identity to newOwner.
func ChangeOwner(identity, newOwner common.Address) Mutation {
	return Mutation{Kind: KindChangeOwner, Identity: identity, NewOwner: newOwner}
}

// AddDelegate grants delegate authority of type t for validity seconds.
func AddDelegate(identity common.Address, t DelegateType, delegate common.Address, validity uint64) Mutation {
	return Mutation{Kind: KindAddDelegate, Identity: identity, DelegateType: t, Delegate: delegate, Validity: validity}
}

// RevokeDelegate ends delegate authority of type t.
func RevokeDelegate(identity common.Address, t DelegateType, delegate common.Address) Mutation {
	return Mutation{Kind: KindRevokeDelegate, Identity: identity, DelegateType: t, Delegate: delegate}
}

// SetAttribute publishes name=value for validity seconds.
func SetAttribute(identity common.Address, name string, value []byte, validity uint64) Mutation {
	return Mutation{Kind: KindSetAttribute, Identity: identity, Name: name, Value: value, Validity: validity}
}

// RevokeAttribute withdraws name=value.
func RevokeAttribute(identity common.Address, name string, value []byte) Mutation {
	return Mutation{Kind: KindRevokeAttribute, Identity: identity, Name: name, Value: value}
}

// Validate checks every field the registry will encode.
func (m Mutation) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown mutation kind %q", ErrInvalidInput, m.Kind)
	}
	switch m.Kind {
	case KindAddDelegate, KindRevokeDelegate:
		if !m.DelegateType.Valid() {
			return fmt.Errorf("%w: unknown delegate type %q", ErrInvalidInput, m.DelegateType)
		}
	case KindSetAttribute, KindRevokeAttribute:
		if _, err := Bytes32(m.Name); err != nil {
			return fmt.Errorf("attribute name: %w", err)
		}
		if len(m.Value) > MaxAttributeValueLength {
			return fmt.Errorf("%w: attribute value is %d bytes, limit is %d", ErrInvalidInput, len(m.Value), MaxAttributeValueLength)
		}
	}
	return nil
}

// body is the kind-specific tail of the signed message.
func (m Mutation) body() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := []byte(m.Kind)
	switch m.Kind {
	case KindChangeOwner:
		out = append(out, m.NewOwner.Bytes()...)
	case KindAddDelegate, KindRevokeDelegate:
		t, _ := Bytes32(string(m.DelegateType))
		out = append(out, t[:]...)
		out = append(out, m.Delegate.Bytes()...)
		if m.Kind == KindAddDelegate {
			out = append(out, uint256Word(m.Validity)...)
		}
	case KindSetAttribute, KindRevokeAttribute:
		name, _ := Bytes32(m.Name)
		out = append(out, name[:]...)
		out = append(out, m.Value...)
		if m.Kind == KindSetAttribute {
			out = append(out, uint256Word(m.Validity)...)
		}
	}
	return out, nil
}

// Message returns the exact byte sequence the registry hashes:
// 0x19 0x00 ‖ registry ‖ nonce ‖ identity ‖ body.
func (m Mutation) Message(registry common.Address, nonce uint64) ([]byte, error) {
	body, err := m.body()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(messagePrefix)+common.AddressLength*2+32+len(body))
	msg = append(msg, messagePrefix...)
	msg = append(msg, registry.Bytes()...)
	msg = append(msg, uint256Word(nonce)...)
	msg = append(msg, m.Identity.Bytes()...)
	return append(msg, body...), nil
}

// Digest is keccak256 of Message.
func (m Mutation) Digest(registry common.Address, nonce uint64) (common.Hash, error) {
	msg, err := m.Message(registry, nonce)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(msg), nil
}

// args are the mutation-specific ABI arguments that follow the identity (and
// the signature, for signed methods).
func (m Mutation) args() ([]any, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	validity := new(big.Int).SetUint64(m.Validity)
	switch m.Kind {
	case KindChangeOwner:
		return []any{m.NewOwner}, nil
	case KindAddDelegate:
		t, _ := Bytes32(string(m.DelegateType))
		return []any{t, m.Delegate, validity}, nil
	case KindRevokeDelegate:
		t, _ := Bytes32(string(m.DelegateType))
		return []any{t, m.Delegate}, nil
	case KindSetAttribute:
		name, _ := Bytes32(m.Name)
		return []any{name, m.Value, validity}, nil
	default:
		name, _ := Bytes32(m.Name)
		return []any{name, m.Value}, nil
	}
}
