package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/keys"
)

// Payload is a signed mutation packaged for a relayer: the registry method,
// its ABI calldata and the inputs it was built from.
type Payload struct {
	Mutation  Mutation
	Signature keys.Signature
	Method    string
	Data      []byte
}

// Call is a direct (owner-sent) registry transaction.
type Call struct {
	Mutation Mutation
	Method   string
	Data     []byte
}

// ApplySignature packages sig over m's digest into a relayable payload. The
// signature is checked for shape only; the registry verifies it.
func ApplySignature(m Mutation, sig keys.Signature) (Payload, error) {
	sig, err := sig.Normalize()
	if err != nil {
		return Payload{}, err
	}
	rest, err := m.args()
	if err != nil {
		return Payload{}, err
	}
	method := m.Kind.SignedMethod()
	args := append([]any{m.Identity, sig.V, sig.R32(), sig.S32()}, rest...)
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return Payload{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return Payload{Mutation: m, Signature: sig, Method: method, Data: data}, nil
}

// DirectCall packages m as a transaction the owner sends itself.
func DirectCall(m Mutation) (Call, error) {
	rest, err := m.args()
	if err != nil {
		return Call{}, err
	}
	method := string(m.Kind)
	data, err := ABI.Pack(method, append([]any{m.Identity}, rest...)...)
	if err != nil {
		return Call{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return Call{Mutation: m, Method: method, Data: data}, nil
}

// staleNonceWindow bounds how far back CheckSignature looks when telling a
// stale nonce apart from a foreign signer.
const staleNonceWindow = 64

// CheckSignature verifies p against the registry's current view, the same
// check the registry's ecrecover performs. A signature that matches the owner
// at an already consumed nonce yields ErrStaleNonce, any other mismatch
// ErrUnauthorized.
func CheckSignature(p Payload, registry common.Address, nonce uint64, owner common.Address) error {
	digest, err := p.Mutation.Digest(registry, nonce)
	if err != nil {
		return err
	}
	signer, err := keys.Recover(digest.Bytes(), p.Signature)
	if err == nil && signer == owner {
		return nil
	}
	for n, steps := nonce, 0; n > 0 && steps < staleNonceWindow; n, steps = n-1, steps+1 {
		old, err := p.Mutation.Digest(registry, n-1)
		if err != nil {
			return err
		}
		if s, err := keys.Recover(old.Bytes(), p.Signature); err == nil && s == owner {
			return fmt.Errorf("%w: signed at nonce %d, registry is at %d", ErrStaleNonce, n-1, nonce)
		}
	}
	return fmt.Errorf("%w: recovered %s, owner is %s", ErrUnauthorized, signer.Hex(), owner.Hex())
}
