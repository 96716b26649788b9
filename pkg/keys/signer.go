package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs 32-byte digests on behalf of an address. Implementations may
// hold a raw key or call out to a remote signing service.
type Signer interface {
	Address() common.Address
	Sign(ctx context.Context, digest []byte) (Signature, error)
}

// KeySigner signs with a local private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner wraps a private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the signer's address.
func (s *KeySigner) Address() common.Address {
	return s.addr
}

// Sign produces a recoverable signature over digest without any message prefix.
func (s *KeySigner) Sign(ctx context.Context, digest []byte) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}
	if len(digest) != 32 {
		return Signature{}, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	raw, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign digest: %w", err)
	}
	return SignatureFromBytes(raw)
}
