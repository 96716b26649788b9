package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource is the part of the registry the hash builder reads.
type NonceSource interface {
	Address() common.Address
	Nonce(ctx context.Context, identity common.Address) (uint64, error)
}

// HashBuilder produces the digests the registry requires signatures over.
// It is stateless apart from the nonce lookup, which is never cached.
type HashBuilder struct {
	source NonceSource
}

// NewHashBuilder binds a hash builder to a registry.
func NewHashBuilder(source NonceSource) *HashBuilder {
	return &HashBuilder{source: source}
}

// Build validates m, fetches the identity's current nonce and returns the
// digest along with the nonce it embeds.
func (b *HashBuilder) Build(ctx context.Context, m Mutation) (common.Hash, uint64, error) {
	if err := m.Validate(); err != nil {
		return common.Hash{}, 0, err
	}
	nonce, err := b.source.Nonce(ctx, m.Identity)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("fetch nonce: %w", err)
	}
	digest, err := m.Digest(b.source.Address(), nonce)
	if err != nil {
		return common.Hash{}, 0, err
	}
	return digest, nonce, nil
}

func (b *HashBuilder) build(ctx context.Context, m Mutation) (common.Hash, error) {
	digest, _, err := b.Build(ctx, m)
	return digest, err
}

// BuildChangeOwnerHash returns the digest authorizing an owner change.
func (b *HashBuilder) BuildChangeOwnerHash(ctx context.Context, identity, newOwner common.Address) (common.Hash, error) {
	return b.build(ctx, ChangeOwner(identity, newOwner))
}

// BuildAddDelegateHash returns the digest authorizing a delegate grant.
func (b *HashBuilder) BuildAddDelegateHash(ctx context.Context, identity common.Address, t DelegateType, delegate common.Address, validity uint64) (common.Hash, error) {
	return b.build(ctx, AddDelegate(identity, t, delegate, validity))
}

// BuildRevokeDelegateHash returns the digest authorizing a delegate revocation.
func (b *HashBuilder) BuildRevokeDelegateHash(ctx context.Context, identity common.Address, t DelegateType, delegate common.Address) (common.Hash, error) {
	return b.build(ctx, RevokeDelegate(identity, t, delegate))
}

// BuildSetAttributeHash returns the digest authorizing an attribute change.
func (b *HashBuilder) BuildSetAttributeHash(ctx context.Context, identity common.Address, name string, value []byte, validity uint64) (common.Hash, error) {
	return b.build(ctx, SetAttribute(identity, name, value, validity))
}

// BuildRevokeAttributeHash returns the digest authorizing an attribute revocation.
func (b *HashBuilder) BuildRevokeAttributeHash(ctx context.Context, identity common.Address, name string, value []byte) (common.Hash, error) {
	return b.build(ctx, RevokeAttribute(identity, name, value))
}
