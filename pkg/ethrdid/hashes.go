package ethrdid

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/registry"
)

// CreateChangeOwnerHash returns the digest the owner signs for
// ChangeOwnerSigned. Like every Create*Hash accessor it reads the registry
// nonce, so the digest is only good until the identity's next accepted
// mutation.
func (c *Controller) CreateChangeOwnerHash(ctx context.Context, newOwner common.Address) (common.Hash, error) {
	return c.hashes.BuildChangeOwnerHash(ctx, c.id.Address, newOwner)
}

// CreateAddDelegateHash returns the digest for AddDelegateSigned with the
// same opts.
func (c *Controller) CreateAddDelegateHash(ctx context.Context, delegate common.Address, opts DelegateOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	return c.hashes.BuildAddDelegateHash(ctx, c.id.Address, opts.Type, delegate, opts.ExpiresIn)
}

// CreateRevokeDelegateHash returns the digest for RevokeDelegateSigned.
func (c *Controller) CreateRevokeDelegateHash(ctx context.Context, delegate common.Address, t registry.DelegateType) (common.Hash, error) {
	return c.hashes.BuildRevokeDelegateHash(ctx, c.id.Address, delegateType(t), delegate)
}

// CreateSetAttributeHash returns the digest for SetAttributeSigned. value is
// encoded the way SetAttribute encodes it.
func (c *Controller) CreateSetAttributeHash(ctx context.Context, name, value string, opts AttributeOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	return c.hashes.BuildSetAttributeHash(ctx, c.id.Address, name, raw, opts.ExpiresIn)
}

// CreateRevokeAttributeHash returns the digest for RevokeAttributeSigned.
func (c *Controller) CreateRevokeAttributeHash(ctx context.Context, name, value string) (common.Hash, error) {
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	return c.hashes.BuildRevokeAttributeHash(ctx, c.id.Address, name, raw)
}
