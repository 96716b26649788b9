package ethrdid

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/keys"
	"github.com/spherity/ethr-did/pkg/registry"
)

// DelegateOptions tunes AddDelegate and CreateAddDelegateHash.
type DelegateOptions struct {
	// Type defaults to veriKey.
	Type registry.DelegateType
	// ExpiresIn is the grant in seconds. Zero means DefaultExpiresIn; a
	// zero-second grant cannot be requested since the registry would expire
	// it in the same block.
	ExpiresIn uint64
	GasLimit  uint64
}

func (o DelegateOptions) withDefaults() DelegateOptions {
	if o.Type == "" {
		o.Type = registry.VeriKey
	}
	if o.ExpiresIn == 0 {
		o.ExpiresIn = DefaultExpiresIn
	}
	return o
}

// AttributeOptions tunes SetAttribute and CreateSetAttributeHash.
type AttributeOptions struct {
	// ExpiresIn is the validity in seconds. Zero means DefaultExpiresIn, as
	// for DelegateOptions.
	ExpiresIn uint64
	GasLimit  uint64
}

func (o AttributeOptions) withDefaults() AttributeOptions {
	if o.ExpiresIn == 0 {
		o.ExpiresIn = DefaultExpiresIn
	}
	return o
}

// ChangeOwner transfers the identity to newOwner. TxSigner must be the
// current owner.
func (c *Controller) ChangeOwner(ctx context.Context, newOwner common.Address) (common.Hash, error) {
	return c.sendDirect(ctx, registry.ChangeOwner(c.id.Address, newOwner), registry.TxOptions{})
}

// ChangeOwnerSigned relays an owner change signed off-chain over
// CreateChangeOwnerHash.
func (c *Controller) ChangeOwnerSigned(ctx context.Context, newOwner common.Address, sig keys.Signature) (common.Hash, error) {
	return c.sendSigned(ctx, registry.ChangeOwner(c.id.Address, newOwner), sig, registry.TxOptions{})
}

// AddDelegate grants delegate authority.
func (c *Controller) AddDelegate(ctx context.Context, delegate common.Address, opts DelegateOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	m := registry.AddDelegate(c.id.Address, opts.Type, delegate, opts.ExpiresIn)
	return c.sendDirect(ctx, m, registry.TxOptions{GasLimit: opts.GasLimit})
}

// AddDelegateSigned relays a delegate grant signed over CreateAddDelegateHash
// with the same options.
func (c *Controller) AddDelegateSigned(ctx context.Context, delegate common.Address, sig keys.Signature, opts DelegateOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	m := registry.AddDelegate(c.id.Address, opts.Type, delegate, opts.ExpiresIn)
	return c.sendSigned(ctx, m, sig, registry.TxOptions{GasLimit: opts.GasLimit})
}

// RevokeDelegate ends delegate authority of type t. An empty t means veriKey.
func (c *Controller) RevokeDelegate(ctx context.Context, delegate common.Address, t registry.DelegateType) (common.Hash, error) {
	return c.sendDirect(ctx, registry.RevokeDelegate(c.id.Address, delegateType(t), delegate), registry.TxOptions{})
}

// RevokeDelegateSigned relays a revocation signed over CreateRevokeDelegateHash.
func (c *Controller) RevokeDelegateSigned(ctx context.Context, delegate common.Address, t registry.DelegateType, sig keys.Signature) (common.Hash, error) {
	return c.sendSigned(ctx, registry.RevokeDelegate(c.id.Address, delegateType(t), delegate), sig, registry.TxOptions{})
}

// SetAttribute publishes name=value. See registry.EncodeAttributeValue for
// how value is turned into bytes.
func (c *Controller) SetAttribute(ctx context.Context, name, value string, opts AttributeOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	m := registry.SetAttribute(c.id.Address, name, raw, opts.ExpiresIn)
	return c.sendDirect(ctx, m, registry.TxOptions{GasLimit: opts.GasLimit})
}

// SetAttributeSigned relays an attribute signed over CreateSetAttributeHash.
func (c *Controller) SetAttributeSigned(ctx context.Context, name, value string, sig keys.Signature, opts AttributeOptions) (common.Hash, error) {
	opts = opts.withDefaults()
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	m := registry.SetAttribute(c.id.Address, name, raw, opts.ExpiresIn)
	return c.sendSigned(ctx, m, sig, registry.TxOptions{GasLimit: opts.GasLimit})
}

// RevokeAttribute withdraws name=value.
func (c *Controller) RevokeAttribute(ctx context.Context, name, value string) (common.Hash, error) {
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	return c.sendDirect(ctx, registry.RevokeAttribute(c.id.Address, name, raw), registry.TxOptions{})
}

// RevokeAttributeSigned relays a revocation signed over
// CreateRevokeAttributeHash.
func (c *Controller) RevokeAttributeSigned(ctx context.Context, name, value string, sig keys.Signature) (common.Hash, error) {
	raw, err := registry.EncodeAttributeValue(name, value)
	if err != nil {
		return common.Hash{}, err
	}
	return c.sendSigned(ctx, registry.RevokeAttribute(c.id.Address, name, raw), sig, registry.TxOptions{})
}

// SigningDelegate is a freshly generated key registered as a delegate.
type SigningDelegate struct {
	KeyPair *keys.KeyPair
	TxHash  common.Hash
}

// CreateSigningDelegate generates a key pair, registers it as a delegate of
// type t for expiresIn seconds and switches token signing to it.
func (c *Controller) CreateSigningDelegate(ctx context.Context, t registry.DelegateType, expiresIn uint64) (SigningDelegate, error) {
	kp, err := keys.GenerateKeyPair()
	if err != nil {
		return SigningDelegate{}, err
	}
	tx, err := c.AddDelegate(ctx, kp.Address, DelegateOptions{Type: t, ExpiresIn: expiresIn})
	if err != nil {
		return SigningDelegate{}, err
	}
	c.setSigner(kp.Signer())
	return SigningDelegate{KeyPair: kp, TxHash: tx}, nil
}

func delegateType(t registry.DelegateType) registry.DelegateType {
	if t == "" {
		return registry.VeriKey
	}
	return t
}

func (c *Controller) sendDirect(ctx context.Context, m registry.Mutation, opts registry.TxOptions) (common.Hash, error) {
	if c.txSigner == nil {
		return common.Hash{}, fmt.Errorf("%w: %s needs a transaction signer", ErrConfiguration, m.Kind)
	}
	call, err := registry.DirectCall(m)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.provider.SendDirect(ctx, call, c.txSigner, opts)
	if err != nil {
		c.logger.Warn("registry mutation failed", "kind", m.Kind, "path", "direct", "err", err)
		return common.Hash{}, err
	}
	c.logger.Info("registry mutation submitted", "kind", m.Kind, "path", "direct", "tx", tx.Hex())
	return tx, nil
}

func (c *Controller) sendSigned(ctx context.Context, m registry.Mutation, sig keys.Signature, opts registry.TxOptions) (common.Hash, error) {
	if c.relayer == nil {
		return common.Hash{}, fmt.Errorf("%w: %s needs a relayer", ErrConfiguration, m.Kind.SignedMethod())
	}
	if c.relayer.Address() == c.id.Address {
		return common.Hash{}, fmt.Errorf("%w: relayer must not be the identity itself", ErrConfiguration)
	}
	p, err := registry.ApplySignature(m, sig)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.provider.SendSigned(ctx, p, c.relayer, opts)
	if err != nil {
		c.logger.Warn("registry mutation failed", "kind", m.Kind, "path", "signed", "relayer", c.relayer.Address().Hex(), "err", err)
		return common.Hash{}, err
	}
	c.logger.Info("registry mutation submitted", "kind", m.Kind, "path", "signed", "relayer", c.relayer.Address().Hex(), "tx", tx.Hex())
	return tx, nil
}
