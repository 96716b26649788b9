// Package ethrdid is the controller for a did:ethr identity. It submits owner,
// delegate and attribute changes to the registry, either signed and sent by
// the owner itself or signed off-chain and relayed by a third party, and it
// issues and verifies JWTs attributable to the identity.
package ethrdid

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/keys"
	"github.com/spherity/ethr-did/pkg/registry"
)

// DefaultExpiresIn is the validity, in seconds, of delegates and attributes
// added without an explicit expiry.
const DefaultExpiresIn = 86400

// DocumentResolver resolves a DID to its current document.
type DocumentResolver interface {
	Resolve(ctx context.Context, did string) (*did.Resolution, error)
}

// Config wires a Controller.
type Config struct {
	// Identifier is a did:ethr, an address or a compressed public key.
	Identifier string
	// Network names the chain in the DID. Empty means mainnet.
	Network string
	// ChainID is used in blockchain account ids. Defaults to 1.
	ChainID uint64
	// Provider reads from and submits to the registry. Required.
	Provider registry.Provider
	// TxSigner sends direct transactions; it must be the identity's owner.
	// Defaults to PrivateKey when that is set.
	TxSigner keys.Signer
	// Relayer pays for and sends signed (meta) transactions.
	Relayer keys.Signer
	// PrivateKey signs JWTs. Takes precedence over Signer.
	PrivateKey *ecdsa.PrivateKey
	// Signer signs JWTs when no PrivateKey is given.
	Signer keys.Signer
	// CallbackURL is accepted as a token audience alongside the DID.
	CallbackURL string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Clock stamps iat and exp and is the reference time for verification.
	// Defaults to time.Now.
	Clock func() time.Time
}

// Controller acts for one identity. It is safe for concurrent use; the
// registry's nonce is the only point of coordination between mutations.
type Controller struct {
	id          did.Identifier
	chainID     uint64
	provider    registry.Provider
	hashes      *registry.HashBuilder
	txSigner    keys.Signer
	relayer     keys.Signer
	callbackURL string
	logger      *slog.Logger
	clock       func() time.Time

	mu        sync.RWMutex
	jwtSigner keys.Signer
}

// New validates cfg and returns a controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrConfiguration)
	}
	id, err := did.ParseSubject(cfg.Network, cfg.Identifier)
	if err != nil {
		return nil, err
	}
	id.Fragment = ""

	c := &Controller{
		id:          id,
		chainID:     cfg.ChainID,
		provider:    cfg.Provider,
		hashes:      registry.NewHashBuilder(cfg.Provider),
		txSigner:    cfg.TxSigner,
		relayer:     cfg.Relayer,
		callbackURL: cfg.CallbackURL,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		jwtSigner:   cfg.Signer,
	}
	if c.chainID == 0 {
		c.chainID = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if cfg.PrivateKey != nil {
		ks := keys.NewKeySigner(cfg.PrivateKey)
		c.jwtSigner = ks
		if c.txSigner == nil {
			c.txSigner = ks
		}
	}
	c.logger = c.logger.With("did", c.DID())
	return c, nil
}

// DID returns the identity's DID.
func (c *Controller) DID() string {
	return c.id.String()
}

// Address returns the identity address.
func (c *Controller) Address() common.Address {
	return c.id.Address
}

// ChainID returns the configured chain id.
func (c *Controller) ChainID() uint64 {
	return c.chainID
}

// LookupOwner returns the identity's current owner.
func (c *Controller) LookupOwner(ctx context.Context) (common.Address, error) {
	owner, err := c.provider.Owner(ctx, c.id.Address)
	if err != nil {
		return common.Address{}, fmt.Errorf("lookup owner: %w", err)
	}
	return owner, nil
}

func (c *Controller) signer() keys.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwtSigner
}

func (c *Controller) setSigner(s keys.Signer) {
	c.mu.Lock()
	c.jwtSigner = s
	c.mu.Unlock()
}
