package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/spherity/ethr-did/pkg/keys"
)

// MemoryRegistry is an in-process registry with the same signature, nonce
// and event semantics as the on-chain contract. Every accepted mutation,
// direct or signed, mines one block and advances the identity's nonce.
type MemoryRegistry struct {
	address common.Address
	clock   func() time.Time

	mu      sync.Mutex
	owners  map[common.Address]common.Address
	nonces  map[common.Address]uint64
	changed map[common.Address]uint64
	events  map[common.Address][]Event
	block   uint64
}

// MemoryOption configures a MemoryRegistry.
type MemoryOption func(*MemoryRegistry)

// WithClock sets the block timestamp source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(r *MemoryRegistry) { r.clock = clock }
}

// NewMemoryRegistry creates an empty registry deployed at address.
func NewMemoryRegistry(address common.Address, opts ...MemoryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		address: address,
		clock:   time.Now,
		owners:  make(map[common.Address]common.Address),
		nonces:  make(map[common.Address]uint64),
		changed: make(map[common.Address]uint64),
		events:  make(map[common.Address][]Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the registry address.
func (r *MemoryRegistry) Address() common.Address {
	return r.address
}

// Owner returns the current owner, which defaults to the identity itself.
func (r *MemoryRegistry) Owner(ctx context.Context, identity common.Address) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerLocked(identity), nil
}

// Nonce returns the identity's nonce.
func (r *MemoryRegistry) Nonce(ctx context.Context, identity common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonces[identity], nil
}

// SendSigned verifies the payload's signature against the current owner and
// nonce and applies the mutation.
func (r *MemoryRegistry) SendSigned(ctx context.Context, p Payload, relayer keys.Signer, _ TxOptions) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if relayer == nil {
		return common.Hash{}, errors.New("signed submission requires a relayer")
	}
	expected, err := ApplySignature(p.Mutation, p.Signature)
	if err != nil {
		return common.Hash{}, err
	}
	if !bytes.Equal(expected.Data, p.Data) {
		return common.Hash{}, fmt.Errorf("%w: calldata does not match mutation", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.Mutation.Identity
	if err := CheckSignature(p, r.address, r.nonces[id], r.ownerLocked(id)); err != nil {
		return common.Hash{}, err
	}
	return r.applyLocked(p.Mutation, p.Data), nil
}

// SendDirect requires signer to be the current owner and to prove control of
// its key over the calldata.
func (r *MemoryRegistry) SendDirect(ctx context.Context, c Call, signer keys.Signer, _ TxOptions) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errors.New("direct submission requires a signer")
	}
	expected, err := DirectCall(c.Mutation)
	if err != nil {
		return common.Hash{}, err
	}
	if !bytes.Equal(expected.Data, c.Data) {
		return common.Hash{}, fmt.Errorf("%w: calldata does not match mutation", ErrInvalidInput)
	}

	digest := crypto.Keccak256(c.Data)
	sig, err := signer.Sign(ctx, digest)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	from, err := keys.Recover(digest, sig)
	if err != nil {
		return common.Hash{}, err
	}
	if from != signer.Address() {
		return common.Hash{}, fmt.Errorf("%w: transaction signed by %s, claimed %s", ErrUnauthorized, from.Hex(), signer.Address().Hex())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if owner := r.ownerLocked(c.Mutation.Identity); from != owner {
		return common.Hash{}, fmt.Errorf("%w: sender %s, owner is %s", ErrUnauthorized, from.Hex(), owner.Hex())
	}
	return r.applyLocked(c.Mutation, c.Data), nil
}

// Events returns a copy of the identity's history.
func (r *MemoryRegistry) Events(ctx context.Context, identity common.Address) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[identity]...), nil
}

func (r *MemoryRegistry) ownerLocked(identity common.Address) common.Address {
	if owner, ok := r.owners[identity]; ok {
		return owner
	}
	return identity
}

func (r *MemoryRegistry) applyLocked(m Mutation, data []byte) common.Hash {
	now := uint64(r.clock().Unix())
	r.block++
	ev := Event{
		Identity:       m.Identity,
		PreviousChange: r.changed[m.Identity],
		BlockNumber:    r.block,
		Timestamp:      now,
	}
	switch m.Kind {
	case KindChangeOwner:
		r.owners[m.Identity] = m.NewOwner
		ev.Kind, ev.Owner = OwnerChanged, m.NewOwner
	case KindAddDelegate, KindRevokeDelegate:
		ev.Kind, ev.DelegateType, ev.Delegate = DelegateChanged, m.DelegateType, m.Delegate
		ev.ValidTo = now
		if m.Kind == KindAddDelegate {
			ev.ValidTo = addSeconds(now, m.Validity)
		}
	case KindSetAttribute, KindRevokeAttribute:
		ev.Kind, ev.Name, ev.Value = AttributeChanged, m.Name, append([]byte(nil), m.Value...)
		ev.ValidTo = now
		if m.Kind == KindSetAttribute {
			ev.ValidTo = addSeconds(now, m.Validity)
		}
	}
	ev.TxHash = crypto.Keccak256Hash(uint256Word(r.block), data)

	r.changed[m.Identity] = r.block
	r.nonces[m.Identity]++
	r.events[m.Identity] = append(r.events[m.Identity], ev)
	return ev.TxHash
}

func addSeconds(now, validity uint64) uint64 {
	if validity > math.MaxUint64-now {
		return math.MaxUint64
	}
	return now + validity
}
