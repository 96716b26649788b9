// Package registry builds, signs and submits mutations to the
// EthereumDIDRegistry and reads back its event log.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/keys"
)

// TxOptions tunes a submitted transaction. Zero values defer to the backend.
type TxOptions struct {
	GasLimit uint64
}

// Provider is the read/write channel to a registry. Errors from the network
// or chain are returned as-is; nothing here retries.
type Provider interface {
	// Address is the registry contract address hashed into every digest.
	Address() common.Address
	// Owner returns the identity's current owner.
	Owner(ctx context.Context, identity common.Address) (common.Address, error)
	// Nonce returns the replay-protection nonce for identity.
	Nonce(ctx context.Context, identity common.Address) (uint64, error)
	// SendSigned submits a meta-transaction paid for by relayer.
	SendSigned(ctx context.Context, p Payload, relayer keys.Signer, opts TxOptions) (common.Hash, error)
	// SendDirect submits a transaction signed by the owner itself.
	SendDirect(ctx context.Context, c Call, signer keys.Signer, opts TxOptions) (common.Hash, error)
	// Events returns the identity's change history, oldest first.
	Events(ctx context.Context, identity common.Address) ([]Event, error)
}

// EventKind distinguishes registry events.
type EventKind string

const (
	OwnerChanged     EventKind = EventOwnerChanged
	DelegateChanged  EventKind = EventDelegateChanged
	AttributeChanged EventKind = EventAttributeChanged
)

// Event is one decoded registry log entry.
type Event struct {
	Kind           EventKind
	Identity       common.Address
	Owner          common.Address
	DelegateType   DelegateType
	Delegate       common.Address
	Name           string
	Value          []byte
	ValidTo        uint64
	PreviousChange uint64
	BlockNumber    uint64
	Timestamp      uint64
	TxHash         common.Hash
}
