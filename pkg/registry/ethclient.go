package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/spherity/ethr-did/pkg/keys"
)

// EthRegistry talks to a deployed EthereumDIDRegistry over JSON-RPC.
type EthRegistry struct {
	backend  bind.ContractBackend
	address  common.Address
	chainID  *big.Int
	contract *bind.BoundContract
}

// DialRegistry connects to rpcURL and binds the registry at address.
func DialRegistry(ctx context.Context, rpcURL string, address common.Address) (*EthRegistry, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return NewEthRegistry(client, address, chainID), nil
}

// NewEthRegistry binds the registry at address on an existing backend.
func NewEthRegistry(backend bind.ContractBackend, address common.Address, chainID *big.Int) *EthRegistry {
	return &EthRegistry{
		backend:  backend,
		address:  address,
		chainID:  chainID,
		contract: bind.NewBoundContract(address, ABI, backend, backend, backend),
	}
}

// Address returns the registry address.
func (r *EthRegistry) Address() common.Address {
	return r.address
}

// ChainID returns the chain the registry lives on.
func (r *EthRegistry) ChainID() *big.Int {
	return new(big.Int).Set(r.chainID)
}

// Owner calls identityOwner.
func (r *EthRegistry) Owner(ctx context.Context, identity common.Address) (common.Address, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "identityOwner", identity); err != nil {
		return common.Address{}, fmt.Errorf("identityOwner: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Nonce reads the contract nonce, which the registry keys by current owner.
func (r *EthRegistry) Nonce(ctx context.Context, identity common.Address) (uint64, error) {
	owner, err := r.Owner(ctx, identity)
	if err != nil {
		return 0, err
	}
	return r.callUint(ctx, "nonce", owner)
}

func (r *EthRegistry) changed(ctx context.Context, identity common.Address) (uint64, error) {
	return r.callUint(ctx, "changed", identity)
}

func (r *EthRegistry) callUint(ctx context.Context, method string, arg common.Address) (uint64, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, arg); err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	v := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: value %s overflows uint64", method, v)
	}
	return v.Uint64(), nil
}

// SendSigned checks the signature against the live owner and nonce, then has
// relayer send the signed call.
func (r *EthRegistry) SendSigned(ctx context.Context, p Payload, relayer keys.Signer, opts TxOptions) (common.Hash, error) {
	if relayer == nil {
		return common.Hash{}, errors.New("signed submission requires a relayer")
	}
	owner, err := r.Owner(ctx, p.Mutation.Identity)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := r.callUint(ctx, "nonce", owner)
	if err != nil {
		return common.Hash{}, err
	}
	if err := CheckSignature(p, r.address, nonce, owner); err != nil {
		return common.Hash{}, err
	}
	tx, err := r.contract.RawTransact(r.transactOpts(ctx, relayer, opts), p.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", p.Method, err)
	}
	return tx.Hash(), nil
}

// SendDirect has signer send the call itself.
func (r *EthRegistry) SendDirect(ctx context.Context, c Call, signer keys.Signer, opts TxOptions) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errors.New("direct submission requires a signer")
	}
	tx, err := r.contract.RawTransact(r.transactOpts(ctx, signer, opts), c.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", c.Method, err)
	}
	return tx.Hash(), nil
}

func (r *EthRegistry) transactOpts(ctx context.Context, signer keys.Signer, opts TxOptions) *bind.TransactOpts {
	chainSigner := types.LatestSignerForChainID(r.chainID)
	return &bind.TransactOpts{
		From:     signer.Address(),
		Context:  ctx,
		GasLimit: opts.GasLimit,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != signer.Address() {
				return nil, bind.ErrNotAuthorized
			}
			h := chainSigner.Hash(tx)
			sig, err := signer.Sign(ctx, h.Bytes())
			if err != nil {
				return nil, err
			}
			return tx.WithSignature(chainSigner, sig.RecoveryBytes())
		},
	}
}

// Events walks the previousChange chain backwards from changed(identity) and
// returns the history oldest first.
func (r *EthRegistry) Events(ctx context.Context, identity common.Address) ([]Event, error) {
	block, err := r.changed(ctx, identity)
	if err != nil {
		return nil, err
	}
	topic := common.BytesToHash(identity.Bytes())

	var history []Event
	for block > 0 {
		number := new(big.Int).SetUint64(block)
		logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: number,
			ToBlock:   number,
			Addresses: []common.Address{r.address},
			Topics:    [][]common.Hash{eventTopics, {topic}},
		})
		if err != nil {
			return nil, fmt.Errorf("filter logs at %d: %w", block, err)
		}
		header, err := r.backend.HeaderByNumber(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("header %d: %w", block, err)
		}

		var (
			batch []Event
			next  uint64
		)
		for _, l := range logs {
			ev, err := DecodeLog(l)
			if err != nil {
				return nil, err
			}
			ev.Timestamp = header.Time
			batch = append(batch, ev)
			// Later events in the same block point at this block.
			if ev.PreviousChange < block {
				next = ev.PreviousChange
			}
		}
		history = append(batch, history...)
		block = next
	}
	return history, nil
}
