package registry

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// eventTopics are the topic-0 values of the three registry events.
var eventTopics = []common.Hash{
	ABI.Events[EventOwnerChanged].ID,
	ABI.Events[EventDelegateChanged].ID,
	ABI.Events[EventAttributeChanged].ID,
}

// DecodeLog turns a registry log into an Event. Timestamp is left for the
// caller, which knows the block header.
func DecodeLog(l types.Log) (Event, error) {
	if len(l.Topics) < 2 {
		return Event{}, fmt.Errorf("decode log: expected 2 topics, got %d", len(l.Topics))
	}
	abiEvent, err := ABI.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("decode log: %w", err)
	}
	values, err := ABI.Unpack(abiEvent.Name, l.Data)
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", abiEvent.Name, err)
	}

	ev := Event{
		Kind:        EventKind(abiEvent.Name),
		Identity:    common.BytesToAddress(l.Topics[1].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}
	var ok bool
	switch abiEvent.Name {
	case EventOwnerChanged:
		if ok = len(values) == 2; ok {
			ev.Owner, ok = values[0].(common.Address)
			ev.PreviousChange = bigToUint64(values[1])
		}
	case EventDelegateChanged:
		if ok = len(values) == 4; ok {
			var t [32]byte
			t, ok = values[0].([32]byte)
			ev.DelegateType = DelegateType(Bytes32ToString(t))
			ev.Delegate, _ = values[1].(common.Address)
			ev.ValidTo = bigToUint64(values[2])
			ev.PreviousChange = bigToUint64(values[3])
		}
	case EventAttributeChanged:
		if ok = len(values) == 4; ok {
			var name [32]byte
			name, ok = values[0].([32]byte)
			ev.Name = Bytes32ToString(name)
			ev.Value, _ = values[1].([]byte)
			ev.ValidTo = bigToUint64(values[2])
			ev.PreviousChange = bigToUint64(values[3])
		}
	}
	if !ok {
		return Event{}, fmt.Errorf("decode %s: unexpected field layout", abiEvent.Name)
	}
	return ev, nil
}

// bigToUint64 saturates at MaxUint64; validTo may be set far in the future.
func bigToUint64(v any) uint64 {
	b, ok := v.(*big.Int)
	if !ok || b == nil || b.Sign() < 0 {
		return 0
	}
	if !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}
