package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABIJSON covers the EthereumDIDRegistry surface used by this module.
const registryABIJSON = `[
 {"type":"function","name":"identityOwner","stateMutability":"view","inputs":[{"name":"identity","type":"address"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"nonce","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"changed","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"validDelegate","stateMutability":"view","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"}],"outputs":[{"name":"","type":"bool"}]},

 {"type":"function","name":"changeOwner","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"newOwner","type":"address"}],"outputs":[]},
 {"type":"function","name":"changeOwnerSigned","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"sigV","type":"uint8"},{"name":"sigR","type":"bytes32"},{"name":"sigS","type":"bytes32"},{"name":"newOwner","type":"address"}],"outputs":[]},

 {"type":"function","name":"addDelegate","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"},{"name":"validity","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"addDelegateSigned","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"sigV","type":"uint8"},{"name":"sigR","type":"bytes32"},{"name":"sigS","type":"bytes32"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"},{"name":"validity","type":"uint256"}],"outputs":[]},

 {"type":"function","name":"revokeDelegate","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"}],"outputs":[]},
 {"type":"function","name":"revokeDelegateSigned","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"sigV","type":"uint8"},{"name":"sigR","type":"bytes32"},{"name":"sigS","type":"bytes32"},{"name":"delegateType","type":"bytes32"},{"name":"delegate","type":"address"}],"outputs":[]},

 {"type":"function","name":"setAttribute","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"},{"name":"validity","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"setAttributeSigned","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"sigV","type":"uint8"},{"name":"sigR","type":"bytes32"},{"name":"sigS","type":"bytes32"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"},{"name":"validity","type":"uint256"}],"outputs":[]},

 {"type":"function","name":"revokeAttribute","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"revokeAttributeSigned","stateMutability":"nonpayable","inputs":[{"name":"identity","type":"address"},{"name":"sigV","type":"uint8"},{"name":"sigR","type":"bytes32"},{"name":"sigS","type":"bytes32"},{"name":"name","type":"bytes32"},{"name":"value","type":"bytes"}],"outputs":[]},

 {"type":"event","name":"DIDOwnerChanged","anonymous":false,"inputs":[{"name":"identity","type":"address","indexed":true},{"name":"owner","type":"address","indexed":false},{"name":"previousChange","type":"uint256","indexed":false}]},
 {"type":"event","name":"DIDDelegateChanged","anonymous":false,"inputs":[{"name":"identity","type":"address","indexed":true},{"name":"delegateType","type":"bytes32","indexed":false},{"name":"delegate","type":"address","indexed":false},{"name":"validTo","type":"uint256","indexed":false},{"name":"previousChange","type":"uint256","indexed":false}]},
 {"type":"event","name":"DIDAttributeChanged","anonymous":false,"inputs":[{"name":"identity","type":"address","indexed":true},{"name":"name","type":"bytes32","indexed":false},{"name":"value","type":"bytes","indexed":false},{"name":"validTo","type":"uint256","indexed":false},{"name":"previousChange","type":"uint256","indexed":false}]}
]`

// ABI is the parsed registry ABI.
var ABI = mustParseABI(registryABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("registry: parse abi: %v", err))
	}
	return parsed
}

// Event names emitted by the registry.
const (
	EventOwnerChanged     = "DIDOwnerChanged"
	EventDelegateChanged  = "DIDDelegateChanged"
	EventAttributeChanged = "DIDAttributeChanged"
)
