// Package did parses and formats did:ethr identifiers and defines the DID
// document shapes produced by resolution.
package did

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Method is the DID method name handled by this package.
const Method = "ethr"

// Mainnet is the network name that is omitted from formatted DIDs.
const Mainnet = "mainnet"

// ErrInvalidDID is returned when a string is not a well-formed did:ethr.
var ErrInvalidDID = errors.New("invalid did:ethr")

// Identifier is a parsed did:ethr. PublicKey is set when the DID was built
// from a compressed public key instead of an address.
type Identifier struct {
	Network   string
	Address   common.Address
	PublicKey []byte
	Fragment  string
}

// Parse reads did:ethr[:network]:<address|publicKey>[#fragment].
func Parse(s string) (Identifier, error) {
	var id Identifier
	rest, fragment, _ := strings.Cut(strings.TrimSpace(s), "#")
	id.Fragment = fragment

	parts := strings.Split(rest, ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != "did" || parts[1] != Method {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidDID, s)
	}
	subject := parts[len(parts)-1]
	if len(parts) == 4 {
		id.Network = parts[2]
		if id.Network == "" {
			return Identifier{}, fmt.Errorf("%w: empty network in %q", ErrInvalidDID, s)
		}
	}

	switch {
	case common.IsHexAddress(subject) && len(subject) == 42:
		id.Address = common.HexToAddress(subject)
	case len(subject) == 68 && strings.HasPrefix(subject, "0x"):
		raw, err := hexutil.Decode(subject)
		if err != nil {
			return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidDID, err)
		}
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return Identifier{}, fmt.Errorf("%w: public key: %v", ErrInvalidDID, err)
		}
		id.PublicKey = raw
		id.Address = crypto.PubkeyToAddress(*pub)
	default:
		return Identifier{}, fmt.Errorf("%w: unsupported identifier %q", ErrInvalidDID, subject)
	}
	return id, nil
}

// ParseSubject accepts either a full DID or a bare address / compressed
// public key and returns the identifier on the given network.
func ParseSubject(network, subject string) (Identifier, error) {
	if strings.HasPrefix(subject, "did:") {
		return Parse(subject)
	}
	if network == Mainnet {
		network = ""
	}
	if network != "" {
		return Parse("did:" + Method + ":" + network + ":" + subject)
	}
	return Parse("did:" + Method + ":" + subject)
}

// String formats the identifier without its fragment.
func (id Identifier) String() string {
	subject := id.Address.Hex()
	if len(id.PublicKey) > 0 {
		subject = hexutil.Encode(id.PublicKey)
	}
	if id.Network == "" || id.Network == Mainnet {
		return "did:" + Method + ":" + subject
	}
	return "did:" + Method + ":" + id.Network + ":" + subject
}

// NetworkName returns the network, mapping the empty name to mainnet.
func (id Identifier) NetworkName() string {
	if id.Network == "" {
		return Mainnet
	}
	return id.Network
}

// Format builds the DID for an address on network.
func Format(network string, address common.Address) string {
	return Identifier{Network: network, Address: address}.String()
}
