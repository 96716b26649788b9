package token

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/spherity/ethr-did/pkg/did"
)

// AuthenticatorsFromDocument collects the secp256k1 keys and accounts the
// document lists under refs, usually its assertionMethod or authentication.
// Methods of other key types are skipped.
func AuthenticatorsFromDocument(doc *did.Document, refs []string) (Authenticators, error) {
	var auth Authenticators
	for _, vm := range doc.Resolve(refs) {
		switch vm.Type {
		case did.TypeSecp256k1Recovery2020, did.TypeSecp256k1VerificationKey:
		default:
			continue
		}
		if vm.BlockchainAccountID != "" {
			addr, ok := did.ParseBlockchainAccountID(vm.BlockchainAccountID)
			if !ok {
				return Authenticators{}, fmt.Errorf("%s: malformed blockchainAccountId %q", vm.ID, vm.BlockchainAccountID)
			}
			auth.Addresses = append(auth.Addresses, addr)
			continue
		}
		raw, err := publicKeyBytes(vm)
		if err != nil {
			return Authenticators{}, fmt.Errorf("%s: %w", vm.ID, err)
		}
		if raw == nil {
			continue
		}
		pub, err := parsePublicKey(raw)
		if err != nil {
			return Authenticators{}, fmt.Errorf("%s: %w", vm.ID, err)
		}
		auth.PublicKeys = append(auth.PublicKeys, pub)
	}
	return auth, nil
}

func publicKeyBytes(vm did.VerificationMethod) ([]byte, error) {
	switch {
	case vm.PublicKeyHex != "":
		return hex.DecodeString(strings.TrimPrefix(vm.PublicKeyHex, "0x"))
	case vm.PublicKeyBase58 != "":
		return base58.Decode(vm.PublicKeyBase58)
	case vm.PublicKeyBase64 != "":
		return base64.StdEncoding.DecodeString(vm.PublicKeyBase64)
	}
	return nil, nil
}

func parsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	switch len(raw) {
	case 33:
		return crypto.DecompressPubkey(raw)
	case 65:
		return crypto.UnmarshalPubkey(raw)
	}
	return nil, fmt.Errorf("secp256k1 public key has %d bytes", len(raw))
}
