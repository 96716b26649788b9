package did

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultContext is attached to every resolved document.
var DefaultContext = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/suites/secp256k1recovery-2020/v2",
}

// Verification method types emitted by the resolver.
const (
	TypeSecp256k1Recovery2020    = "EcdsaSecp256k1RecoveryMethod2020"
	TypeSecp256k1VerificationKey = "EcdsaSecp256k1VerificationKey2019"
	TypeEd25519VerificationKey   = "Ed25519VerificationKey2018"
	TypeRSAVerificationKey       = "RSAVerificationKey2018"
	TypeX25519KeyAgreementKey    = "X25519KeyAgreementKey2019"
	TypeBls12381G1Key            = "Bls12381G1Key2020"
	TypeBls12381G2Key            = "Bls12381G2Key2020"
)

const blockchainAccountNamespace = "eip155"

// Document is a resolved DID document.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// VerificationMethod describes a key or account able to act for the DID.
// Exactly one of the key material fields is set.
type VerificationMethod struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Controller          string `json:"controller"`
	BlockchainAccountID string `json:"blockchainAccountId,omitempty"`
	PublicKeyHex        string `json:"publicKeyHex,omitempty"`
	PublicKeyBase64     string `json:"publicKeyBase64,omitempty"`
	PublicKeyBase58     string `json:"publicKeyBase58,omitempty"`
	PublicKeyPem        string `json:"publicKeyPem,omitempty"`
}

// Service is an endpoint advertised by the DID subject.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint any    `json:"serviceEndpoint"`
}

// Metadata carries document versioning information.
type Metadata struct {
	VersionID   string `json:"versionId,omitempty"`
	Updated     string `json:"updated,omitempty"`
	Deactivated bool   `json:"deactivated,omitempty"`
}

// Resolution is the output of resolving a DID.
type Resolution struct {
	Document Document `json:"didDocument"`
	Metadata Metadata `json:"didDocumentMetadata"`
}

// Method looks up a verification method by id.
func (d *Document) Method(id string) (VerificationMethod, bool) {
	for _, vm := range d.VerificationMethod {
		if vm.ID == id {
			return vm, true
		}
	}
	return VerificationMethod{}, false
}

// Resolve maps a list of method references to the methods themselves,
// skipping references that are not present.
func (d *Document) Resolve(refs []string) []VerificationMethod {
	out := make([]VerificationMethod, 0, len(refs))
	for _, ref := range refs {
		if vm, ok := d.Method(ref); ok {
			out = append(out, vm)
		}
	}
	return out
}

// BlockchainAccountID formats an eip155 account id.
func BlockchainAccountID(chainID uint64, address common.Address) string {
	return fmt.Sprintf("%s:%d:%s", blockchainAccountNamespace, chainID, address.Hex())
}

// ParseBlockchainAccountID extracts the address of an eip155 account id.
func ParseBlockchainAccountID(id string) (common.Address, bool) {
	parts := strings.Split(id, ":")
	addr := parts[len(parts)-1]
	if len(parts) == 3 && parts[0] != blockchainAccountNamespace {
		return common.Address{}, false
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}
