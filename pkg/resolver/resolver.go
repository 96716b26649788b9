// Package resolver replays an identity's registry history into a DID
// document.
package resolver

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/registry"
)

// ErrUnsupportedNetwork is returned for DIDs naming a network this resolver
// is not bound to.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Source is the read side of a registry.
type Source interface {
	Owner(ctx context.Context, identity common.Address) (common.Address, error)
	Events(ctx context.Context, identity common.Address) ([]registry.Event, error)
}

// keyTypes maps the algorithm segment of did/pub attributes to verification
// method types.
var keyTypes = map[string]string{
	"Secp256k1":  did.TypeSecp256k1VerificationKey,
	"Ed25519":    did.TypeEd25519VerificationKey,
	"X25519":     did.TypeX25519KeyAgreementKey,
	"RSA":        did.TypeRSAVerificationKey,
	"Bls12381G1": did.TypeBls12381G1Key,
	"Bls12381G2": did.TypeBls12381G2Key,
}

// Resolver builds documents for one network.
type Resolver struct {
	source  Source
	network string
	chainID uint64
	clock   func() time.Time
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNetwork sets the network name DIDs must carry. Defaults to mainnet.
func WithNetwork(name string) Option {
	return func(r *Resolver) { r.network = name }
}

// WithChainID sets the chain id used in blockchainAccountId values.
func WithChainID(id uint64) Option {
	return func(r *Resolver) { r.chainID = id }
}

// WithClock sets the time used to decide which records are active.
func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver reading from source.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:  source,
		network: did.Mainnet,
		chainID: 1,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.network == "" {
		r.network = did.Mainnet
	}
	return r
}

// Resolve returns the current document for didURL. Fragments are ignored.
func (r *Resolver) Resolve(ctx context.Context, didURL string) (*did.Resolution, error) {
	id, err := did.Parse(didURL)
	if err != nil {
		return nil, err
	}
	if !r.servesNetwork(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, id.NetworkName())
	}
	id.Fragment = ""

	owner, err := r.source.Owner(ctx, id.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	events, err := r.source.Events(ctx, id.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve history: %w", err)
	}

	now := uint64(r.clock().Unix())
	res := r.build(id, owner, events, now)
	r.logger.Debug("resolved did", "did", res.Document.ID, "events", len(events), "version", res.Metadata.VersionID)
	return res, nil
}

func (r *Resolver) servesNetwork(id did.Identifier) bool {
	name := id.NetworkName()
	return name == r.network || name == "0x"+strconv.FormatUint(r.chainID, 16)
}

func (r *Resolver) build(id did.Identifier, owner common.Address, events []registry.Event, now uint64) *did.Resolution {
	subject := id.String()
	res := &did.Resolution{Document: did.Document{
		Context:            did.DefaultContext,
		ID:                 subject,
		VerificationMethod: []did.VerificationMethod{},
		Authentication:     []string{},
		AssertionMethod:    []string{},
	}}
	if n := len(events); n > 0 {
		last := events[n-1]
		res.Metadata.VersionID = strconv.FormatUint(last.BlockNumber, 10)
		res.Metadata.Updated = time.Unix(int64(last.Timestamp), 0).UTC().Format(time.RFC3339)
	}
	if owner == (common.Address{}) {
		res.Metadata.Deactivated = true
		return res
	}

	doc := &res.Document
	controller := subject + "#controller"
	doc.VerificationMethod = append(doc.VerificationMethod, did.VerificationMethod{
		ID:                  controller,
		Type:                did.TypeSecp256k1Recovery2020,
		Controller:          subject,
		BlockchainAccountID: did.BlockchainAccountID(r.chainID, owner),
	})
	doc.Authentication = append(doc.Authentication, controller)
	doc.AssertionMethod = append(doc.AssertionMethod, controller)

	if len(id.PublicKey) > 0 && owner == id.Address {
		ref := subject + "#controllerKey"
		doc.VerificationMethod = append(doc.VerificationMethod, did.VerificationMethod{
			ID:           ref,
			Type:         did.TypeSecp256k1VerificationKey,
			Controller:   subject,
			PublicKeyHex: hex.EncodeToString(id.PublicKey),
		})
		doc.Authentication = append(doc.Authentication, ref)
		doc.AssertionMethod = append(doc.AssertionMethod, ref)
	}

	ledger := NewLedger()
	for _, ev := range events {
		ledger.Apply(ev)
	}
	for _, rec := range ledger.Active(now) {
		switch rec.Kind {
		case registry.DelegateChanged:
			r.addDelegate(doc, rec)
		case registry.AttributeChanged:
			r.addAttribute(doc, rec)
		}
	}
	return res
}

func (r *Resolver) addDelegate(doc *did.Document, rec Record) {
	if !rec.DelegateType.Valid() {
		return
	}
	ref := fmt.Sprintf("%s#delegate-%d", doc.ID, rec.Index)
	doc.VerificationMethod = append(doc.VerificationMethod, did.VerificationMethod{
		ID:                  ref,
		Type:                did.TypeSecp256k1Recovery2020,
		Controller:          doc.ID,
		BlockchainAccountID: did.BlockchainAccountID(r.chainID, rec.Delegate),
	})
	doc.AssertionMethod = append(doc.AssertionMethod, ref)
	if rec.DelegateType == registry.SigAuth {
		doc.Authentication = append(doc.Authentication, ref)
	}
}

func (r *Resolver) addAttribute(doc *did.Document, rec Record) {
	attr, ok := registry.ParseAttributeName(rec.Name)
	if !ok {
		return
	}
	switch attr.Section {
	case "pub":
		typ, ok := keyTypes[attr.Type]
		if !ok {
			r.logger.Debug("skipping key of unknown type", "did", doc.ID, "name", rec.Name)
			return
		}
		vm := did.VerificationMethod{
			ID:         fmt.Sprintf("%s#delegate-%d", doc.ID, rec.Index),
			Type:       typ,
			Controller: doc.ID,
		}
		switch attr.Encoding {
		case "base64":
			vm.PublicKeyBase64 = base64.StdEncoding.EncodeToString(rec.Value)
		case "base58":
			vm.PublicKeyBase58 = base58.Encode(rec.Value)
		case "pem":
			vm.PublicKeyPem = string(rec.Value)
		default:
			vm.PublicKeyHex = hex.EncodeToString(rec.Value)
		}
		switch attr.Purpose {
		case "sigAuth":
			doc.Authentication = append(doc.Authentication, vm.ID)
			doc.AssertionMethod = append(doc.AssertionMethod, vm.ID)
		case "veriKey", "":
			doc.AssertionMethod = append(doc.AssertionMethod, vm.ID)
		case "enc":
			doc.KeyAgreement = append(doc.KeyAgreement, vm.ID)
		default:
			return
		}
		doc.VerificationMethod = append(doc.VerificationMethod, vm)
	case "svc":
		doc.Service = append(doc.Service, did.Service{
			ID:              fmt.Sprintf("%s#service-%d", doc.ID, rec.Index),
			Type:            attr.Type,
			ServiceEndpoint: serviceEndpoint(rec.Value),
		})
	}
}

// serviceEndpoint returns structured endpoints as decoded JSON and anything
// else as a plain string.
func serviceEndpoint(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			return v
		}
	}
	return string(raw)
}
