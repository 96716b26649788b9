// Package token registers secp256k1 JWT signing methods (ES256K and
// ES256K-R) with golang-jwt and maps DID documents to verification keys.
package token

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/spherity/ethr-did/pkg/keys"
)

// ErrSignatureMismatch is returned by Verify when no authenticator produced
// the signature.
var ErrSignatureMismatch = errors.New("secp256k1 signature does not match any authenticator")

// SignerKey is the key type accepted by the secp256k1 methods' Sign. Ctx is
// passed to the signer and may be nil.
type SignerKey struct {
	Ctx    context.Context
	Signer keys.Signer
}

// Authenticators is the key type accepted by Verify. A signature is valid if
// it was produced by any listed address or public key.
type Authenticators struct {
	Addresses  []common.Address
	PublicKeys []*ecdsa.PublicKey
}

// Empty reports whether there is nothing to verify against.
func (a Authenticators) Empty() bool {
	return len(a.Addresses) == 0 && len(a.PublicKeys) == 0
}

func (a Authenticators) hasAddress(addr common.Address) bool {
	for _, x := range a.Addresses {
		if x == addr {
			return true
		}
	}
	for _, pub := range a.PublicKeys {
		if crypto.PubkeyToAddress(*pub) == addr {
			return true
		}
	}
	return false
}

// SigningMethodSecp256k1 implements ES256K (r‖s) and ES256K-R (r‖s‖recovery).
type SigningMethodSecp256k1 struct {
	name        string
	recoverable bool
}

var (
	SigningMethodES256K  = &SigningMethodSecp256k1{name: "ES256K"}
	SigningMethodES256KR = &SigningMethodSecp256k1{name: "ES256K-R", recoverable: true}
)

func init() {
	jwt.RegisterSigningMethod(SigningMethodES256K.Alg(), func() jwt.SigningMethod { return SigningMethodES256K })
	jwt.RegisterSigningMethod(SigningMethodES256KR.Alg(), func() jwt.SigningMethod { return SigningMethodES256KR })
}

// Alg returns the JOSE algorithm name.
func (m *SigningMethodSecp256k1) Alg() string {
	return m.name
}

// Sign signs sha256(signingString). key is a SignerKey, *SignerKey or
// *ecdsa.PrivateKey.
func (m *SigningMethodSecp256k1) Sign(signingString string, key any) ([]byte, error) {
	var sk SignerKey
	switch k := key.(type) {
	case SignerKey:
		sk = k
	case *SignerKey:
		sk = *k
	case *ecdsa.PrivateKey:
		sk = SignerKey{Signer: keys.NewKeySigner(k)}
	default:
		return nil, jwt.ErrInvalidKeyType
	}
	if sk.Signer == nil {
		return nil, jwt.ErrInvalidKey
	}
	ctx := sk.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	digest := sha256.Sum256([]byte(signingString))
	sig, err := sk.Signer.Sign(ctx, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%s sign: %w", m.name, err)
	}
	raw := sig.RecoveryBytes()
	if m.recoverable {
		return raw, nil
	}
	return raw[:64], nil
}

// Verify checks sig over sha256(signingString) against an Authenticators key.
func (m *SigningMethodSecp256k1) Verify(signingString string, sig []byte, key any) error {
	var auth Authenticators
	switch k := key.(type) {
	case Authenticators:
		auth = k
	case *Authenticators:
		auth = *k
	case *ecdsa.PublicKey:
		auth = Authenticators{PublicKeys: []*ecdsa.PublicKey{k}}
	case common.Address:
		auth = Authenticators{Addresses: []common.Address{k}}
	default:
		return jwt.ErrInvalidKeyType
	}
	if auth.Empty() {
		return jwt.ErrInvalidKey
	}
	digest := sha256.Sum256([]byte(signingString))

	if m.recoverable {
		if len(sig) != 65 {
			return ErrSignatureMismatch
		}
		return recoverMatch(digest[:], sig, auth)
	}

	if len(sig) != 64 {
		return ErrSignatureMismatch
	}
	for _, pub := range auth.PublicKeys {
		if crypto.VerifySignature(crypto.CompressPubkey(pub), digest[:], sig) {
			return nil
		}
	}
	// Address-only authenticators are matched by trying both recovery ids.
	if len(auth.Addresses) > 0 {
		full := append(append(make([]byte, 0, 65), sig...), 0)
		for _, v := range []byte{0, 1} {
			full[64] = v
			if recoverMatch(digest[:], full, auth) == nil {
				return nil
			}
		}
	}
	return ErrSignatureMismatch
}

func recoverMatch(digest, sig []byte, auth Authenticators) error {
	rec := append([]byte(nil), sig...)
	if rec[64] >= 27 {
		rec[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, rec)
	if err != nil {
		return ErrSignatureMismatch
	}
	if !auth.hasAddress(crypto.PubkeyToAddress(*pub)) {
		return ErrSignatureMismatch
	}
	return nil
}
