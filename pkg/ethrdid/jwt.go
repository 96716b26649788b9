package ethrdid

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/token"
)

// SignOptions tunes SignJWT.
type SignOptions struct {
	// ExpiresIn sets exp relative to iat. Zero leaves exp unset.
	ExpiresIn time.Duration
}

// SignJWT signs claims as this identity with ES256K-R. iss and iat are
// always set; caller-supplied values for them are overwritten.
func (c *Controller) SignJWT(ctx context.Context, claims jwt.MapClaims, opts SignOptions) (string, error) {
	signer := c.signer()
	if signer == nil {
		return "", ErrNoSignerConfigured
	}
	now := c.clock()
	out := jwt.MapClaims{}
	maps.Copy(out, claims)
	out["iss"] = c.DID()
	out["iat"] = now.Unix()
	if opts.ExpiresIn > 0 {
		out["exp"] = now.Add(opts.ExpiresIn).Unix()
	}

	raw, err := jwt.NewWithClaims(token.SigningMethodES256KR, out).SignedString(token.SignerKey{Ctx: ctx, Signer: signer})
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return raw, nil
}

// VerifyOptions tunes VerifyJWT.
type VerifyOptions struct {
	// Audience replaces this controller's DID as the accepted audience.
	Audience string
	// Authentication verifies against the issuer's authentication keys
	// instead of its assertion methods.
	Authentication bool
	// Leeway is the clock skew allowed on exp, nbf and iat.
	Leeway time.Duration
}

// Verified is a token whose signature traces back to its issuer's document.
type Verified struct {
	Token    *jwt.Token
	Claims   jwt.MapClaims
	Issuer   string
	Document *did.Document
}

// VerifyJWT checks raw's signature against the issuer's resolved document,
// its time claims against the controller clock, and its audience: when aud
// is present it must contain this DID (or opts.Audience) or the callback URL.
func (c *Controller) VerifyJWT(ctx context.Context, raw string, resolver DocumentResolver, opts VerifyOptions) (*Verified, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: verify jwt needs a resolver", ErrConfiguration)
	}
	var doc *did.Document
	keyFunc := func(t *jwt.Token) (any, error) {
		iss, err := t.Claims.GetIssuer()
		if err != nil || iss == "" {
			return nil, errors.New("missing iss claim")
		}
		res, err := resolver.Resolve(ctx, iss)
		if err != nil {
			return nil, fmt.Errorf("resolve issuer: %w", err)
		}
		doc = &res.Document
		refs := doc.AssertionMethod
		if opts.Authentication {
			refs = doc.Authentication
		}
		auth, err := token.AuthenticatorsFromDocument(doc, refs)
		if err != nil {
			return nil, err
		}
		if auth.Empty() {
			return nil, fmt.Errorf("issuer %s has no usable secp256k1 keys", iss)
		}
		return auth, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{token.SigningMethodES256K.Alg(), token.SigningMethodES256KR.Alg()}),
		jwt.WithTimeFunc(c.clock),
		jwt.WithLeeway(opts.Leeway),
	)
	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("verify jwt: %w", err)
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("verify jwt: %w", err)
	}
	if len(aud) > 0 && !c.acceptsAudience(aud, opts.Audience) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudience, []string(aud))
	}

	iss, _ := claims.GetIssuer()
	return &Verified{Token: tok, Claims: claims, Issuer: iss, Document: doc}, nil
}

func (c *Controller) acceptsAudience(aud jwt.ClaimStrings, override string) bool {
	want := c.DID()
	if override != "" {
		want = override
	}
	for _, a := range aud {
		if a == want || (c.callbackURL != "" && a == c.callbackURL) {
			return true
		}
	}
	return false
}
