package ethrdid

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/spherity/ethr-did/pkg/keys"
	"github.com/spherity/ethr-did/pkg/registry"
	"github.com/spherity/ethr-did/pkg/resolver"
)

var registryAddress = common.HexToAddress("0xdca7ef03e98e0dc2b855be647c39abe984fcf21b")

type env struct {
	t        *testing.T
	ctx      context.Context
	now      time.Time
	reg      *registry.MemoryRegistry
	resolver *resolver.Resolver
	owner    *keys.KeyPair
	relayer  *keys.KeyPair
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t, ctx: context.Background(), now: time.Unix(1_700_000_000, 0)}
	e.reg = registry.NewMemoryRegistry(registryAddress, registry.WithClock(e.clock))
	e.resolver = resolver.New(e.reg, resolver.WithChainID(1), resolver.WithClock(e.clock))
	var err error
	e.owner, err = keys.GenerateKeyPair()
	require.NoError(t, err)
	e.relayer, err = keys.GenerateKeyPair()
	require.NoError(t, err)
	return e
}

func (e *env) clock() time.Time { return e.now }

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

func (e *env) controller(mutate ...func(*Config)) *Controller {
	e.t.Helper()
	cfg := Config{
		Identifier: e.owner.Address.Hex(),
		Provider:   e.reg,
		PrivateKey: e.owner.PrivateKey,
		Relayer:    e.relayer.Signer(),
		Clock:      e.clock,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(e.t, err)
	return c
}

func (e *env) sign(kp *keys.KeyPair, digest common.Hash) keys.Signature {
	e.t.Helper()
	sig, err := kp.Signer().Sign(e.ctx, digest.Bytes())
	require.NoError(e.t, err)
	return sig
}

func (e *env) nonce(id common.Address) uint64 {
	e.t.Helper()
	n, err := e.reg.Nonce(e.ctx, id)
	require.NoError(e.t, err)
	return n
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(Config{Identifier: "0xf3beac30c498d9e26865f34fcaa57dbb935b0d74"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_DIDForms(t *testing.T) {
	e := newEnv(t)
	c := e.controller()
	require.Equal(t, "did:ethr:"+e.owner.Address.Hex(), c.DID())
	require.Equal(t, uint64(1), c.ChainID())

	c = e.controller(func(cfg *Config) { cfg.Network = "sepolia" })
	require.Equal(t, "did:ethr:sepolia:"+e.owner.Address.Hex(), c.DID())

	c = e.controller(func(cfg *Config) { cfg.Identifier = e.owner.PublicKeyHex() })
	require.Equal(t, "did:ethr:"+e.owner.PublicKeyHex(), c.DID())
	require.Equal(t, e.owner.Address, c.Address())

	_, err := New(Config{Identifier: "not-an-address", Provider: e.reg})
	require.Error(t, err)
}

func TestDirect_AddDelegateShowsInDocument(t *testing.T) {
	e := newEnv(t)
	c := e.controller()
	delegate := common.HexToAddress("0x00000000000000000000000000000000000d0d0d")

	tx, err := c.AddDelegate(e.ctx, delegate, DelegateOptions{})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, tx)
	require.Equal(t, uint64(1), e.nonce(c.Address()))

	res, err := e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	require.Equal(t, []string{c.DID() + "#controller", c.DID() + "#delegate-1"}, res.Document.AssertionMethod)
	require.Equal(t, []string{c.DID() + "#controller"}, res.Document.Authentication)

	e.advance((DefaultExpiresIn + 1) * time.Second)
	res, err = e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	require.Equal(t, []string{c.DID() + "#controller"}, res.Document.AssertionMethod)
}

func TestDirect_RequiresTxSigner(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) { cfg.PrivateKey = nil })

	_, err := c.ChangeOwner(e.ctx, e.relayer.Address)
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = c.SetAttribute(e.ctx, "did/svc/HubService", "https://hub.example.com", AttributeOptions{})
	require.ErrorIs(t, err, ErrConfiguration)
	require.Zero(t, e.nonce(c.Address()))
}

func TestDirect_ChangeOwner(t *testing.T) {
	e := newEnv(t)
	c := e.controller()
	next, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	_, err = c.ChangeOwner(e.ctx, next.Address)
	require.NoError(t, err)
	owner, err := c.LookupOwner(e.ctx)
	require.NoError(t, err)
	require.Equal(t, next.Address, owner)

	// The previous owner can no longer act for the identity.
	_, err = c.RevokeDelegate(e.ctx, e.relayer.Address, "")
	require.ErrorIs(t, err, registry.ErrUnauthorized)

	byNext := e.controller(func(cfg *Config) { cfg.TxSigner = next.Signer() })
	_, err = byNext.SetAttribute(e.ctx, "did/pub/Secp256k1/veriKey/hex", next.PublicKeyHex(), AttributeOptions{ExpiresIn: 60})
	require.NoError(t, err)
	require.Equal(t, uint64(2), e.nonce(c.Address()))
}

func TestSigned_SequentialNonces(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) { cfg.PrivateKey = nil })
	a := common.HexToAddress("0x000000000000000000000000000000000000000a")
	b := common.HexToAddress("0x000000000000000000000000000000000000000b")

	hashA, err := c.CreateAddDelegateHash(e.ctx, a, DelegateOptions{})
	require.NoError(t, err)
	want, err := registry.AddDelegate(c.Address(), registry.VeriKey, a, DefaultExpiresIn).Digest(registryAddress, 0)
	require.NoError(t, err)
	require.Equal(t, want, hashA)

	// B's hash is built against nonce 0, before A lands.
	staleB, err := c.CreateAddDelegateHash(e.ctx, b, DelegateOptions{})
	require.NoError(t, err)

	_, err = c.AddDelegateSigned(e.ctx, a, e.sign(e.owner, hashA), DelegateOptions{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e.nonce(c.Address()))

	_, err = c.AddDelegateSigned(e.ctx, b, e.sign(e.owner, staleB), DelegateOptions{})
	require.ErrorIs(t, err, registry.ErrStaleNonce)

	hashB, err := c.CreateAddDelegateHash(e.ctx, b, DelegateOptions{})
	require.NoError(t, err)
	want, err = registry.AddDelegate(c.Address(), registry.VeriKey, b, DefaultExpiresIn).Digest(registryAddress, 1)
	require.NoError(t, err)
	require.Equal(t, want, hashB)
	_, err = c.AddDelegateSigned(e.ctx, b, e.sign(e.owner, hashB), DelegateOptions{})
	require.NoError(t, err)
	require.Equal(t, uint64(2), e.nonce(c.Address()))
}

func TestHashes_ZeroExpiresInUsesDefault(t *testing.T) {
	e := newEnv(t)
	c := e.controller()
	delegate := common.HexToAddress("0x000000000000000000000000000000000000000a")

	zero, err := c.CreateAddDelegateHash(e.ctx, delegate, DelegateOptions{})
	require.NoError(t, err)
	explicit, err := c.CreateAddDelegateHash(e.ctx, delegate, DelegateOptions{Type: registry.VeriKey, ExpiresIn: DefaultExpiresIn})
	require.NoError(t, err)
	require.Equal(t, explicit, zero)

	zero, err = c.CreateSetAttributeHash(e.ctx, "did/svc/HubService", "https://hub.example.com", AttributeOptions{})
	require.NoError(t, err)
	explicit, err = c.CreateSetAttributeHash(e.ctx, "did/svc/HubService", "https://hub.example.com", AttributeOptions{ExpiresIn: DefaultExpiresIn})
	require.NoError(t, err)
	require.Equal(t, explicit, zero)
}

func TestSigned_AllKinds(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) { cfg.PrivateKey = nil })
	d := common.HexToAddress("0x00000000000000000000000000000000000d0d0d")
	const name, value = "did/svc/HubService", "https://hub.example.com"

	h, err := c.CreateSetAttributeHash(e.ctx, name, value, AttributeOptions{ExpiresIn: 120})
	require.NoError(t, err)
	_, err = c.SetAttributeSigned(e.ctx, name, value, e.sign(e.owner, h), AttributeOptions{ExpiresIn: 120})
	require.NoError(t, err)

	h, err = c.CreateAddDelegateHash(e.ctx, d, DelegateOptions{Type: registry.SigAuth})
	require.NoError(t, err)
	_, err = c.AddDelegateSigned(e.ctx, d, e.sign(e.owner, h), DelegateOptions{Type: registry.SigAuth})
	require.NoError(t, err)

	res, err := e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	require.Len(t, res.Document.Service, 1)
	require.Contains(t, res.Document.Authentication, c.DID()+"#delegate-2")

	e.advance(time.Second)
	h, err = c.CreateRevokeAttributeHash(e.ctx, name, value)
	require.NoError(t, err)
	_, err = c.RevokeAttributeSigned(e.ctx, name, value, e.sign(e.owner, h))
	require.NoError(t, err)

	h, err = c.CreateRevokeDelegateHash(e.ctx, d, registry.SigAuth)
	require.NoError(t, err)
	_, err = c.RevokeDelegateSigned(e.ctx, d, registry.SigAuth, e.sign(e.owner, h))
	require.NoError(t, err)

	next := common.HexToAddress("0x00000000000000000000000000000000000e0e0e")
	h, err = c.CreateChangeOwnerHash(e.ctx, next)
	require.NoError(t, err)
	_, err = c.ChangeOwnerSigned(e.ctx, next, e.sign(e.owner, h))
	require.NoError(t, err)

	e.advance(time.Second)
	res, err = e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	require.Empty(t, res.Document.Service)
	require.Equal(t, []string{c.DID() + "#controller"}, res.Document.Authentication)
	owner, err := c.LookupOwner(e.ctx)
	require.NoError(t, err)
	require.Equal(t, next, owner)
	require.Equal(t, uint64(5), e.nonce(c.Address()))
}

func TestSigned_ConfigurationErrors(t *testing.T) {
	e := newEnv(t)
	sig := keys.Signature{V: 27, R: make([]byte, 32), S: make([]byte, 32)}
	next := common.HexToAddress("0x00000000000000000000000000000000000e0e0e")

	noRelayer := e.controller(func(cfg *Config) { cfg.Relayer = nil })
	_, err := noRelayer.ChangeOwnerSigned(e.ctx, next, sig)
	require.ErrorIs(t, err, ErrConfiguration)

	selfRelay := e.controller(func(cfg *Config) { cfg.Relayer = e.owner.Signer() })
	_, err = selfRelay.ChangeOwnerSigned(e.ctx, next, sig)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSigned_Errors(t *testing.T) {
	e := newEnv(t)
	c := e.controller()
	stranger, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	next := common.HexToAddress("0x00000000000000000000000000000000000e0e0e")

	_, err = c.ChangeOwnerSigned(e.ctx, next, keys.Signature{V: 30, R: make([]byte, 32), S: make([]byte, 32)})
	require.ErrorIs(t, err, registry.ErrMalformedSignature)

	h, err := c.CreateChangeOwnerHash(e.ctx, next)
	require.NoError(t, err)
	_, err = c.ChangeOwnerSigned(e.ctx, next, e.sign(stranger, h))
	require.ErrorIs(t, err, registry.ErrUnauthorized)

	_, err = c.CreateAddDelegateHash(e.ctx, next, DelegateOptions{Type: "owner"})
	require.ErrorIs(t, err, registry.ErrInvalidInput)
	_, err = c.CreateSetAttributeHash(e.ctx, "did/pub/Secp256k1/veriKey/hex/but/far/too/long/x", "v", AttributeOptions{})
	require.ErrorIs(t, err, registry.ErrInvalidInput)
	require.Zero(t, e.nonce(c.Address()))
}

func TestSetAttribute_HexValue(t *testing.T) {
	e := newEnv(t)
	c := e.controller()

	_, err := c.SetAttribute(e.ctx, "did/pub/Secp256k1/veriKey/hex", e.relayer.PublicKeyHex(), AttributeOptions{})
	require.NoError(t, err)

	res, err := e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	vm, ok := res.Document.Method(c.DID() + "#delegate-1")
	require.True(t, ok)
	require.Equal(t, e.relayer.PublicKeyHex()[2:], vm.PublicKeyHex)

	_, err = c.RevokeAttribute(e.ctx, "did/pub/Secp256k1/veriKey/hex", e.relayer.PublicKeyHex())
	require.NoError(t, err)
	e.advance(time.Second)
	res, err = e.resolver.Resolve(e.ctx, c.DID())
	require.NoError(t, err)
	_, ok = res.Document.Method(c.DID() + "#delegate-1")
	require.False(t, ok)
}

func TestJWT_SignAndVerify(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) { cfg.CallbackURL = "https://app.example.com/callback" })

	raw, err := c.SignJWT(e.ctx, jwt.MapClaims{"hello": "world", "iss": "spoofed"}, SignOptions{ExpiresIn: time.Minute})
	require.NoError(t, err)

	v, err := c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, c.DID(), v.Issuer)
	require.Equal(t, "world", v.Claims["hello"])
	require.Equal(t, "ES256K-R", v.Token.Method.Alg())
	require.Equal(t, c.DID(), v.Document.ID)

	e.advance(2 * time.Minute)
	_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWT_Audience(t *testing.T) {
	e := newEnv(t)
	callback := "https://app.example.com/callback"
	c := e.controller(func(cfg *Config) { cfg.CallbackURL = callback })

	cases := []struct {
		aud any
		ok  bool
	}{
		{aud: c.DID(), ok: true},
		{aud: callback, ok: true},
		{aud: []string{"did:ethr:0x0000000000000000000000000000000000000001", c.DID()}, ok: true},
		{aud: "did:ethr:0x0000000000000000000000000000000000000001", ok: false},
		{aud: "https://elsewhere.example.com", ok: false},
	}
	for _, tc := range cases {
		raw, err := c.SignJWT(e.ctx, jwt.MapClaims{"aud": tc.aud}, SignOptions{})
		require.NoError(t, err)
		_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
		if tc.ok {
			require.NoError(t, err, "aud %v", tc.aud)
		} else {
			require.ErrorIs(t, err, ErrInvalidAudience, "aud %v", tc.aud)
		}
	}

	raw, err := c.SignJWT(e.ctx, jwt.MapClaims{"aud": "https://elsewhere.example.com"}, SignOptions{})
	require.NoError(t, err)
	_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{Audience: "https://elsewhere.example.com"})
	require.NoError(t, err)
}

func TestJWT_NoSigner(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) {
		cfg.PrivateKey = nil
		cfg.TxSigner = e.owner.Signer()
	})

	_, err := c.SignJWT(e.ctx, jwt.MapClaims{}, SignOptions{})
	require.ErrorIs(t, err, ErrNoSignerConfigured)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = c.VerifyJWT(e.ctx, "x.y.z", nil, VerifyOptions{})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestJWT_ExternalSigner(t *testing.T) {
	e := newEnv(t)
	c := e.controller(func(cfg *Config) {
		cfg.PrivateKey = nil
		cfg.Signer = e.owner.Signer()
	})

	raw, err := c.SignJWT(e.ctx, jwt.MapClaims{}, SignOptions{})
	require.NoError(t, err)
	_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
	require.NoError(t, err)
}

func TestCreateSigningDelegate(t *testing.T) {
	e := newEnv(t)
	c := e.controller()

	sd, err := c.CreateSigningDelegate(e.ctx, registry.VeriKey, 3600)
	require.NoError(t, err)
	require.NotNil(t, sd.KeyPair)
	require.NotEqual(t, common.Hash{}, sd.TxHash)

	raw, err := c.SignJWT(e.ctx, jwt.MapClaims{}, SignOptions{})
	require.NoError(t, err)
	v, err := c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
	require.NoError(t, err)
	require.Contains(t, v.Document.AssertionMethod, c.DID()+"#delegate-1")

	// veriKey delegates cannot authenticate.
	_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{Authentication: true})
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	e.advance(3601 * time.Second)
	_, err = c.VerifyJWT(e.ctx, raw, e.resolver, VerifyOptions{})
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}
