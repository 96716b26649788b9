package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/keys"
)

func sign(t *testing.T, method jwt.SigningMethod, kp *keys.KeyPair) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.MapClaims{"iss": "did:ethr:" + kp.Address.Hex(), "hello": "world"})
	s, err := tok.SignedString(SignerKey{Ctx: context.Background(), Signer: kp.Signer()})
	require.NoError(t, err)
	return s
}

func parse(raw string, alg string, key any) (*jwt.Token, error) {
	return jwt.Parse(raw, func(*jwt.Token) (any, error) { return key, nil }, jwt.WithValidMethods([]string{alg}))
}

func TestES256KR_RoundTrip(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	raw := sign(t, SigningMethodES256KR, kp)

	tok, err := parse(raw, "ES256K-R", Authenticators{Addresses: []common.Address{kp.Address}})
	require.NoError(t, err)
	require.True(t, tok.Valid)
	require.Equal(t, "ES256K-R", tok.Header["alg"])
	require.Len(t, tok.Signature, 65)
}

func TestES256KR_WrongSigner(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	other, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	raw := sign(t, SigningMethodES256KR, kp)

	_, err = parse(raw, "ES256K-R", Authenticators{Addresses: []common.Address{other.Address}})
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestES256K_PublicKeyAndAddress(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	raw := sign(t, SigningMethodES256K, kp)

	tok, err := parse(raw, "ES256K", kp.PublicKey)
	require.NoError(t, err)
	require.Len(t, tok.Signature, 64)

	_, err = parse(raw, "ES256K", kp.Address)
	require.NoError(t, err)

	other, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	_, err = parse(raw, "ES256K", other.PublicKey)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestSign_PrivateKeyAndBadKeys(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)

	raw, err := jwt.New(SigningMethodES256KR).SignedString(kp.PrivateKey)
	require.NoError(t, err)
	_, err = parse(raw, "ES256K-R", kp.Address)
	require.NoError(t, err)

	_, err = jwt.New(SigningMethodES256KR).SignedString("secret")
	require.ErrorIs(t, err, jwt.ErrInvalidKeyType)
	_, err = jwt.New(SigningMethodES256KR).SignedString(SignerKey{})
	require.ErrorIs(t, err, jwt.ErrInvalidKey)

	_, err = parse(raw, "ES256K-R", Authenticators{})
	require.Error(t, err)
}

func TestMethodsRegistered(t *testing.T) {
	require.Equal(t, SigningMethodES256K, jwt.GetSigningMethod("ES256K"))
	require.Equal(t, SigningMethodES256KR, jwt.GetSigningMethod("ES256K-R"))
}

func TestAuthenticatorsFromDocument(t *testing.T) {
	kp, err := keys.GenerateKeyPair()
	require.NoError(t, err)
	delegate := common.HexToAddress("0x00000000000000000000000000000000000d0d0d")
	subject := did.Format("", kp.Address)

	doc := &did.Document{
		ID: subject,
		VerificationMethod: []did.VerificationMethod{
			{ID: subject + "#controller", Type: did.TypeSecp256k1Recovery2020, BlockchainAccountID: did.BlockchainAccountID(1, kp.Address)},
			{ID: subject + "#delegate-1", Type: did.TypeSecp256k1Recovery2020, BlockchainAccountID: did.BlockchainAccountID(1, delegate)},
			{ID: subject + "#delegate-2", Type: did.TypeSecp256k1VerificationKey, PublicKeyHex: kp.PublicKeyHex()[2:]},
			{ID: subject + "#delegate-3", Type: did.TypeEd25519VerificationKey, PublicKeyBase58: "Ldp"},
		},
	}
	doc.AssertionMethod = []string{subject + "#controller", subject + "#delegate-1", subject + "#delegate-2", subject + "#delegate-3"}

	auth, err := AuthenticatorsFromDocument(doc, doc.AssertionMethod)
	require.NoError(t, err)
	require.Equal(t, []common.Address{kp.Address, delegate}, auth.Addresses)
	require.Len(t, auth.PublicKeys, 1)
	require.Equal(t, kp.Address, crypto.PubkeyToAddress(*auth.PublicKeys[0]))

	doc.VerificationMethod[2].PublicKeyHex = "abcd"
	_, err = AuthenticatorsFromDocument(doc, doc.AssertionMethod)
	require.Error(t, err)
}
