package keys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestKeySigner_SignRecovers(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := crypto.Keccak256([]byte("hello"))
	sig, err := kp.Signer().Sign(context.Background(), digest)
	require.NoError(t, err)
	require.Contains(t, []uint8{27, 28}, sig.V)
	require.Len(t, sig.R, 32)
	require.Len(t, sig.S, 32)

	got, err := Recover(digest, sig)
	require.NoError(t, err)
	require.Equal(t, kp.Address, got)
}

func TestKeySigner_RejectsShortDigest(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = kp.Signer().Sign(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)
}

func TestKeyPairFromHex_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	loaded, err := KeyPairFromHex(kp.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, kp.Address, loaded.Address)
	require.Equal(t, kp.PublicKeyHex(), loaded.PublicKeyHex())
	require.Len(t, kp.PublicKeyHex(), 2+33*2)
}

func TestSignature_Validate(t *testing.T) {
	good := Signature{V: 27, R: make([]byte, 32), S: make([]byte, 32)}
	good.R[31], good.S[31] = 1, 1
	require.NoError(t, good.Validate())

	cases := map[string]Signature{
		"bad v":   {V: 29, R: good.R, S: good.S},
		"short r": {V: 27, R: good.R[:31], S: good.S},
		"long s":  {V: 28, R: good.R, S: append(append([]byte{}, good.S...), 0)},
		"zero r":  {V: 27, R: make([]byte, 32), S: good.S},
		"missing": {},
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, sig.Validate(), ErrMalformedSignature)
		})
	}
}

func TestSignatureFromBytes_NormalizesRecoveryID(t *testing.T) {
	raw := make([]byte, 65)
	raw[0], raw[32], raw[64] = 1, 1, 1
	sig, err := SignatureFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(28), sig.V)
	require.Equal(t, uint8(1), sig.RecoveryBytes()[64])

	_, err = SignatureFromBytes(raw[:64])
	require.ErrorIs(t, err, ErrMalformedSignature)

	parsed, err := ParseSignature(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig, parsed)
}

func TestRemoteSigner_Sign(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in remoteSignRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sig, err := kp.Signer().Sign(r.Context(), in.Digest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(sig)
	}))
	defer srv.Close()

	remote := NewRemoteSigner(srv.URL, kp.Address, srv.Client())
	digest := crypto.Keccak256([]byte("remote"))
	sig, err := remote.Sign(context.Background(), digest)
	require.NoError(t, err)

	got, err := Recover(digest, sig)
	require.NoError(t, err)
	require.Equal(t, kp.Address, got)
}

func TestRemoteSigner_WrongKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in remoteSignRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		sig, _ := other.Signer().Sign(r.Context(), in.Digest)
		_ = json.NewEncoder(w).Encode(sig)
	}))
	defer srv.Close()

	_, err = NewRemoteSigner(srv.URL, kp.Address, nil).Sign(context.Background(), crypto.Keccak256([]byte("x")))
	require.Error(t, err)
}
