// Package keys holds secp256k1 key material and the signer abstraction used to
// authorize registry mutations and tokens.
package keys

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPair is a secp256k1 key pair together with its derived address.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	Address    common.Address
}

// GenerateKeyPair creates a fresh random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromHex loads a key pair from a hex private key, with or without 0x.
func KeyPairFromHex(hexKey string) (*KeyPair, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newKeyPair(priv), nil
}

func newKeyPair(priv *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  &priv.PublicKey,
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
	}
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (k *KeyPair) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(k.PrivateKey))
}

// PublicKeyHex returns the 0x-prefixed compressed public key.
func (k *KeyPair) PublicKeyHex() string {
	return hexutil.Encode(crypto.CompressPubkey(k.PublicKey))
}

// Signer returns a Signer backed by this key pair.
func (k *KeyPair) Signer() *KeySigner {
	return NewKeySigner(k.PrivateKey)
}
