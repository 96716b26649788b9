package registry

import (
	"errors"

	"github.com/spherity/ethr-did/pkg/keys"
)

var (
	// ErrInvalidInput indicates a mutation field cannot be encoded the way the
	// registry expects (unknown delegate type, oversized name or value).
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedSignature indicates missing or structurally invalid v/r/s.
	ErrMalformedSignature = keys.ErrMalformedSignature
	// ErrStaleNonce indicates the signature was produced over a hash built
	// against a nonce the registry has already consumed.
	ErrStaleNonce = errors.New("stale nonce")
	// ErrUnauthorized indicates the signer is not the identity's current owner.
	ErrUnauthorized = errors.New("signer is not the identity owner")
)
