package ethrdid

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates the controller lacks a collaborator the
	// requested operation needs.
	ErrConfiguration = errors.New("controller misconfigured")
	// ErrNoSignerConfigured is returned by SignJWT when neither a private key
	// nor a signer was supplied.
	ErrNoSignerConfigured = fmt.Errorf("%w: no private key or signer for tokens", ErrConfiguration)
	// ErrInvalidAudience is returned by VerifyJWT when the token names an
	// audience other than this identity or its callback URL.
	ErrInvalidAudience = errors.New("token audience does not match")
)
