package registry

import "fmt"

// DelegateType names the authority granted to a delegate.
type DelegateType string

const (
	// VeriKey delegates may sign assertions (JWTs, credentials).
	VeriKey DelegateType = "veriKey"
	// SigAuth delegates may additionally authenticate as the identity.
	SigAuth DelegateType = "sigAuth"
)

// Valid reports whether t is a recognised delegate type.
func (t DelegateType) Valid() bool {
	return t == VeriKey || t == SigAuth
}

// ParseDelegateType validates s as a delegate type.
func ParseDelegateType(s string) (DelegateType, error) {
	t := DelegateType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown delegate type %q", ErrInvalidInput, s)
	}
	return t, nil
}
