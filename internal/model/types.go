// Package model defines internal and external data shapes for the relay
// daemon. Internal types are used by storage and handlers, while DTOs are
// serialized on the wire.
package model

import "github.com/spherity/ethr-did/pkg/keys"

// Operation names recorded in the relay log. They match the registry
// mutation kinds accepted by POST /v1/relay.
const (
	OperationChangeOwner     = "changeOwner"
	OperationAddDelegate     = "addDelegate"
	OperationRevokeDelegate  = "revokeDelegate"
	OperationSetAttribute    = "setAttribute"
	OperationRevokeAttribute = "revokeAttribute"
)

// OperationLogEntry is one relayed meta-transaction.
type OperationLogEntry struct {
	DID           string         `json:"did"`
	Operation     string         `json:"operation"`
	PerformedAt   string         `json:"performedAt"` // RFC3339
	Actor         string         `json:"actor"`       // relayer address
	CorrelationID string         `json:"correlationId"`
	TxHash        string         `json:"txHash"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// MutationDTO describes a registry mutation on the wire. Only the fields
// relevant to Kind are read.
type MutationDTO struct {
	Kind         string `json:"kind"`
	Identity     string `json:"identity"`
	NewOwner     string `json:"newOwner,omitempty"`
	DelegateType string `json:"delegateType,omitempty"`
	Delegate     string `json:"delegate,omitempty"`
	Name         string `json:"name,omitempty"`
	Value        string `json:"value,omitempty"`
	Validity     uint64 `json:"validity,omitempty"`
}

// RelayRequestDTO is the body of POST /v1/relay.
type RelayRequestDTO struct {
	MutationDTO
	// Signature is the owner's {v, r, s} over the digest from POST /v1/hash.
	Signature keys.Signature `json:"signature"`
}

// HashResponseDTO is the digest an external signer must sign.
type HashResponseDTO struct {
	Hash     string `json:"hash"`
	Nonce    uint64 `json:"nonce"`
	Registry string `json:"registry"`
}
