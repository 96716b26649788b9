package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/internal/model"
	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/ethrdid"
	"github.com/spherity/ethr-did/pkg/registry"
)

// handleRelay submits an owner-signed mutation paid for by the relayer.
//
// The signature is checked against the registry's current owner and nonce
// before anything is sent, so a stale or foreign signature costs no gas.
func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}

	var input model.RelayRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", "invalid JSON body", nil)
		return
	}
	m, err := mutationFromDTO(input.MutationDTO)
	if err != nil {
		incrementRelay(input.Kind, "invalid")
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "RELAY_VALIDATION", err.Error(), nil)
		return
	}
	payload, err := registry.ApplySignature(m, input.Signature)
	if err != nil {
		incrementRelay(string(m.Kind), "invalid")
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "RELAY_SIGNATURE", err.Error(), nil)
		return
	}

	ctx := r.Context()
	owner, err := h.provider.Owner(ctx, m.Identity)
	if err != nil {
		h.upstreamError(w, r, "owner lookup failed", err)
		return
	}
	nonce, err := h.provider.Nonce(ctx, m.Identity)
	if err != nil {
		h.upstreamError(w, r, "nonce lookup failed", err)
		return
	}
	if err := registry.CheckSignature(payload, h.provider.Address(), nonce, owner); err != nil {
		h.rejectSignature(w, r, m, err)
		return
	}

	tx, err := h.provider.SendSigned(ctx, payload, h.relayer, registry.TxOptions{})
	if err != nil {
		// the registry may have moved on between the check and the send
		if errors.Is(err, registry.ErrStaleNonce) || errors.Is(err, registry.ErrUnauthorized) {
			h.rejectSignature(w, r, m, err)
			return
		}
		incrementRelay(string(m.Kind), "failed")
		h.upstreamError(w, r, "submit failed", err)
		return
	}
	incrementRelay(string(m.Kind), "submitted")
	h.resolver.Forget(m.Identity)

	subject := did.Format(h.cfg.Network, m.Identity)
	entry := model.OperationLogEntry{
		DID:           subject,
		Operation:     string(m.Kind),
		PerformedAt:   h.clock().Format(time.RFC3339),
		Actor:         h.relayer.Address().Hex(),
		CorrelationID: correlationIDFrom(ctx),
		TxHash:        tx.Hex(),
		Payload:       payloadFields(input.MutationDTO),
	}
	if err := h.store.AppendOperation(ctx, entry); err != nil {
		h.logger.Warn("append operation log failed", "error", err, "did", subject)
	}

	body := h.writeSuccess(w, http.StatusAccepted, map[string]any{
		"txHash":   tx.Hex(),
		"kind":     m.Kind,
		"identity": m.Identity.Hex(),
		"nonce":    nonce,
	}, nil, r)
	h.remember(r, w, http.StatusAccepted, body)
	h.logger.Info("mutation relayed", "did", subject, "kind", m.Kind, "tx", tx.Hex(), "correlationId", entry.CorrelationID)
}

func (h *Handler) rejectSignature(w http.ResponseWriter, r *http.Request, m registry.Mutation, err error) {
	switch {
	case errors.Is(err, registry.ErrStaleNonce):
		incrementRelay(string(m.Kind), "stale_nonce")
		staleNonces.Inc()
		h.writeErrorWithRequest(w, r, http.StatusConflict, "RELAY_STALE_NONCE", err.Error(), map[string]any{"identity": m.Identity.Hex()})
	case errors.Is(err, registry.ErrUnauthorized):
		incrementRelay(string(m.Kind), "unauthorized")
		h.writeErrorWithRequest(w, r, http.StatusForbidden, "RELAY_AUTHZ", err.Error(), nil)
	default:
		incrementRelay(string(m.Kind), "invalid")
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "RELAY_SIGNATURE", err.Error(), nil)
	}
}

func (h *Handler) upstreamError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Warn(msg, "error", err, "correlationId", correlationIDFrom(r.Context()))
	h.writeErrorWithRequest(w, r, http.StatusBadGateway, "RELAY_UPSTREAM", msg, nil)
}

// handleHash returns the digest the owner must sign for a mutation, at the
// registry's current nonce.
func (h *Handler) handleHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}
	var input model.MutationDTO
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", "invalid JSON body", nil)
		return
	}
	m, err := mutationFromDTO(input)
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "RELAY_VALIDATION", err.Error(), nil)
		return
	}
	digest, nonce, err := h.hashes.Build(r.Context(), m)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidInput) {
			h.writeErrorWithRequest(w, r, http.StatusUnprocessableEntity, "RELAY_VALIDATION", err.Error(), nil)
			return
		}
		h.upstreamError(w, r, "nonce lookup failed", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, model.HashResponseDTO{
		Hash:     digest.Hex(),
		Nonce:    nonce,
		Registry: h.provider.Address().Hex(),
	}, nil, r)
}

func (h *Handler) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}
	id, err := h.subject(r.PathValue("subject"))
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", err.Error(), nil)
		return
	}
	ctx := r.Context()
	nonce, err := h.provider.Nonce(ctx, id.Address)
	if err != nil {
		h.upstreamError(w, r, "nonce lookup failed", err)
		return
	}
	owner, err := h.provider.Owner(ctx, id.Address)
	if err != nil {
		h.upstreamError(w, r, "owner lookup failed", err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{
		"identity": id.Address.Hex(),
		"owner":    owner.Hex(),
		"nonce":    nonce,
	}, nil, r)
}

func (h *Handler) handleRelayLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}
	id, err := h.subject(r.PathValue("subject"))
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", err.Error(), nil)
		return
	}
	subject := did.Format(h.cfg.Network, id.Address)
	entries, err := h.store.ListOperations(r.Context(), subject)
	if err != nil {
		h.logger.Warn("list operations failed", "error", err, "did", subject)
		h.writeErrorWithRequest(w, r, http.StatusInternalServerError, "RELAY_INTERNAL", "relay log unavailable", nil)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]any{"did": subject, "operations": entries}, map[string]any{"count": len(entries)}, r)
}

// subject accepts a did:ethr, an address or a compressed public key.
func (h *Handler) subject(raw string) (did.Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return did.Identifier{}, errors.New("identifier is required")
	}
	return did.ParseSubject(h.cfg.Network, raw)
}

// mutationFromDTO decodes wire fields into a registry mutation. An omitted or
// zero validity means ethrdid.DefaultExpiresIn on both the hash and relay
// endpoints, so a signer and relay agree on the digest.
func mutationFromDTO(in model.MutationDTO) (registry.Mutation, error) {
	if !common.IsHexAddress(in.Identity) {
		return registry.Mutation{}, fmt.Errorf("%w: identity must be an address", registry.ErrInvalidInput)
	}
	identity := common.HexToAddress(in.Identity)
	validity := in.Validity
	if validity == 0 {
		validity = ethrdid.DefaultExpiresIn
	}

	var m registry.Mutation
	switch registry.Kind(in.Kind) {
	case registry.KindChangeOwner:
		if !common.IsHexAddress(in.NewOwner) {
			return registry.Mutation{}, fmt.Errorf("%w: newOwner must be an address", registry.ErrInvalidInput)
		}
		m = registry.ChangeOwner(identity, common.HexToAddress(in.NewOwner))
	case registry.KindAddDelegate, registry.KindRevokeDelegate:
		t, err := registry.ParseDelegateType(in.DelegateType)
		if err != nil {
			return registry.Mutation{}, err
		}
		if !common.IsHexAddress(in.Delegate) {
			return registry.Mutation{}, fmt.Errorf("%w: delegate must be an address", registry.ErrInvalidInput)
		}
		delegate := common.HexToAddress(in.Delegate)
		if registry.Kind(in.Kind) == registry.KindAddDelegate {
			m = registry.AddDelegate(identity, t, delegate, validity)
		} else {
			m = registry.RevokeDelegate(identity, t, delegate)
		}
	case registry.KindSetAttribute, registry.KindRevokeAttribute:
		value, err := registry.EncodeAttributeValue(in.Name, in.Value)
		if err != nil {
			return registry.Mutation{}, err
		}
		if registry.Kind(in.Kind) == registry.KindSetAttribute {
			m = registry.SetAttribute(identity, in.Name, value, validity)
		} else {
			m = registry.RevokeAttribute(identity, in.Name, value)
		}
	default:
		return registry.Mutation{}, fmt.Errorf("%w: unknown mutation kind %q", registry.ErrInvalidInput, in.Kind)
	}
	return m, m.Validate()
}

func payloadFields(in model.MutationDTO) map[string]any {
	out := map[string]any{}
	for k, v := range map[string]string{
		"newOwner":     in.NewOwner,
		"delegateType": in.DelegateType,
		"delegate":     in.Delegate,
		"name":         in.Name,
		"value":        in.Value,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if in.Validity > 0 {
		out["validity"] = in.Validity
	}
	return out
}
