package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/spherity/ethr-did/pkg/ethrdid"
)

// handleTokenVerify checks an ES256K(-R) JWT against its issuer's DID
// document. The accepted audience is ETHR_TOKEN_AUDIENCE, or the relayer's
// own DID when that is unset.
func (h *Handler) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}
	var input struct {
		Token          string `json:"token"`
		Authentication bool   `json:"authentication"` // verify against authentication keys only
		LeewaySeconds  int64  `json:"leewaySeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", "invalid JSON body", nil)
		return
	}
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", "token is required", nil)
		return
	}

	verified, err := h.verifier.VerifyJWT(r.Context(), raw, h.resolver, ethrdid.VerifyOptions{
		Audience:       h.cfg.TokenAudience,
		Authentication: input.Authentication,
		Leeway:         time.Duration(input.LeewaySeconds) * time.Second,
	})
	if err != nil {
		incrementTokenVerification("rejected")
		h.logger.Info("token rejected", "error", err, "correlationId", correlationIDFrom(r.Context()))
		h.writeErrorWithRequest(w, r, http.StatusUnauthorized, "TOKEN_INVALID", err.Error(), nil)
		return
	}
	incrementTokenVerification("verified")

	h.writeSuccess(w, http.StatusOK, map[string]any{
		"issuer": verified.Issuer,
		"alg":    verified.Token.Method.Alg(),
		"claims": verified.Claims,
	}, nil, r)
}
