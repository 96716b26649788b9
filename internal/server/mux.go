// Package server exposes the relay daemon over HTTP: it accepts owner-signed
// registry mutations and pays for them with the relayer key, serves the
// digests and nonces external signers need, and resolves DIDs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/spherity/ethr-did/internal/config"
	"github.com/spherity/ethr-did/internal/storage"
	"github.com/spherity/ethr-did/pkg/ethrdid"
	"github.com/spherity/ethr-did/pkg/keys"
	"github.com/spherity/ethr-did/pkg/registry"
	"github.com/spherity/ethr-did/pkg/resolver"
)

type contextKey string

const (
	contextKeyCorrelationID contextKey = "correlationId"

	headerContentType    = "Content-Type"
	headerCorrelationID  = "X-Correlation-Id"
	headerIdempotencyKey = "Idempotency-Key"
	headerCacheControl   = "Cache-Control"
	headerETag           = "ETag"

	contentTypeJSON     = "application/json"
	cacheControlResolve = "public, max-age=30"

	idempotencyTTL   = 24 * time.Hour
	resolveCacheSize = 1024
)

// Handler wires HTTP endpoints using net/http.
type Handler struct {
	cfg      config.Config
	store    storage.Store
	provider registry.Provider
	hashes   *registry.HashBuilder
	relayer  keys.Signer
	verifier *ethrdid.Controller
	resolver *cachedResolver
	logger   *slog.Logger
	clock    func() time.Time
	router   *http.ServeMux
}

// New creates a Handler using the supplied dependencies. cfg.ChainID must
// already be known.
func New(cfg config.Config, store storage.Store, provider registry.Provider, relayer keys.Signer, logger *slog.Logger) (*Handler, error) {
	if store == nil || provider == nil || relayer == nil {
		return nil, errors.New("store, provider and relayer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	res := resolver.New(provider,
		resolver.WithNetwork(cfg.Network),
		resolver.WithChainID(cfg.ChainID),
		resolver.WithLogger(logger),
	)

	// The relayer's own identity is the default audience for verified tokens.
	verifier, err := ethrdid.New(ethrdid.Config{
		Identifier: relayer.Address().Hex(),
		Network:    cfg.Network,
		ChainID:    cfg.ChainID,
		Provider:   provider,
		Relayer:    relayer,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("relayer identity: %w", err)
	}

	h := &Handler{
		cfg:      cfg,
		store:    store,
		provider: provider,
		hashes:   registry.NewHashBuilder(provider),
		relayer:  relayer,
		verifier: verifier,
		resolver: newCachedResolver(res, resolveCacheSize, cfg.ResolveCacheTTL),
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
		router:   http.NewServeMux(),
	}
	h.registerRoutes()
	return h, nil
}

// Router returns an *http.ServeMux with all routes registered.
func (h *Handler) Router() *http.ServeMux {
	return h.router
}

// Handler returns the router wrapped in the CORS middleware.
func (h *Handler) Handler() http.Handler {
	return h.corsMiddleware(h.router)
}

func (h *Handler) registerRoutes() {
	h.route("/health", http.HandlerFunc(h.health))
	h.route("/ready", http.HandlerFunc(h.readyHandler))
	h.route("/metrics", http.HandlerFunc(h.metricsHandler))

	h.route("/v1/relay", h.wrap(h.handleRelay))
	h.route("/v1/relay/{subject}", h.wrap(h.handleRelayLog))
	h.route("/v1/hash", h.wrap(h.handleHash))
	h.route("/v1/identity/{subject}", h.wrap(h.handleIdentityResolve))
	h.route("/v1/identity/{subject}/nonce", h.wrap(h.handleNonce))
	h.route("/v1/token/verify", h.wrap(h.handleTokenVerify))
}

func (h *Handler) route(pattern string, next http.Handler) {
	h.router.Handle(pattern, h.loggingMiddleware(pattern, h.timeoutMiddleware(next)))
}

type responseEnvelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  any            `json:"meta,omitempty"`
	Error *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) wrap(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := h.ensureCorrelationID(w, r)
		ctx := context.WithValue(r.Context(), contextKeyCorrelationID, correlationID)
		r = r.WithContext(ctx)
		w.Header().Set(headerContentType, contentTypeJSON)

		if h.tryReplay(w, r) {
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "correlationId", correlationID)
				h.writeError(w, http.StatusInternalServerError, "RELAY_INTERNAL", "internal server error", correlationID, nil)
			}
		}()

		next(w, r)
	})
}

func (h *Handler) ensureCorrelationID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(headerCorrelationID, id)
	return id
}

func (h *Handler) tryReplay(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		return false
	}
	cached, ok := h.store.Recall(r.Context(), key)
	if !ok {
		return false
	}
	for k, v := range cached.Headers {
		w.Header().Set(k, v)
	}
	// the replay keeps this request's correlation id
	w.Header().Set(headerCorrelationID, correlationIDFrom(r.Context()))
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
	return true
}

func (h *Handler) remember(r *http.Request, w http.ResponseWriter, status int, payload []byte) {
	if r.Method == http.MethodGet {
		return
	}
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		return
	}
	headers := make(map[string]string, len(w.Header()))
	for k := range w.Header() {
		headers[k] = w.Header().Get(k)
	}
	err := h.store.Remember(r.Context(), key, storage.StoredResponse{
		StatusCode: status,
		Body:       append([]byte(nil), payload...),
		Headers:    headers,
		ExpiresAt:  h.clock().Add(idempotencyTTL),
	})
	if err != nil {
		h.logger.Warn("remember response failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data any, meta any, r *http.Request) []byte {
	env := responseEnvelope{Data: data, Meta: meta}
	payload := mustJSON(env)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write success failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
	return payload
}

func (h *Handler) writeErrorWithRequest(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	h.writeError(w, status, code, message, correlationIDFrom(r.Context()), details)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, correlationID string, details any) {
	env := responseEnvelope{Error: &errorEnvelope{Code: code, Message: message, Details: details, CorrelationID: correlationID}}
	payload := mustJSON(env)
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("write error failed", "error", err, "correlationId", correlationID)
	}
}

func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return payload
}

func generateETag(body []byte) string {
	return fmt.Sprintf("W/\"%x\"", crypto.Keccak256(body)[:8])
}

func correlationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}
