package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/spherity/ethr-did/pkg/did"
	"github.com/spherity/ethr-did/pkg/resolver"
)

const resolveTimeout = 10 * time.Second

// cachedResolver fronts a resolver with a TTL cache. Concurrent misses for
// the same DID share one registry read.
type cachedResolver struct {
	inner *resolver.Resolver
	cache *expirable.LRU[string, *did.Resolution]
	group singleflight.Group
}

func newCachedResolver(inner *resolver.Resolver, size int, ttl time.Duration) *cachedResolver {
	return &cachedResolver{
		inner: inner,
		cache: expirable.NewLRU[string, *did.Resolution](size, nil, ttl),
	}
}

// Resolve satisfies ethrdid.DocumentResolver.
func (c *cachedResolver) Resolve(ctx context.Context, didURL string) (*did.Resolution, error) {
	id, err := did.Parse(didURL)
	if err != nil {
		return nil, err
	}
	id.Fragment = ""
	key := id.String()
	if res, ok := c.cache.Get(key); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return res, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	// The shared read is detached from any one caller; each caller still
	// stops waiting when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		res, err := c.inner.Resolve(rctx, key)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		return out.Val.(*did.Resolution), nil
	}
}

// Forget drops every cached DID controlled through identity.
func (c *cachedResolver) Forget(identity common.Address) {
	for _, k := range c.cache.Keys() {
		parsed, err := did.Parse(k)
		if err == nil && parsed.Address == identity {
			c.cache.Remove(k)
		}
	}
}

func (h *Handler) handleIdentityResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeErrorWithRequest(w, r, http.StatusMethodNotAllowed, "RELAY_VALIDATION", "method not allowed", nil)
		return
	}
	id, err := h.subject(r.PathValue("subject"))
	if err != nil {
		h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", err.Error(), nil)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), id.String())
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrUnsupportedNetwork):
			h.writeErrorWithRequest(w, r, http.StatusNotFound, "RELAY_NOT_FOUND", err.Error(), nil)
		case errors.Is(err, did.ErrInvalidDID):
			h.writeErrorWithRequest(w, r, http.StatusBadRequest, "RELAY_VALIDATION", err.Error(), nil)
		default:
			h.logger.Warn("resolve failed", "error", err, "did", id.String(), "correlationId", correlationIDFrom(r.Context()))
			h.writeErrorWithRequest(w, r, http.StatusBadGateway, "RELAY_UPSTREAM", "registry read failed", nil)
		}
		return
	}

	body := mustJSON(responseEnvelope{Data: res})
	etag := generateETag(body)
	w.Header().Set(headerCacheControl, cacheControlResolve)
	w.Header().Set(headerETag, etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write success failed", "error", err, "correlationId", correlationIDFrom(r.Context()))
	}
}
