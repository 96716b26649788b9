// Package server contains HTTP handlers for the relay daemon.
// This file implements Prometheus metrics exposure endpoints.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for relay operations
var (
	// Counter for relayed mutations by kind and result
	relayCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethr_relay_mutations_total",
			Help: "Total number of relay requests, by mutation kind and result.",
		},
		[]string{"kind", "result"}, // submitted, invalid, stale_nonce, unauthorized, failed
	)

	// Counter for signatures rejected over an already consumed nonce
	staleNonces = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ethr_relay_stale_nonces_total",
			Help: "Total number of relay requests signed against a stale nonce.",
		},
	)

	// Counter for JWT verifications by result
	tokenVerificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethr_token_verifications_total",
			Help: "Total number of JWT verifications, by result.",
		},
		[]string{"result"}, // verified, rejected
	)

	// Counter for resolve cache lookups
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ethr_resolve_cache_lookups_total",
			Help: "Total number of DID document cache lookups, by outcome.",
		},
		[]string{"outcome"}, // hit, miss
	)
)

// metricsHandler exposes Prometheus metrics through the main HTTP server.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NewMetricsHandler creates a standalone HTTP handler for Prometheus metrics.
// This is used to create a separate metrics server that can listen on a
// different port, providing operational isolation between application
// traffic and metrics scraping.
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func incrementRelay(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	relayCount.WithLabelValues(kind, result).Inc()
}

func incrementTokenVerification(result string) {
	tokenVerificationCount.WithLabelValues(result).Inc()
}
