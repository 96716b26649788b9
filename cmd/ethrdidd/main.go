// Command ethrdidd relays owner-signed did:ethr registry mutations and
// resolves DID documents over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherity/ethr-did/internal/config"
	"github.com/spherity/ethr-did/internal/server"
	"github.com/spherity/ethr-did/internal/storage"
	"github.com/spherity/ethr-did/pkg/keys"
	"github.com/spherity/ethr-did/pkg/registry"
)

// devChainID is used with the in-memory registry when ETHR_CHAIN_ID is unset.
const devChainID = 1337

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ethrdidd stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "dev" {
		opts.Level = slog.LevelDebug
	}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// run serves the API and metrics listeners until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	h, err := newHandler(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	api := &http.Server{
		Addr:              cfg.Address,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metrics := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           server.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range map[string]*http.Server{"api": api, "metrics": metrics} {
		g.Go(func() error {
			logger.Info("listener starting", "listener", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s listener: %w", name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(api.Shutdown(shutdownCtx), metrics.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// newHandler wires the registry, relay log and relayer key. cfg.ChainID is
// filled in from the chain when it was not configured.
func newHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Handler, error) {
	relayer, err := keys.KeyPairFromHex(cfg.RelayerKey)
	if err != nil {
		return nil, fmt.Errorf("relayer key: %w", err)
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, *cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("relayer configured",
		"relayer", relayer.Address.Hex(),
		"registry", provider.Address().Hex(),
		"network", cfg.Network,
		"chainId", cfg.ChainID,
		"store", cfg.StoreBackend,
	)
	return server.New(*cfg, store, provider, relayer.Signer(), logger)
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (registry.Provider, error) {
	if cfg.RPCURL == "" {
		logger.Warn("ETHR_RPC_URL unset, using in-memory registry")
		if cfg.ChainID == 0 {
			cfg.ChainID = devChainID
		}
		return registry.NewMemoryRegistry(cfg.RegistryAddress), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	eth, err := registry.DialRegistry(dialCtx, cfg.RPCURL, cfg.RegistryAddress)
	if err != nil {
		return nil, err
	}
	chainID := eth.ChainID()
	if !chainID.IsUint64() {
		return nil, fmt.Errorf("chain id %s out of range", chainID)
	}
	if cfg.ChainID != 0 && cfg.ChainID != chainID.Uint64() {
		return nil, fmt.Errorf("ETHR_CHAIN_ID is %d but %s serves chain %d", cfg.ChainID, cfg.RPCURL, chainID.Uint64())
	}
	cfg.ChainID = chainID.Uint64()
	return eth, nil
}

func newStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		store, err := storage.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if db, ok := store.(interface{ DB() *sql.DB }); ok {
			if err := storage.MigratePostgres(ctx, db.DB()); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return store, nil
	default:
		return storage.NewMemory(), nil
	}
}
