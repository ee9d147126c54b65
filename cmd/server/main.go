// Package main provides the entry point for the registry pull proxy.
// It wires the local authentication gate, the upstream fetcher and the
// HTTP surface together and manages the server lifecycle with graceful
// shutdown.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pullproxy/pullproxy/internal/auth"
	"github.com/pullproxy/pullproxy/internal/config"
	"github.com/pullproxy/pullproxy/internal/token"
	"github.com/pullproxy/pullproxy/internal/transport"
	"github.com/pullproxy/pullproxy/internal/upstream"
	"github.com/pullproxy/pullproxy/internal/users"
	"github.com/pullproxy/pullproxy/pkg/registry"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Info("configuration loaded",
		"addr", cfg.Addr,
		"upstream", cfg.UpstreamURL,
		"upstream_auth", cfg.UpstreamAuth,
		"local_auth", cfg.LocalAuth,
	)

	fetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build upstream fetcher: %v", err)
	}

	var store *users.Store
	if cfg.UsersFile != "" {
		store, err = users.NewStore(cfg.UsersFile, logger)
		if err != nil {
			log.Fatalf("failed to load users file: %v", err)
		}
	}

	handler, err := buildHandler(cfg, store, fetcher, logger)
	if err != nil {
		log.Fatalf("failed to build handler: %v", err)
	}

	server := transport.NewServer(transport.ServerConfig{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Addr)
		return server.Start()
	})

	if store != nil {
		g.Go(func() error {
			err := store.Watch(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildFetcher dispatches the remote authentication variant once at
// startup into a concrete fetcher.
func buildFetcher(cfg *config.Config, logger *slog.Logger) (upstream.Fetcher, error) {
	client := &http.Client{Timeout: cfg.UpstreamTimeout}

	switch cfg.UpstreamAuth {
	case config.UpstreamAuthBasic:
		return upstream.NewBasicFetcher(cfg.UpstreamURL, cfg.UpstreamUsername, cfg.UpstreamPassword, client)

	case config.UpstreamAuthOAuth2:
		resolver := upstream.NewResolver(cfg.UpstreamURL, upstream.OAuth2Config{
			Username:         cfg.UpstreamUsername,
			Password:         cfg.UpstreamPassword,
			ForceScope:       cfg.UpstreamForceScope,
			ClientID:         cfg.UpstreamClientID,
			FallbackValidity: cfg.UpstreamFallbackValidity,
		}, client, logger)
		return upstream.NewBearerFetcher(cfg.UpstreamURL, resolver, client), nil

	default:
		return upstream.NewAnonymousFetcher(cfg.UpstreamURL, client), nil
	}
}

// buildHandler dispatches the local authentication strategy once at
// startup into the gate, challenge and token service the HTTP surface
// holds.
func buildHandler(cfg *config.Config, store *users.Store, fetcher upstream.Fetcher, logger *slog.Logger) (http.Handler, error) {
	transportCfg := transport.Config{
		Fetcher: fetcher,
		Logger:  logger,
	}

	switch cfg.LocalAuth {
	case config.LocalAuthBasic:
		transportCfg.Gate = auth.NewBasicGate(users.NewBasicAccess(store))
		transportCfg.Responder = transport.NewResponder(
			auth.BasicChallenge(cfg.Realm), cfg.Development(), logger)

	case config.LocalAuthOAuth:
		codec := token.NewCodec([]byte(cfg.TokenSecret))
		gate := auth.NewOAuthGate(codec, store)
		transportCfg.Gate = gate
		transportCfg.OAuth = gate
		transportCfg.Tokens = auth.NewService(codec, store, cfg.Service, cfg.TokenLifetime)
		transportCfg.Responder = transport.NewResponder(
			auth.BearerChallenge(cfg.Service, cfg.UseHTTPS, registry.DefaultTokenScope),
			cfg.Development(), logger)

	default:
		transportCfg.Gate = auth.NewNoneGate(cfg.LocalScope)
		transportCfg.Responder = transport.NewResponder("", cfg.Development(), logger)
	}

	return transport.NewHandler(transportCfg), nil
}
