package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"finance-tracker/core"
)

type identityBackend interface {
	core.IdentityStore
	core.IdentityDirectory
}

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logging")
	}
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var backend identityBackend
	if cfg.DatabaseURL != "" {
		repo, db, err := core.OpenIdentityRepository(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open identity database")
		}
		defer db.Close()
		backend = repo
	} else {
		log.Warn().Msg("DATABASE_URL not set; identities are kept in memory")
		backend = core.NewMemoryIdentityStore()
	}

	// Registration and the filter go through the cache when redis is
	// configured, so saves evict stale entries. Credential checks always hit
	// the store.
	var filterStore core.IdentityStore = backend
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisClient.Close()
		filterStore = core.NewCachedIdentityResolver(backend, redisClient, cfg.IdentityCacheTTL())
	}

	codec, err := core.NewTokenCodec(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token codec")
	}
	hasher := core.NewBcryptHasher(cfg.BcryptCost)
	authn := core.NewRepositoryAuthenticator(backend, hasher)
	authService := core.NewAuthenticationService(filterStore, hasher, codec, authn, cfg.TokenValidity())
	resolver := core.NewPrincipalResolver(codec, filterStore, cfg.TokenCookie())

	if err := core.BootstrapAdmin(ctx, backend, backend, hasher, cfg); err != nil {
		log.Fatal().Err(err).Msg("bootstrap admin failed")
	}

	// Gorilla cookie store for the CSRF session.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	router := core.NewRouter(cfg, store, authService, resolver, backend)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
