package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"deadinternet.report/gateway/internal/account"
	"deadinternet.report/gateway/internal/config"
	"deadinternet.report/gateway/internal/gateway"
	"deadinternet.report/gateway/internal/identity"
	"deadinternet.report/gateway/internal/security"
	"deadinternet.report/gateway/internal/server"
	"deadinternet.report/gateway/internal/session"
	"deadinternet.report/gateway/internal/telemetry/otel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "gateway", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()
	emitter := otel.NewEventEmitter(providers.LoggerProvider)

	sessions, err := session.NewCodec([]byte(cfg.SessionSecret), cfg.SessionTTL())
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}
	tokens, err := security.NewTokenProvider([]byte(cfg.ServiceTokenSecret), cfg.TokenTTL())
	if err != nil {
		log.Fatalf("token provider: %v", err)
	}

	var cache *account.TierCache
	if cfg.RedisAddr != "" {
		cache = account.NewTierCache(cfg.RedisAddr, cfg.CacheTTL())
		defer cache.Close()
	}
	syncer := account.NewSyncer(cfg.BackendBaseURL, cfg.InternalSyncSecret, cache)

	idHandler := identity.NewHandler(oauthProviders(cfg), sessions, syncer, emitter)
	proxy := gateway.NewHandler(cfg.BackendBaseURL, gateway.AllowList(cfg.AllowedPrefixes()), sessions, tokens, emitter)

	srv := server.New(cfg.ListenAddr, server.Deps{
		Sessions:    sessions,
		Identity:    idHandler,
		Proxy:       proxy,
		RefreshTier: syncer.RefreshTier,
		Emitter:     emitter,
	})
	if err := server.Run(ctx, srv); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Println("gateway stopped")
}

func oauthProviders(cfg *config.Config) identity.ProviderSet {
	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	set := identity.ProviderSet{}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		set[identity.ProviderGoogle] = identity.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, base+"/auth/google/callback")
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		set[identity.ProviderGitHub] = identity.NewGitHub(cfg.GitHubClientID, cfg.GitHubClientSecret, base+"/auth/github/callback")
	}
	return set
}
