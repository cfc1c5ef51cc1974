package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"glossa/bot/internal/config"
	"glossa/bot/internal/dedup"
	"glossa/bot/internal/gateway"
	"glossa/bot/internal/glossary"
	"glossa/bot/internal/rbac"
	"glossa/bot/internal/search"
	"glossa/bot/internal/session"
	"glossa/bot/internal/store"
	"glossa/bot/internal/wizard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	log := logger.Sugar()
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	client, err := store.Open(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalw("database connection failed", "error", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	dataStore := store.NewMongoStore(client, cfg.MongoDB)

	// Startup order matters: the legacy migration must finish before index
	// reconciliation sees the entry collection.
	migrator := store.NewMigrator(dataStore, log.Named("migrate"), cfg.StartupRetries, cfg.StartupBackoff())
	report, err := migrator.Run(ctx)
	if err != nil {
		log.Fatalw("legacy migration failed", "error", err)
	}
	log.Infow("migration check", "state", report.State, "migrated", report.Migrated, "skipped", report.Skipped)

	reconciler := store.NewReconciler(dataStore, store.DesiredIndexes(), log.Named("store"), cfg.StartupRetries, cfg.StartupBackoff())
	if _, err := reconciler.Run(ctx); err != nil {
		log.Fatalw("index reconciliation failed", "error", err)
	}

	searchLog := log.Named("search")
	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, searchLog)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewMongoText(dataStore), searchLog)

	policy := rbac.NewPolicy(cfg.ModeratorRole)
	glossaryService := glossary.New(dataStore, searchService, policy, log.Named("glossary"))

	sessions := session.NewRegistry(glossaryService, cfg.SessionTTL(), cfg.PageSize, log.Named("session"))
	defer sessions.Close()
	wizards := wizard.NewRegistry(glossaryService, cfg.WizardStepTTL(), log.Named("wizard"))
	defer wizards.Close()

	var deduper gateway.Deduper
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Infow("using redis for event dedup")
		redisDedup, err := dedup.NewRedis(cfg.RedisURL, cfg.EventDedupTTL())
		if err != nil {
			log.Fatalw("redis connection failed", "error", err)
		}
		defer redisDedup.Close()
		deduper = redisDedup
	} else {
		log.Infow("using in-memory event dedup")
		deduper = dedup.NewMemory(cfg.EventDedupTTL())
	}

	gatewayLog := log.Named("gateway")
	dispatcher := gateway.NewDispatcher(glossaryService, sessions, wizards, deduper, gatewayLog)
	expiriesDone := make(chan struct{})
	defer close(expiriesDone)
	go dispatcher.LogExpiries(expiriesDone)

	gatewayServer, err := gateway.NewServer(dispatcher, dataStore, cfg.GatewayPublicKey, cfg.AdminToken, gatewayLog)
	if err != nil {
		log.Fatalw("gateway setup failed", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gatewayServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("glossary bot listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}
