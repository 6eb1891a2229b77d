package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tessera/api/internal/accounts"
	"tessera/api/internal/app"
	"tessera/api/internal/config"
	"tessera/api/internal/export"
	"tessera/api/internal/search"
	"tessera/api/internal/session"
	"tessera/api/internal/store"
	"tessera/api/internal/uploads"
	"tessera/api/internal/versions"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.VersionsDir, 0o755); err != nil {
		log.Fatalf("failed to create versions dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	accountService := accounts.NewService(dataStore)
	versionService := versions.New(cfg.VersionsDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()

	uploadService, err := uploads.NewService(ctx, uploads.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, dataStore)
	if err != nil {
		log.Printf("WARNING: upload storage unavailable, uploads disabled: %v", err)
		uploadService = nil
	}

	exportService := export.NewService(dataStore, versionService)

	deps := app.Deps{
		Store:    dataStore,
		Accounts: accountService,
		Sessions: redisStore,
		Versions: versionService,
		Search:   searchService,
		Exporter: exportService,
		DBPing:   db.PingContext,
	}
	if uploadService != nil {
		deps.Uploads = uploadService
	}
	service := app.NewService(cfg, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tessera API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
