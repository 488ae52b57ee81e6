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

	"quillpad/sync/internal/banner"
	"quillpad/sync/internal/config"
	"quillpad/sync/internal/relay"
	"quillpad/sync/internal/store"
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

	dataStore := store.NewPostgresStore(db)

	var banners relay.BannerStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		bannerService, err := banner.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("banner storage failed: %v", err)
		}
		if err := bannerService.EnsureBucket(ctx); err != nil {
			log.Fatalf("banner bucket failed: %v", err)
		}
		log.Printf("Banner storage enabled (bucket %s)", cfg.MinioBucket)
		banners = bannerService
	} else {
		log.Printf("Banner storage disabled (MINIO_ENDPOINT not set)")
	}

	hub := relay.NewHub()
	relayServer := relay.NewServer(hub, []byte(cfg.JWTSecret), dataStore, banners, cfg.CORSOrigin)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           relayServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Quillpad relay listening on %s", cfg.Addr)
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
