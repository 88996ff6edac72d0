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

	"dindintalk/api/internal/app"
	"dindintalk/api/internal/blob"
	"dindintalk/api/internal/config"
	"dindintalk/api/internal/search"
	"dindintalk/api/internal/treedb"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var db treedb.Store
	var err error
	switch cfg.TreeBackend {
	case "memory":
		db = treedb.NewMemory()
	case "postgres":
		db, err = treedb.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres connection failed: %v", err)
		}
	case "redis":
		db, err = treedb.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
	default:
		log.Fatalf("unknown tree backend %q", cfg.TreeBackend)
	}
	defer db.Close()

	var blobs blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
	} else {
		log.Printf("MINIO_ENDPOINT not set, storing images in memory")
		blobs = blob.NewMemory()
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewTreeScan(db))

	service := app.NewService(cfg, db, blobs, searchService)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: counter bootstrap error (will retry on next restart): %v", err)
	}

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
		log.Printf("dindintalk API listening on %s", cfg.Addr)
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
