package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/djsydney04/wrapshot/internal/api"
	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := jobs.Open(cfg.DBPath)
	if err != nil {
		log.Error("open job store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	claude := extract.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	extractor := extract.NewExtractor(claude, log, extract.Options{
		MaxTokens:   cfg.ExtractMaxTokens,
		Temperature: cfg.ExtractTemperature,
	})

	orch := pipeline.NewOrchestrator(cfg, store, extractor, log)
	orch.Launch(ctx)

	srv := api.NewServer(orch, claude, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		orch.Stop()
		claude.Close()
	}()

	log.Info("starting wrapshot", "port", cfg.Port, "db", store.Path(), "model", claude.Model())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
