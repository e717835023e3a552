package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/texview/docview/internal/api"
	"github.com/texview/docview/internal/config"
	"github.com/texview/docview/internal/document"
	"github.com/texview/docview/internal/expand"
	"github.com/texview/docview/internal/typeset"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	registry := expand.NewRegistry()
	expand.RegisterBuiltins(registry)

	base := typeset.Config{Packages: cfg.BasePackages, Tags: typeset.TagsNone}
	engine := typeset.NewAdapter(base, cfg.FontURL, log)
	if err := engine.Initialize(context.Background()); err != nil {
		log.Error("engine initialization failed", "error", err)
		os.Exit(1)
	}

	loader := document.NewLoader(cfg.DocsDir, cfg.FetchTimeout, cfg.MaxFetchBytes, log)
	styles := typeset.NewStyleRegistry()

	srv := api.NewServer(loader, engine, registry, styles, cfg, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting docview", "port", cfg.Port, "docs_dir", cfg.DocsDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
