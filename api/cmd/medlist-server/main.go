package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medlist/api/internal/config"
	"medlist/api/internal/handle"
	"medlist/api/internal/httpserver"
	"medlist/api/internal/logger"
	"medlist/api/internal/medlist"
	"medlist/api/internal/metrics"
	"medlist/api/internal/ocr/providers"
	"medlist/api/internal/prompt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "medlist-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		return err
	}
	promptText, err := prompt.Load(cfg.PromptFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engs, closeEngines, err := providers.Build(ctx, cfg, promptText, log)
	if err != nil {
		return err
	}
	defer closeEngines()

	m := metrics.New()
	svc := medlist.NewService(engs, log, m)
	h := handle.New(svc, log, cfg.MaxUploadBytes, time.Duration(cfg.TimeoutSec)*time.Second)

	mux := httpserver.NewMux(httpserver.Routes{
		Parse:     h.Parse,
		Metrics:   m.Handler(),
		StaticDir: cfg.StaticDir,
		RootBody:  "medlist parse service",
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, ":"+cfg.Port, httpserver.AccessLog(log, mux), log)
	})
	log.Info("medlist-server started",
		zap.String("port", cfg.Port),
		zap.String("default_llm", engs.Default()),
		zap.Strings("engines", engs.Names()),
	)
	return g.Wait()
}
