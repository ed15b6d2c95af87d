package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medlist/api/internal/config"
	"medlist/api/internal/httpserver"
	"medlist/api/internal/logger"
	"medlist/api/internal/medlist"
	"medlist/api/internal/metrics"
	"medlist/api/internal/ocr"
	"medlist/api/internal/ocr/providers"
	"medlist/api/internal/prompt"
	"medlist/api/internal/telegram"
)

// maxInFlight bounds concurrent model calls across all chats.
const maxInFlight = 8

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "medlist-bot:", err)
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

	if err := cfg.ValidateBot(); err != nil {
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

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return errors.Wrap(err, "telegram login")
	}
	log.Info("telegram authorized", zap.String("bot", bot.Self.UserName))

	m := metrics.New()
	r := &telegram.Router{
		Bot:        bot,
		Svc:        medlist.NewService(engs, log, m),
		EngManager: ocr.NewManager(engs),
		Log:        log,
		HTTP:       &http.Client{Timeout: 60 * time.Second},
		MaxBytes:   cfg.MaxUploadBytes,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	// Workers outlive the signal: a parse already started finishes within
	// r.Timeout and is waited for below, only new updates stop arriving.
	workCtx := context.WithoutCancel(gctx)
	workers := new(errgroup.Group)
	workers.SetLimit(maxInFlight)
	dispatch := func(upd tgbotapi.Update) {
		workers.Go(func() error {
			r.HandleUpdate(workCtx, upd)
			return nil
		})
	}

	routes := httpserver.Routes{Metrics: m.Handler(), RootBody: "medlist telegram bot"}
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		path := telegram.WebhookPath(cfg.TelegramBotToken)
		wh, err := tgbotapi.NewWebhook(strings.TrimRight(webhookURL, "/") + path)
		if err != nil {
			return errors.Wrap(err, "webhook config")
		}
		wh.DropPendingUpdates = true
		if _, err := bot.Request(wh); err != nil {
			return errors.Wrap(err, "set webhook")
		}
		routes.Webhook = telegram.WebhookHandler(bot.HandleUpdate, dispatch, log)
		routes.WebhookAt = path
		log.Info("webhook mode", zap.String("path", path))
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Warn("delete webhook", zap.Error(err))
		}
		g.Go(func() error {
			telegram.Poll(gctx, bot, dispatch, log)
			return nil
		})
		log.Info("polling mode")
	}

	g.Go(func() error {
		return httpserver.Serve(gctx, ":"+cfg.Port, httpserver.AccessLog(log, httpserver.NewMux(routes)), log)
	})

	err = g.Wait()
	_ = workers.Wait()
	return err
}
