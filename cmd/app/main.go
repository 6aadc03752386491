// File: cmd/app/main.go
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

	"github.com/rs/zerolog"

	"vpn-checkout/internal/config"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/infra/adapters/telegram"
	"vpn-checkout/internal/infra/adapters/upstream"
	"vpn-checkout/internal/infra/api"
	"vpn-checkout/internal/infra/i18n"
	"vpn-checkout/internal/infra/logging"
	"vpn-checkout/internal/infra/metrics"
	red "vpn-checkout/internal/infra/redis"
	"vpn-checkout/internal/infra/sched"
	"vpn-checkout/internal/infra/scheduler"
	"vpn-checkout/internal/infra/worker"
	"vpn-checkout/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Upstream API ----
	up := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Secret, logger,
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		upstream.WithRetry(cfg.Upstream.Attempts, cfg.Upstream.Backoff),
	)
	if !up.Configured() {
		logger.Error().Msg("upstream.secret (API_SECRET) is not set; upstream endpoints will answer CONFIG_ERROR")
	}

	msgs, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Checkout.Locale)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Telegram ----
	bot := newBot(cfg.Bot.Token, cfg.Runtime.Dev, logger)
	contactBot := bot
	if cfg.Contact.BotToken != cfg.Bot.Token {
		contactBot = newBot(cfg.Contact.BotToken, cfg.Runtime.Dev, logger)
	}

	pool := worker.NewPool(cfg.Bot.Workers, logger)
	pool.Start(ctx)

	// ---- Use cases ----
	catalog := usecase.NewCatalogUseCase(up, red.NewPlanCache(redisClient, cfg.Redis.TTL), logger)
	botUC := usecase.NewBotUseCase(bot, cfg.Bot.Username, pool, msgs, logger)
	checkout := usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Catalog:   catalog,
		Purchases: up,
		Topups:    up,
		Accounts:  up,
		Pending:   red.NewPendingPurchaseRepo(redisClient, cfg.Checkout.PendingTTL),
		Locker:    red.NewLocker(redisClient),
		Poller:    usecase.NewTopupPoller(up, cfg.Checkout.PollInterval, cfg.Checkout.MaxPollDuration, logger),
		Notifier:  botUC,
		Messages:  msgs,
	}, logger)
	identity := usecase.NewIdentityUseCase(cfg.Bot.Token, cfg.Checkout.Anonymous(), cfg.Runtime.Dev, logger)
	contact := usecase.NewContactUseCase(contactBot, cfg.Contact.ChatID, red.NewRateLimiter(redisClient),
		usecase.ContactLimits{Limit: cfg.Contact.RateLimit, Window: cfg.Contact.Window}, msgs, logger)

	// ---- Background jobs ----
	var warmer *scheduler.Scheduler
	if up.Configured() {
		warmer = scheduler.NewScheduler("plan-cache-warmer", cfg.Redis.TTL, scheduler.JobFunc(catalog.Refresh), logger)
		warmer.Start(ctx)
	}
	janitor := sched.NewSessionJanitor(cfg.Checkout.JanitorInterval, cfg.Checkout.SessionIdleTTL, checkout, logger)
	go func() { _ = janitor.Run(ctx) }()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Upstream:       up,
		Catalog:        catalog,
		Checkout:       checkout,
		Identity:       identity,
		Bot:            botUC,
		Contact:        contact,
		Sessions:       api.NewSessionManager(cfg.Session.Secret, cfg.Session.CookieName, !cfg.Runtime.Dev, cfg.Session.TTL),
		Messages:       msgs,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Dev:            cfg.Runtime.Dev,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("upstream", cfg.Upstream.BaseURL).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	checkout.Shutdown()
	if warmer != nil {
		warmer.Stop()
	}
	cancel()
	pool.Stop()
	logger.Info().Msg("bye")
}

// newBot returns nil without a token so callers can report CONFIG_ERROR; in
// dev mode a logging stand-in is used instead.
func newBot(token string, dev bool, logger *zerolog.Logger) adapter.TelegramBotAdapter {
	if token == "" {
		if dev {
			return telegram.NewNoopBotAdapter(logger)
		}
		return nil
	}
	b, err := telegram.NewBotSender(token, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram bot unavailable; messages will not be delivered")
		return nil
	}
	return b
}
