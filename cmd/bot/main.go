// Command bot runs the Telegram front end: course catalogue, payment
// requests, approver decisions, broadcast and the stale-request janitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"course-access-bot/internal/application"
	"course-access-bot/internal/config"
	"course-access-bot/internal/domain/ports/adapter"
	tele "course-access-bot/internal/infra/adapters/telegram"
	pg "course-access-bot/internal/infra/db/postgres"
	"course-access-bot/internal/infra/i18n"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
	red "course-access-bot/internal/infra/redis"
	"course-access-bot/internal/infra/sched"
	"course-access-bot/internal/infra/worker"
	"course-access-bot/internal/usecase"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, full codes in logs, no-op Telegram when no token is set")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo("bot", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogue, err := cfg.Catalogue()
	if err != nil {
		return fmt.Errorf("catalogue: %w", err)
	}
	translator, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	states := red.NewStateRepo(redisClient, cfg.Redis.StateTTL)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	timeout := cfg.Store.Timeout
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool, timeout), redisClient, cfg.Redis.CacheTTL, logger)
	requestRepo := pg.NewPendingRequestRepo(pool, timeout)
	codeRepo := pg.NewRedeemableCodeRepo(pool, timeout)
	tm := pg.NewTxManager(pool, timeout)

	// ---- Telegram ----
	var (
		bot     adapter.TelegramBotAdapter
		realBot *tele.RealTelegramBotAdapter
	)
	if cfg.Bot.Token == "" {
		logger.Warn().Msg("bot.token not set; using no-op Telegram adapter")
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, rateLimiter, translator, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot = realBot
	}

	// ---- Use cases ----
	policy := usecase.NewApproverPolicy(cfg.Bot.ApproverIDs, cfg.Bot.ApproverUsernames)
	userUC := usecase.NewUserUseCase(userRepo, policy, tm, logger)
	issuanceUC := usecase.NewIssuanceUseCase(codeRepo, logger)
	requestUC := usecase.NewRequestUseCase(
		requestRepo, codeRepo, userUC, issuanceUC, catalogue, policy,
		bot, translator, cfg.Bot.ActivationSite, tm, logger,
	)
	statsUC := usecase.NewStatsUseCase(userRepo, requestRepo, codeRepo, logger)
	sendPool := worker.NewPool(4, logger)
	broadcastUC := usecase.NewBroadcastUseCase(userRepo, bot, sendPool, locker, logger)

	// ---- Facade ----
	facade := application.NewBotFacade(
		userUC, requestUC, broadcastUC, statsUC, states, bot, catalogue, policy,
		translator, cfg.Bot.PaymentInfo, cfg.Bot.ActivationSite, logger,
	)

	janitor := sched.NewRequestJanitor(cfg.Scheduler.JanitorInterval, cfg.Scheduler.AbandonAfter, requestUC, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sendPool.Start(gctx)
		<-gctx.Done()
		sendPool.Stop()
		return nil
	})
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second)
		return nil
	})
	if realBot != nil {
		realBot.SetFacade(facade)
		g.Go(func() error { return realBot.StartPolling(gctx) })
	}
	if cfg.Bot.MetricsPort > 0 {
		g.Go(func() error { return serveMetrics(gctx, cfg.Bot.MetricsPort) })
	}

	logger.Info().Str("version", version).Int("courses", len(catalogue.All())).Msg("bot started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("bot stopped")
	return nil
}

func serveMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
