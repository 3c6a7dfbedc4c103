// Command api serves the HTTP endpoints used by the course client: code
// redemption, active course listing, operational promo endpoints and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"course-access-bot/internal/config"
	"course-access-bot/internal/infra/api"
	pg "course-access-bot/internal/infra/db/postgres"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/infra/metrics"
	"course-access-bot/internal/usecase"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, unredacted codes and devices")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	metrics.MustRegister()
	metrics.SetBuildInfo("api", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	codeRepo := pg.NewRedeemableCodeRepo(pool, cfg.Store.Timeout)
	tm := pg.NewTxManager(pool, cfg.Store.Timeout)

	redemptionUC := usecase.NewRedemptionUseCase(codeRepo, logger, cfg.Runtime.Dev)
	entitlementUC := usecase.NewEntitlementUseCase(codeRepo, logger)
	codeAdminUC := usecase.NewCodeAdminUseCase(codeRepo, tm, logger)

	auth := api.NewAuthManager(cfg.API.AdminSecret, cfg.API.AdminTokenTTL)
	if auth == nil {
		logger.Warn().Msg("api.admin_secret not set; /promo endpoints are unauthenticated")
	}
	server := api.NewServer(redemptionUC, entitlementUC, codeAdminUC, auth, cfg.API, cfg.Runtime.Dev, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		pg.ReportPoolStats(gctx, pool, 15*time.Second)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("api stopped")
	return nil
}
