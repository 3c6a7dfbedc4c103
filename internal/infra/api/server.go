package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-access-bot/internal/config"
	"course-access-bot/internal/usecase"
)

// Server exposes redemption and entitlement queries to the client application.
type Server struct {
	redemption  usecase.RedemptionUseCase
	entitlement usecase.EntitlementUseCase
	codeAdmin   usecase.CodeAdminUseCase
	auth        *AuthManager
	cfg         config.APIConfig
	dev         bool
	log         *zerolog.Logger
}

func NewServer(
	redemption usecase.RedemptionUseCase,
	entitlement usecase.EntitlementUseCase,
	codeAdmin usecase.CodeAdminUseCase,
	auth *AuthManager,
	cfg config.APIConfig,
	dev bool,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		redemption:  redemption,
		entitlement: entitlement,
		codeAdmin:   codeAdmin,
		auth:        auth,
		cfg:         cfg,
		dev:         dev,
		log:         logger,
	}
}

// Router builds the chi routing tree with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		Timeout(s.cfg.RequestTimeout),
		CORS(),
	)

	r.Get("/validate-promo", s.handleValidatePromo)
	r.Get("/get-activated", s.handleGetActivated)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/promo/{code}", func(r chi.Router) {
		r.Use(RequireAdmin(s.auth, s.log))
		r.Get("/", s.handleLookupPromo)
		r.Post("/extend", s.handleExtendPromo)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, failure(msgNotFoundRoute))
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http api stopped")
	return nil
}
