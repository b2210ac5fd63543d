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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-api/api"
	"kanban-api/config"
	"kanban-api/domain"
	"kanban-api/storage"
	"kanban-api/summary"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, err := storage.New(cfg.StorageConnectionString, cfg.BoardTable, cfg.UsersTable)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var (
		rc      *redis.Client
		deduper api.Deduper
	)
	if opts := cfg.RedisOptions(); opts != nil {
		rc = redis.NewClient(opts)
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; board cache and idempotency keys disabled")
	}

	var events domain.EventPublisher
	if cfg.BoardEventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.BoardEventsQueue)
		if err != nil {
			return fmt.Errorf("event queue: %w", err)
		}
		events = q
	}

	boards := domain.NewBoardService(storage.NewCache(store, rc, cfg.CacheTTL), events)
	accounts := domain.NewUserService(store, boards)

	auth, err := newAuth(cfg)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
	}))
	e.Use(middleware.Decompress())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(echoprometheus.NewMiddleware("kanban_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Services{
		Board:      boards,
		Accounts:   accounts,
		Auth:       auth,
		Tokens:     auth,
		Summarizer: summary.NewClient(cfg.SummaryURL, cfg.SummaryKey, cfg.SummaryModel, cfg.SummaryTimeout),
		Deduper:    deduper,
	}, log.StandardLogger())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(":" + cfg.Port)
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newAuth(cfg *config.Config) (*api.Auth, error) {
	auth := api.NewAuth([]byte(cfg.LocalAuthSecret), cfg.TokenTTL)
	if cfg.Auth0Domain == "" {
		return auth, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	auth.UseAuth0(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.JWKSCacheTTL)
	return auth, nil
}
