package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatcrm/wagateway/internal/config"
	"github.com/chatcrm/wagateway/internal/coreapi"
	"github.com/chatcrm/wagateway/internal/db"
	"github.com/chatcrm/wagateway/internal/dispatch"
	"github.com/chatcrm/wagateway/internal/filestore"
	"github.com/chatcrm/wagateway/internal/handlers"
	"github.com/chatcrm/wagateway/internal/ingest"
	"github.com/chatcrm/wagateway/internal/logger"
	"github.com/chatcrm/wagateway/internal/media"
	"github.com/chatcrm/wagateway/internal/outbox"
	"github.com/chatcrm/wagateway/internal/server"
	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/templates"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			providePool,
			provideStore,
			provideWhatsAppClient,
			provideCoreAPIClient,
			provideFileStoreClient,
			provideMediaPipeline,
			provideIngestService,
			provideDispatchService,
			provideTemplatesService,
			provideSweeper,
			handlers.NewPingHandler,
			provideWebhookHandler,
			provideDispatchHandler,
			provideTemplatesHandler,
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func providePool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		pool.Close()
		return nil
	}})
	return pool, nil
}

func provideStore(log *slog.Logger, pool *pgxpool.Pool) *store.Store {
	return store.New(log, pool)
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.WhatsApp.BaseURL, time.Duration(cfg.WhatsApp.TimeoutSeconds)*time.Second)
}

func provideCoreAPIClient(log *slog.Logger, cfg config.Config) *coreapi.Client {
	return coreapi.NewClient(log, cfg.CoreAPI.URL, cfg.CoreAPI.APIKey, time.Duration(cfg.CoreAPI.TimeoutSeconds)*time.Second)
}

func provideFileStoreClient(log *slog.Logger, cfg config.Config) *filestore.Client {
	return filestore.NewClient(log, cfg.FileStore.BaseURL, time.Duration(cfg.FileStore.TimeoutSeconds)*time.Second)
}

func provideMediaPipeline(log *slog.Logger, wa *whatsapp.Client, files *filestore.Client, st *store.Store) *media.Pipeline {
	return media.NewPipeline(log, wa, files, st)
}

func provideIngestService(log *slog.Logger, st *store.Store, pipeline *media.Pipeline, wa *whatsapp.Client) *ingest.Service {
	return ingest.NewService(log, st, pipeline, wa)
}

func provideDispatchService(log *slog.Logger, st *store.Store, wa *whatsapp.Client) *dispatch.Service {
	return dispatch.NewService(log, st, wa)
}

func provideTemplatesService(log *slog.Logger, st *store.Store, wa *whatsapp.Client) *templates.Service {
	return templates.NewService(log, st, wa, 0)
}

func provideSweeper(log *slog.Logger, st *store.Store, core *coreapi.Client, files *filestore.Client, cfg config.Config) *outbox.Sweeper {
	return outbox.NewSweeper(log, st, core, files, cfg.Outbox.SweepSchedule, cfg.Outbox.MaxAttempts)
}

func provideWebhookHandler(log *slog.Logger, svc *ingest.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, svc)
}

func provideDispatchHandler(log *slog.Logger, svc *dispatch.Service) *handlers.DispatchHandler {
	return handlers.NewDispatchHandler(log, svc)
}

func provideTemplatesHandler(log *slog.Logger, svc *templates.Service) *handlers.TemplatesHandler {
	return handlers.NewTemplatesHandler(log, svc)
}

func provideServer(log *slog.Logger, cfg config.Config, ping *handlers.PingHandler, webhook *handlers.WebhookHandler, dispatchHandler *handlers.DispatchHandler, templatesHandler *handlers.TemplatesHandler) *server.Server {
	return server.NewServer(log, cfg.Server, cfg.Auth, ping, webhook, dispatchHandler, templatesHandler)
}

func startSweeper(lc fx.Lifecycle, sweeper *outbox.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start() },
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
