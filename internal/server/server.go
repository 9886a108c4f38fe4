package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chatcrm/wagateway/internal/auth"
	"github.com/chatcrm/wagateway/internal/config"
	"github.com/chatcrm/wagateway/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer assembles the HTTP surface. The webhook path is guarded by the
// payload signature check; every other route except the health probes sits
// behind the bearer-token gate.
func NewServer(log *slog.Logger, cfg config.ServerConfig, authCfg config.AuthConfig, pingHandler *handlers.PingHandler, webhookHandler *handlers.WebhookHandler, dispatchHandler *handlers.DispatchHandler, templatesHandler *handlers.TemplatesHandler) *Server {
	if log == nil {
		log = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(authCfg.JWTSecret, authCfg.Issuer, authCfg.Audience, func(c echo.Context) bool {
		path := c.Request().URL.Path
		if path == "/ping" || path == "/health" {
			return true
		}
		return strings.HasPrefix(path, "/send_message_from_whatsapp/")
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e, auth.SignatureMiddleware(authCfg.WebhookSecret))
	}
	if dispatchHandler != nil {
		dispatchHandler.Register(e)
	}
	if templatesHandler != nil {
		templatesHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
