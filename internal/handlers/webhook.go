package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatcrm/wagateway/internal/ingest"
)

// WebhookHandler handles inbound webhook callbacks from the messaging
// platform.
type WebhookHandler struct {
	ingest *ingest.Service
	logger *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, svc *ingest.Service) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		ingest: svc,
		logger: log.With(slog.String("handler", "webhook")),
	}
}

// Register registers the webhook route. The signature middleware guards it
// instead of the bearer-token gate.
func (h *WebhookHandler) Register(e *echo.Echo, signature echo.MiddlewareFunc) {
	e.POST("/send_message_from_whatsapp/:business_account", h.Receive, signature)
}

// Receive ingests one webhook delivery. Replays of an already-stored
// message id return success without side effects, because the platform
// retries until it sees a 2xx.
func (h *WebhookHandler) Receive(c echo.Context) error {
	account := strings.TrimSpace(c.Param("business_account"))
	if account == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business account is required")
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	result, err := h.ingest.Handle(c.Request().Context(), account, body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}
