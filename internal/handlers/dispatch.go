package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcrm/wagateway/internal/auth"
	"github.com/chatcrm/wagateway/internal/dispatch"
)

// DispatchHandler handles the outbound send endpoints. All routes sit
// behind the bearer-token gate; the business account comes from the
// verified token, never from the request body.
type DispatchHandler struct {
	dispatch *dispatch.Service
	logger   *slog.Logger
}

// NewDispatchHandler creates a DispatchHandler.
func NewDispatchHandler(log *slog.Logger, svc *dispatch.Service) *DispatchHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DispatchHandler{
		dispatch: svc,
		logger:   log.With(slog.String("handler", "dispatch")),
	}
}

// Register registers the outbound routes.
func (h *DispatchHandler) Register(e *echo.Echo) {
	e.POST("/send_message_to_whatsapp", h.SendMessage)
	e.POST("/send_notification_to_whatsapp", h.SendNotification)
	e.POST("/send_template_to_whatsapp", h.SendTemplate)
}

// SendMessage sends an operator-authored text message.
func (h *DispatchHandler) SendMessage(c echo.Context) error {
	account, err := auth.AccountFromContext(c)
	if err != nil {
		return err
	}
	var req dispatch.MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.BusinessAccount = account

	msg, err := h.dispatch.SendMessage(c.Request().Context(), req)
	if err != nil && msg.ID == "" {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(statusForDispatch(err), msg)
	}
	return c.JSON(http.StatusOK, msg)
}

// SendNotification sends an automated text message.
func (h *DispatchHandler) SendNotification(c echo.Context) error {
	account, err := auth.AccountFromContext(c)
	if err != nil {
		return err
	}
	var req dispatch.NotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.BusinessAccount = account

	msg, err := h.dispatch.SendNotification(c.Request().Context(), req)
	if err != nil && msg.ID == "" {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(statusForDispatch(err), msg)
	}
	return c.JSON(http.StatusOK, msg)
}

// SendTemplate sends a pre-approved template message.
func (h *DispatchHandler) SendTemplate(c echo.Context) error {
	account, err := auth.AccountFromContext(c)
	if err != nil {
		return err
	}
	var req dispatch.TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.BusinessAccount = account

	msg, err := h.dispatch.SendTemplate(c.Request().Context(), req)
	if err != nil && msg.ID == "" {
		return httpError(err)
	}
	if err != nil {
		return c.JSON(statusForDispatch(err), msg)
	}
	return c.JSON(http.StatusOK, msg)
}
