package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcrm/wagateway/internal/auth"
	"github.com/chatcrm/wagateway/internal/templates"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

// TemplatesHandler serves the per-account template catalog.
type TemplatesHandler struct {
	templates *templates.Service
	logger    *slog.Logger
}

// NewTemplatesHandler creates a TemplatesHandler.
func NewTemplatesHandler(log *slog.Logger, svc *templates.Service) *TemplatesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TemplatesHandler{
		templates: svc,
		logger:    log.With(slog.String("handler", "templates")),
	}
}

// Register registers the catalog route.
func (h *TemplatesHandler) Register(e *echo.Echo) {
	e.GET("/get_templates", h.List)
}

// TemplatesResponse wraps the catalog list.
type TemplatesResponse struct {
	Templates []whatsapp.Template `json:"templates"`
}

// List returns the templates available to the caller's business account.
func (h *TemplatesHandler) List(c echo.Context) error {
	account, err := auth.AccountFromContext(c)
	if err != nil {
		return err
	}
	list, err := h.templates.List(c.Request().Context(), account)
	if err != nil {
		return httpError(err)
	}
	if list == nil {
		list = []whatsapp.Template{}
	}
	return c.JSON(http.StatusOK, TemplatesResponse{Templates: list})
}
