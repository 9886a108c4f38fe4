package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatcrm/wagateway/internal/dispatch"
	"github.com/chatcrm/wagateway/internal/ingest"
	"github.com/chatcrm/wagateway/internal/store"
	"github.com/chatcrm/wagateway/internal/whatsapp"
)

// ErrorResponse is the error body shape of every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// httpError maps service errors to transport errors. Echo's HTTPError
// values pass through untouched.
func httpError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, ingest.ErrMalformedPayload), errors.Is(err, dispatch.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "business account not provisioned")
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case whatsapp.IsPermanent(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case whatsapp.IsTransient(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// statusForDispatch picks the response status for a send that failed after
// the pending record was persisted. The caller still gets the record so
// the failure is traceable.
func statusForDispatch(err error) int {
	if whatsapp.IsPermanent(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}
