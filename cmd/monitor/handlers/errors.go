package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/cmd/monitor/service"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/poller"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var graphErr *models.GraphError
	var transportErr *models.TransportError

	switch {
	case errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotInitialized), errors.As(err, &graphErr):
		return http.StatusBadRequest
	case errors.As(err, &transportErr), errors.Is(err, models.ErrMalformedPayload):
		return http.StatusBadGateway
	case errors.Is(err, poller.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	code := statusFor(err)
	body := map[string]interface{}{
		"error": err.Error(),
	}

	var transportErr *models.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode != 0 {
		body["upstream_status"] = transportErr.StatusCode
	}
	return c.JSON(code, body)
}
