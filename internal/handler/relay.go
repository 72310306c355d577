package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"image-relay/internal/model"
	"image-relay/internal/service"
)

// Relay response headers.
const (
	cacheControl = "public, max-age=86400"
	allowOrigin  = "*"
)

// Error messages returned to callers.
const (
	msgMissingSrc     = "Missing src parameter"
	msgInvalidSrc     = "Invalid src parameter"
	msgHostForbidden  = "Host not permitted"
	msgUpstreamFailed = "Unable to fetch source image"
)

// RelayHandler serves images fetched from allow-listed hosts.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle relays the image named by the src query parameter.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()
	src := c.QueryParam("src")

	resp, err := h.service.Relay(req.Context(), src)
	if err != nil {
		return h.mapError(c, src, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, resp.ContentType)
	header.Set(echo.HeaderCacheControl, cacheControl)
	header.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
	if resp.CacheStatus != "" {
		c.Set(model.CacheStatusKey, resp.CacheStatus)
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent; a failed copy leaves the client with a
	// truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Warn("streaming image body", "err", err, "src", src)
	}

	return nil
}

func (h *RelayHandler) mapError(c echo.Context, src string, err error) error {
	status, msg := http.StatusBadGateway, msgUpstreamFailed

	var upErr *service.UpstreamError
	switch {
	case errors.Is(err, service.ErrMissingSrc):
		status, msg = http.StatusBadRequest, msgMissingSrc
	case errors.Is(err, service.ErrInvalidSrc):
		status, msg = http.StatusBadRequest, msgInvalidSrc
	case errors.Is(err, service.ErrHostNotPermitted):
		status, msg = http.StatusForbidden, msgHostForbidden
	case errors.As(err, &upErr):
		status = upErr.ResponseStatus()
	}

	h.logger.Warn("relay failed", "err", err, "src", src, "status", status)

	return c.JSON(status, map[string]string{"error": msg})
}
