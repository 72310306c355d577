package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"image-relay/internal/allowlist"
	"image-relay/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	hosts   allowlist.Set
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, hosts allowlist.Set, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, hosts: hosts, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status       string   `json:"status"`
	Version      string   `json:"version"`
	AllowedHosts []string `json:"allowed_hosts"`
	CacheBackend string   `json:"cache_backend"`
}

// Status returns relay status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:       "ok",
		Version:      string(h.version),
		AllowedHosts: h.hosts.Hosts(),
		CacheBackend: h.cfg.Cache.Backend,
	})
}
