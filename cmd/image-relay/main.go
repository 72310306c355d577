package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"image-relay/internal/allowlist"
	"image-relay/internal/cache"
	"image-relay/internal/client"
	"image-relay/internal/config"
	"image-relay/internal/handler"
	"image-relay/internal/metrics"
	"image-relay/internal/middleware"
	"image-relay/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("image-relay"),
		kong.Description("Image relay for allow-listed museum image hosts."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			allowlist.Default,
			config.Load,
			newLogger,
			metrics.New,
			newEcho,
			client.NewImageClient,
			newCacheStore,
			newFetcher,
			service.NewRelayService,
			handler.NewRelayHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newCacheStore opens the configured cache backend. It returns nil when
// caching is disabled.
func newCacheStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	var store cache.Store
	switch cfg.Cache.Backend {
	case config.CacheNone:
		logger.Info("image cache disabled")
		return nil, nil
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r, err := cache.NewRedis(ctx, cfg.Cache.Redis, cfg.Cache.TTL())
		if err != nil {
			return nil, err
		}
		store = r
	default:
		store = cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.TTL())
	}

	logger.Info("image cache enabled",
		"backend", cfg.Cache.Backend,
		"ttl", cfg.Cache.TTL(),
		"max_entry_bytes", cfg.Cache.MaxEntryBytes,
	)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// newFetcher puts the cache, when configured, in front of the image client.
func newFetcher(ic *client.ImageClient, store cache.Store, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) service.Fetcher {
	if store == nil {
		return ic
	}
	return cache.NewFetcher(ic, store, cfg.Cache.MaxEntryBytes, logger, m)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	// Client IPs come from the connection; forwarding headers are client-controlled.
	e.IPExtractor = echo.ExtractIPDirect()

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays 0 so large images are not cut off mid-stream; the
	// upstream client timeout bounds each relay.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		paths := metrics.NewPathNormalizer(cfg.Relay.Path, config.HealthzPath, config.StatusPath, cfg.Metrics.Path)
		e.Use(middleware.MetricsMiddleware(m, paths))
	}
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "relay_path", cfg.Relay.Path)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
