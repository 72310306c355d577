// Package client provides the upstream HTTP client for image hosts.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"image-relay/internal/allowlist"
	"image-relay/internal/config"
	"image-relay/internal/metrics"
	"image-relay/internal/model"
)

// acceptImages is the Accept header sent upstream.
const acceptImages = "image/avif,image/webp,image/jpeg,image/png,image/*;q=0.8"

// ImageClient fetches images from allow-listed upstream hosts.
type ImageClient struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewImageClient creates an ImageClient with connection pooling and timeouts.
// Redirects are only followed to hosts in the allow-list.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewImageClient(cfg *config.Config, hosts allowlist.Set, logger *slog.Logger, m *metrics.Metrics) *ImageClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &ImageClient{
		httpClient: &http.Client{
			Transport:     transport,
			Timeout:       cfg.Upstream.Timeout(),
			CheckRedirect: hosts.CheckRedirect,
		},
		userAgent: cfg.Upstream.UserAgent,
		logger:    logger.With("component", "image_client"),
		metrics:   m,
	}
}

// Fetch issues a GET for rawURL and returns the raw upstream response.
// The caller is responsible for closing the response body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request and its body stream are canceled too.
func (c *ImageClient) Fetch(ctx context.Context, rawURL string) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", acceptImages)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("upstream request", "host", req.URL.Host, "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(duration)
	}

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamResponses.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
