// Package service implements the image relay: validation, host policy and upstream fetch.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"image-relay/internal/allowlist"
	"image-relay/internal/metrics"
	"image-relay/internal/model"
)

// Client input and policy errors. They are detected before any network I/O.
var (
	ErrMissingSrc       = errors.New("missing src parameter")
	ErrInvalidSrc       = errors.New("invalid src parameter")
	ErrHostNotPermitted = errors.New("host not permitted")
)

// DefaultContentType is used when the upstream does not declare one.
const DefaultContentType = "image/jpeg"

// UpstreamError reports a failed upstream fetch. StatusCode is the upstream
// status when one was received, zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream fetch: %v", e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream fetch: status %d", e.StatusCode)
	}
	return "upstream fetch: empty response body"
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ResponseStatus returns the status to answer the caller with: the upstream
// status when it is an error status, otherwise 502.
func (e *UpstreamError) ResponseStatus() int {
	if e.StatusCode >= 300 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// Fetcher retrieves one image from an upstream URL. The caller closes the body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.UpstreamResponse, error)
}

// RelayService validates relay requests and fetches the allowed images.
type RelayService struct {
	fetcher Fetcher
	hosts   allowlist.Set
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayService creates a RelayService.
// The metrics parameter is optional; pass nil to disable result recording.
func NewRelayService(f Fetcher, hosts allowlist.Set, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		fetcher: f,
		hosts:   hosts,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
	}
}

// Hosts returns the allow-list the service enforces.
func (s *RelayService) Hosts() allowlist.Set {
	return s.hosts
}

// Relay resolves src, checks it against the allow-list and fetches it.
// On success the caller must close the returned body.
func (s *RelayService) Relay(ctx context.Context, src string) (*model.RelayResponse, error) {
	target, err := s.Resolve(src)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingSrc):
			s.record(metrics.ResultMissingSrc)
		case errors.Is(err, ErrHostNotPermitted):
			s.record(metrics.ResultHostForbidden)
		default:
			s.record(metrics.ResultInvalidSrc)
		}
		return nil, err
	}

	s.logger.Debug("fetching image", "url", target.String())

	resp, err := s.fetcher.Fetch(ctx, target.String())
	if err != nil {
		s.record(metrics.ResultUpstreamFailed)
		return nil, &UpstreamError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		closeBody(resp)
		s.record(metrics.ResultUpstreamFailed)
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}
	// A success status without a body is answered with 502, not the upstream status.
	if !resp.HasBody() {
		closeBody(resp)
		s.record(metrics.ResultUpstreamFailed)
		return nil, &UpstreamError{}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}

	s.record(metrics.ResultOK)
	return &model.RelayResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		CacheStatus: resp.Header.Get(model.HeaderCache),
		Body:        resp.Body,
	}, nil
}

// Resolve parses src as an absolute http(s) URL and checks its host against
// the allow-list. The returned URL carries the lowercased host.
func (s *RelayService) Resolve(src string) (*url.URL, error) {
	if src == "" {
		return nil, ErrMissingSrc
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSrc, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSrc, u.Scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, fmt.Errorf("%w: no host", ErrInvalidSrc)
	}

	host := strings.ToLower(u.Hostname())
	if !s.hosts.Allows(host) {
		return nil, fmt.Errorf("%w: %q", ErrHostNotPermitted, host)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u, nil
}

func (s *RelayService) record(result string) {
	if s.metrics != nil {
		s.metrics.RelayResults.WithLabelValues(result).Inc()
	}
}

func closeBody(resp *model.UpstreamResponse) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}
