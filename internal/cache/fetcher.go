package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"image-relay/internal/metrics"
	"image-relay/internal/model"
)

// storeTimeout bounds a cache write after the response has been streamed.
const storeTimeout = 5 * time.Second

// Upstream is the fetcher the cache sits in front of.
type Upstream interface {
	Fetch(ctx context.Context, rawURL string) (*model.UpstreamResponse, error)
}

// Fetcher serves images from a Store and falls back to the upstream on a miss.
// Successful upstream bodies are recorded while they stream to the caller and
// stored once fully read.
type Fetcher struct {
	next          Upstream
	store         Store
	maxEntryBytes int64
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewFetcher wraps next with store. Bodies larger than maxEntryBytes pass
// through uncached. The metrics parameter is optional.
func NewFetcher(next Upstream, store Store, maxEntryBytes int64, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		next:          next,
		store:         store,
		maxEntryBytes: maxEntryBytes,
		logger:        logger.With("component", "image_cache"),
		metrics:       m,
	}
}

// Fetch returns the cached image for rawURL or fetches it from the upstream.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.UpstreamResponse, error) {
	entry, err := f.store.Get(ctx, rawURL)
	switch {
	case err == nil:
		f.event(metrics.CacheHit)
		return hitResponse(entry), nil
	case errors.Is(err, ErrMiss):
		f.event(metrics.CacheMiss)
	default:
		// A broken cache degrades to a plain upstream fetch.
		f.event(metrics.CacheErrors)
		f.logger.Warn("cache lookup failed", "err", err)
	}

	resp, err := f.next.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(model.HeaderCache, model.CacheMiss)

	if !f.cacheable(resp) {
		f.event(metrics.CacheSkip)
		return resp, nil
	}

	entry = &Entry{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	save := func(body []byte) {
		entry.Body = body
		f.save(ctx, rawURL, entry)
	}
	resp.Body = &recordingBody{body: resp.Body, limit: f.maxEntryBytes, done: save}
	return resp, nil
}

func (f *Fetcher) cacheable(resp *model.UpstreamResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !resp.HasBody() {
		return false
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n > f.maxEntryBytes {
			return false
		}
	}
	return true
}

func (f *Fetcher) save(ctx context.Context, key string, e *Entry) {
	// The request may be finishing; the write must not be canceled with it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := f.store.Set(ctx, key, e); err != nil {
		f.event(metrics.CacheErrors)
		f.logger.Warn("cache store failed", "err", err)
		return
	}
	f.event(metrics.CacheStore)
	f.logger.Debug("cached image", "bytes", len(e.Body))
}

func (f *Fetcher) event(kind string) {
	if f.metrics != nil {
		f.metrics.CacheEvents.WithLabelValues(kind).Inc()
	}
}

func hitResponse(e *Entry) *model.UpstreamResponse {
	h := make(http.Header)
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	h.Set(model.HeaderCache, model.CacheHit)

	body := io.ReadCloser(http.NoBody)
	if len(e.Body) > 0 {
		body = io.NopCloser(bytes.NewReader(e.Body))
	}
	return &model.UpstreamResponse{
		StatusCode: e.StatusCode,
		Header:     h,
		Body:       body,
	}
}

// recordingBody copies what the caller reads into a bounded buffer. When the
// body is closed after a complete read within the limit, done receives the bytes.
type recordingBody struct {
	body     io.ReadCloser
	buf      bytes.Buffer
	limit    int64
	eof      bool
	overflow bool
	closed   bool
	done     func([]byte)
}

func (r *recordingBody) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 && !r.overflow {
		if int64(r.buf.Len()+n) > r.limit {
			r.overflow = true
			r.buf = bytes.Buffer{}
		} else {
			r.buf.Write(p[:n])
		}
	}
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

func (r *recordingBody) Close() error {
	err := r.body.Close()
	if r.closed {
		return err
	}
	r.closed = true
	if r.eof && !r.overflow && r.buf.Len() > 0 {
		r.done(r.buf.Bytes())
	}
	return err
}
