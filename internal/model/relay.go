// Package model defines shared types for the image relay.
package model

import (
	"io"
	"net/http"
)

// HeaderCache carries the fetch-layer cache result from the cache to the
// relay service. It never reaches the relay caller.
const HeaderCache = "X-Cache"

// CacheStatusKey is the echo context key holding the cache result of a
// relayed request, for request logging.
const CacheStatusKey = "relay.cache_status"

// X-Cache values.
const (
	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// UpstreamResponse is what a fetcher returns for one upstream image request.
// The receiver is responsible for closing Body when it is non-nil.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// HasBody reports whether the response carries a readable body. 204 and
// 205 responses never do, whatever the client wrapped around them.
func (r *UpstreamResponse) HasBody() bool {
	switch r.StatusCode {
	case http.StatusNoContent, http.StatusResetContent:
		return false
	}
	return r.Body != nil && r.Body != http.NoBody
}

// RelayResponse is the successful result of relaying one image.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	// CacheStatus is the X-Cache value reported by the fetch layer, if any.
	// It is logged, not sent to the caller.
	CacheStatus string
	Body        io.ReadCloser
}
