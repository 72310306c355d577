// Package allowlist holds the fixed set of upstream image hosts the relay may fetch from.
package allowlist

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// maxRedirects matches the net/http default redirect limit.
const maxRedirects = 10

// ErrRedirectNotAllowed is returned when an upstream redirects outside the set.
var ErrRedirectNotAllowed = errors.New("redirect target not in allow-list")

// MetMuseumImages is the only upstream host the gallery serves images from.
const MetMuseumImages = "images.metmuseum.org"

// Set is an immutable set of hostnames. The zero value permits nothing.
// There is intentionally no method that adds or removes hosts after construction.
type Set struct {
	hosts map[string]struct{}
}

// New builds a Set from the given hostnames. Hosts are lowercased; empty names are ignored.
func New(hosts ...string) Set {
	m := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		m[h] = struct{}{}
	}
	return Set{hosts: m}
}

// Default returns the production allow-list.
func Default() Set {
	return New(MetMuseumImages)
}

// Allows reports whether host is in the set. host must already be the parsed
// hostname (no port, no userinfo); it is compared exactly after lowercasing.
func (s Set) Allows(host string) bool {
	if host == "" {
		return false
	}
	_, ok := s.hosts[strings.ToLower(host)]
	return ok
}

// Hosts returns the sorted host names. The returned slice is a copy.
func (s Set) Hosts() []string {
	out := make([]string, 0, len(s.hosts))
	for h := range s.hosts {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of hosts in the set.
func (s Set) Len() int {
	return len(s.hosts)
}

// CheckRedirect is an http.Client redirect policy that follows a redirect only
// while the next hop's host is in the set.
func (s Set) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if !s.Allows(req.URL.Hostname()) {
		return fmt.Errorf("%w: %q", ErrRedirectNotAllowed, req.URL.Hostname())
	}
	return nil
}
