// Package baseurl provides base URL sources for store.Local.
//
// Static serves a configured URL. Request derives scheme://host from the HTTP
// request being handled, which Middleware places in the request context.
// Neither is chosen automatically; the daemon picks one from configuration.
package baseurl

import (
	"context"
	"net/http"
	"strings"
)

// Static is a fixed base URL such as "https://cdn.example.com/media".
type Static string

// BaseURL returns s without trailing separators.
func (s Static) BaseURL(context.Context) string {
	return strings.TrimRight(string(s), "/")
}

// Request derives the base URL from the request stored in the context.
type Request struct {
	// Fallback is returned when the context carries no request, for example
	// when the store is used from a background job.
	Fallback string

	// TrustForwarded honours X-Forwarded-Proto and X-Forwarded-Host. Enable
	// it only behind a proxy that sets those headers itself.
	TrustForwarded bool
}

// BaseURL returns scheme://host of the current request, or Fallback.
func (p Request) BaseURL(ctx context.Context) string {
	r, ok := FromContext(ctx)
	if !ok {
		return strings.TrimRight(p.Fallback, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if p.TrustForwarded {
		if v := firstValue(r.Header.Get("X-Forwarded-Proto")); v != "" {
			scheme = strings.ToLower(v)
		}
		if v := firstValue(r.Header.Get("X-Forwarded-Host")); v != "" {
			host = v
		}
	}
	if host == "" {
		return strings.TrimRight(p.Fallback, "/")
	}
	return scheme + "://" + host
}

// firstValue returns the first element of a comma-separated header value.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

type requestKey struct{}

// WithRequest returns a copy of ctx carrying r.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// FromContext returns the request stored by WithRequest.
func FromContext(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	return r, ok && r != nil
}

// Middleware stores each incoming request in its own context so Request can
// read it further down the handler chain.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), r)))
	})
}
