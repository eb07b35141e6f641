// Package guard holds the HTTP middleware and input checks in front of the
// status API.
package guard

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/kit"
)

// MaxBody is the default request body cap for API writes.
const MaxBody int64 = 64 * 1024

var (
	ErrUnsafeScheme = errors.New("guard: only http and https URLs can be observed")
	ErrNoHost       = errors.New("guard: URL has no host")
)

var traceIDs = idgen.NanoID(8)

// Stack returns the middleware applied to every API route.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		Headers,
		LimitBody(MaxBody),
		TraceID(logger),
	}
}

// HeadToGet lets GET routes answer HEAD.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// Headers sets the response headers of a JSON-only API.
func Headers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TraceID tags each request with a trace ID, echoed in X-Trace-ID.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Trace-ID")
			if id == "" {
				id = traceIDs()
			}
			w.Header().Set("X-Trace-ID", id)
			logger.Debug("guard: request", "trace_id", id, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(kit.WithTraceID(r.Context(), id)))
		})
	}
}

// CheckPageURL accepts absolute http(s) URLs only. Loopback and private
// hosts are allowed: observing local applications is a normal use.
func CheckPageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsafeScheme
	}
	if u.Host == "" {
		return ErrNoHost
	}
	return nil
}
