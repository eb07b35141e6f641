package guard

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/snaptrail/kit"
)

func chain(h http.Handler) http.Handler {
	mws := Stack(nil)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestStackHeadersAndTrace(t *testing.T) {
	var seenTrace, seenMethod string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTrace = kit.GetTraceID(r.Context())
		seenMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))

	if seenMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", seenMethod)
	}
	if seenTrace == "" || rec.Header().Get("X-Trace-ID") != seenTrace {
		t.Errorf("trace id = %q, header %q", seenTrace, rec.Header().Get("X-Trace-ID"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
}

func TestTraceIDFromHeader(t *testing.T) {
	var seen string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetTraceID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc123" {
		t.Errorf("trace id = %q", seen)
	}
}

func TestLimitBody(t *testing.T) {
	var readErr error
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) {
		t.Errorf("err = %v, want MaxBytesError", readErr)
	}
}

func TestCheckPageURL(t *testing.T) {
	for _, ok := range []string{"https://example.com/", "http://127.0.0.1:8080/app"} {
		if err := CheckPageURL(ok); err != nil {
			t.Errorf("CheckPageURL(%q) = %v", ok, err)
		}
	}
	if err := CheckPageURL("file:///etc/passwd"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("file url err = %v", err)
	}
	if err := CheckPageURL("javascript:alert(1)"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("javascript url err = %v", err)
	}
	if err := CheckPageURL("https:///path"); !errors.Is(err, ErrNoHost) {
		t.Errorf("hostless url err = %v", err)
	}
}
