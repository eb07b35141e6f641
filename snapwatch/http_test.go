package snapwatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doJSON(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHTTPRoutes(t *testing.T) {
	w, _ := newTestWatcher(t, true)
	s := addPage(t, w, "p1", "https://example.com/")
	eid := click(s, 1)
	if err := w.FlushIndex(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(w.Routes())
	defer srv.Close()

	var health map[string]string
	if code := doJSON(t, srv, "GET", "/health", "", &health); code != 200 || health["status"] != "ok" {
		t.Errorf("health = %d %v", code, health)
	}

	var pages []PageStatus
	if code := doJSON(t, srv, "GET", "/api/pages", "", &pages); code != 200 || len(pages) != 1 {
		t.Errorf("pages = %d %+v", code, pages)
	}

	var ps PageStatus
	if code := doJSON(t, srv, "GET", "/api/pages/p1", "", &ps); code != 200 || ps.ID != "p1" {
		t.Errorf("page = %d %+v", code, ps)
	}

	var v RecordView
	if code := doJSON(t, srv, "GET", "/api/pages/p1/records/1", "", &v); code != 200 || v.Record.EventID != eid {
		t.Errorf("record = %d %+v", code, v)
	}
	if code := doJSON(t, srv, "GET", "/api/pages/p1/records/99", "", nil); code != 404 {
		t.Errorf("missing record code = %d", code)
	}
	if code := doJSON(t, srv, "GET", "/api/pages/p1/records/abc", "", nil); code != 400 {
		t.Errorf("bad snapshot id code = %d", code)
	}

	var recs []map[string]any
	if code := doJSON(t, srv, "GET", "/api/pages/p1/records", "", &recs); code != 200 || len(recs) != 1 {
		t.Errorf("records = %d %v", code, recs)
	}

	var ev RecordView
	if code := doJSON(t, srv, "GET", "/api/events/"+eid, "", &ev); code != 200 || ev.Source != "index" {
		t.Errorf("event = %d %+v", code, ev)
	}

	var list struct {
		Count int `json:"count"`
	}
	if code := doJSON(t, srv, "GET", "/api/events?page_id=p1&limit=10", "", &list); code != 200 || list.Count != 1 {
		t.Errorf("events = %d %+v", code, list)
	}

	if code := doJSON(t, srv, "POST", "/api/pages", "{not json", nil); code != 400 {
		t.Errorf("bad json code = %d", code)
	}
	if code := doJSON(t, srv, "POST", "/api/pages", `{"page_id":"p2"}`, nil); code != 400 {
		t.Errorf("missing url code = %d", code)
	}

	if code := doJSON(t, srv, "DELETE", "/api/pages/p1", "", nil); code != 200 {
		t.Errorf("delete code = %d", code)
	}
	if code := doJSON(t, srv, "GET", "/api/pages/p1", "", nil); code != 404 {
		t.Errorf("deleted page code = %d", code)
	}
}

func TestHTTPEventsWithoutIndex(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	srv := httptest.NewServer(w.Routes())
	defer srv.Close()

	if code := doJSON(t, srv, "GET", "/api/events", "", nil); code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
}

func TestHTTPGuardHeaders(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	srv := httptest.NewServer(w.Routes())
	defer srv.Close()

	resp, err := srv.Client().Head(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("HEAD /health = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Trace-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("headers = %v", resp.Header)
	}
}
