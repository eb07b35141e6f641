package config

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - id: p1
    url: https://example.com
    region: {x: 0, y: 0, width: 800, height: 600}
capture:
  screenshots: {enabled: true, selective: false}
  dom_snapshots: {enabled: false}
  randomized: false
sinks:
  - url: ""
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Browser.RecycleInterval != 4*time.Hour || cfg.Browser.Stealth != "headless" {
		t.Errorf("browser defaults = %+v", cfg.Browser)
	}
	if cfg.Capture.IdleInterval != policy.DefaultIdleInterval {
		t.Errorf("idle = %v", cfg.Capture.IdleInterval)
	}
	if len(cfg.Capture.SelectKeys) != len(policy.DefaultSelectKeys) {
		t.Errorf("select keys = %v", cfg.Capture.SelectKeys)
	}
	if cfg.Capture.HistoryCapacity != 1024 || cfg.Capture.HistoryMaxAge != 2*time.Minute {
		t.Errorf("history = %d/%v", cfg.Capture.HistoryCapacity, cfg.Capture.HistoryMaxAge)
	}
	if cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sink type = %q", cfg.Sinks[0].Type)
	}
	if cfg.Pages[0].Region.Width != 800 {
		t.Errorf("region = %+v", cfg.Pages[0].Region)
	}

	p := cfg.Capture.Policy()
	if !p.Screenshots.Enabled || p.Screenshots.Selective {
		t.Errorf("screenshots = %+v", p.Screenshots)
	}
	if p.DOMSnapshots.Enabled {
		t.Errorf("dom snapshots = %+v", p.DOMSnapshots)
	}
	if p.Randomized {
		t.Error("randomized should be off")
	}
}

func TestDefaultEnablesBothChannels(t *testing.T) {
	cfg := Default()
	c := cfg.Capture
	if !c.Screenshots.Enabled || !c.Screenshots.Selective || !c.DOMSnapshots.Enabled || !c.Randomized {
		t.Errorf("default capture = %+v", c)
	}
	if cfg.Output.Root != "." {
		t.Errorf("root = %q", cfg.Output.Root)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapwatch.yaml")
	if err := os.WriteFile(path, []byte("capture:\n  select_keys: [13]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Capture.SelectKeys) != 1 || cfg.Capture.SelectKeys[0] != 13 {
		t.Errorf("select keys = %v", cfg.Capture.SelectKeys)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestLoadPages(t *testing.T) {
	db := openDB(t, ":memory:")
	if _, err := db.Exec(Schema); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := UpsertPage(ctx, db, PageConfig{ID: "b", URL: "https://b.example"}); err != nil {
		t.Fatal(err)
	}
	if err := UpsertPage(ctx, db, PageConfig{ID: "a", URL: "https://a.example", StealthLevel: "headful"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO watch_pages (id, url, status, updated_at) VALUES ('c', 'https://c.example', 'paused', 0)`); err != nil {
		t.Fatal(err)
	}

	pages, err := LoadPages(ctx, db)
	if err != nil {
		t.Fatalf("LoadPages: %v", err)
	}
	if len(pages) != 2 || pages[0].ID != "a" || pages[1].ID != "b" {
		t.Fatalf("pages = %+v", pages)
	}
	if pages[0].StealthLevel != "headful" {
		t.Errorf("stealth = %q", pages[0].StealthLevel)
	}
}

func TestWatchPagesReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")
	writer := openDB(t, path)
	if _, err := writer.Exec(Schema); err != nil {
		t.Fatal(err)
	}
	reader := openDB(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got [][]PageConfig
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchPages(ctx, reader, WatchOptions{Interval: 10 * time.Millisecond}, func(p []PageConfig) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if err := UpsertPage(ctx, writer, PageConfig{ID: "p1", URL: "https://example.com"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reload not called")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	last := got[len(got)-1]
	if len(last) != 1 || last[0].ID != "p1" {
		t.Errorf("reloaded pages = %+v", last)
	}
}
