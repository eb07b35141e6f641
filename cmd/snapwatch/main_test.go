package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig(flags{
		url:                  "https://example.com",
		out:                  "/tmp/out",
		enableAllScreenshots: true,
		disableDOM:           true,
		disableRandomized:    true,
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Pages) != 1 || cfg.Pages[0].URL != "https://example.com" || cfg.Pages[0].ID == "" {
		t.Errorf("pages = %+v", cfg.Pages)
	}
	if cfg.Output.Root != "/tmp/out" {
		t.Errorf("root = %q", cfg.Output.Root)
	}
	c := cfg.Capture
	if !c.Screenshots.Enabled || c.Screenshots.Selective {
		t.Errorf("screenshots = %+v", c.Screenshots)
	}
	if c.DOMSnapshots.Enabled {
		t.Errorf("dom = %+v", c.DOMSnapshots)
	}
	if c.Randomized {
		t.Error("randomized should be off")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(flags{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	c := cfg.Capture
	if !c.Screenshots.Enabled || !c.Screenshots.Selective || !c.DOMSnapshots.Enabled || !c.Randomized {
		t.Errorf("capture = %+v", c)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapwatch.yaml")
	data := "output:\n  root: /data\nhttp:\n  addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(flags{configPath: path, httpAddr: ":9100"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Output.Root != "/data" || cfg.HTTP.Addr != ":9100" {
		t.Errorf("cfg = %+v / %+v", cfg.Output, cfg.HTTP)
	}
}
