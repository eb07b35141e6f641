// CLAUDE:SUMMARY CLI entry point for snapwatch: input-driven screenshot and MHTML capture daemon with status API and MCP tools.
// Command snapwatch is the forensic input-capture daemon.
//
// Usage:
//
//	snapwatch -config snapwatch.yaml          # observe pages from YAML config
//	snapwatch -url https://example.com        # quick single-page observation
//	snapwatch -url https://example.com -http :8086 -store data/events.db
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/snapwatch"
)

type flags struct {
	configPath string
	url        string
	logLevel   string
	out        string
	store      string
	httpAddr   string
	mcpStdio   bool
	echoLines  bool

	disableScreenshots   bool
	enableAllScreenshots bool
	disableDOM           bool
	enableAllDOM         bool
	disableRandomized    bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to snapwatch.yaml config file")
	flag.StringVar(&f.url, "url", "", "observe a single URL")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&f.out, "out", "", "artifact root directory (overrides config)")
	flag.StringVar(&f.store, "store", "", "SQLite event index path (overrides config)")
	flag.StringVar(&f.httpAddr, "http", "", "status API listen address, e.g. :8086 (overrides config)")
	flag.BoolVar(&f.mcpStdio, "mcp", false, "serve MCP tools on stdin/stdout")
	flag.BoolVar(&f.echoLines, "echo-lines", false, "mirror the snapshot line log to stderr")
	flag.BoolVar(&f.disableScreenshots, "disable-screenshots", false, "never capture screenshots")
	flag.BoolVar(&f.enableAllScreenshots, "enable-all-screenshots", false, "capture screenshots for every snapshot event")
	flag.BoolVar(&f.disableDOM, "disable-dom-snapshots", false, "never capture MHTML snapshots")
	flag.BoolVar(&f.enableAllDOM, "enable-all-dom-snapshots", false, "capture MHTML for every snapshot event")
	flag.BoolVar(&f.disableRandomized, "disable-randomized-snapshots", false, "sample every page instead of a random half")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("snapwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if len(cfg.Pages) == 0 && cfg.Store.PagesPath == "" && !f.mcpStdio && cfg.HTTP.Addr == "" {
		fmt.Fprintln(os.Stderr, "usage: snapwatch -config <file> | -url <url> [-http addr] [-mcp]")
		os.Exit(2)
	}

	sinkCfgs := cfg.Sinks
	if f.mcpStdio {
		// stdout carries the MCP session.
		var kept []snapwatch.SinkConfig
		for _, sc := range sinkCfgs {
			if sc.Type != "stdout" {
				kept = append(kept, sc)
			}
		}
		if len(kept) < len(sinkCfgs) || len(sinkCfgs) == 0 {
			logger.Warn("snapwatch: stdout sink disabled in MCP stdio mode")
		}
		sinkCfgs = kept
	}
	var sinks []snapwatch.Sink
	if !f.mcpStdio || len(sinkCfgs) > 0 {
		sinks, err = snapwatch.SinksFromConfig(sinkCfgs, logger)
		if err != nil {
			return err
		}
	}

	w := snapwatch.New(cfg, logger, sinks...)
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("start: %w", err)
	}
	defer w.Stop()

	errc := make(chan error, 2)

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           w.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("snapwatch: http listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	if f.mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "snapwatch", Version: "1.0.0"}, nil)
		w.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return err
}

func loadConfig(f flags) (*snapwatch.Config, error) {
	cfg := snapwatch.DefaultConfig()
	if f.configPath != "" {
		loaded, err := snapwatch.LoadConfigFile(f.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if f.url != "" {
		cfg.Pages = append(cfg.Pages, snapwatch.PageConfig{ID: idgen.New(), URL: f.url})
	}
	if f.out != "" {
		cfg.Output.Root = f.out
	}
	if f.store != "" {
		cfg.Store.Path = f.store
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.echoLines {
		cfg.Output.EchoLines = true
	}

	c := &cfg.Capture
	if f.disableScreenshots {
		c.Screenshots.Enabled = false
	} else if f.enableAllScreenshots {
		c.Screenshots.Enabled, c.Screenshots.Selective = true, false
	}
	if f.disableDOM {
		c.DOMSnapshots.Enabled = false
	} else if f.enableAllDOM {
		c.DOMSnapshots.Enabled, c.DOMSnapshots.Selective = true, false
	}
	if f.disableRandomized {
		c.Randomized = false
	}
	return cfg, nil
}
