// Package snapwatch is a forensic input-capture daemon. It drives Chrome as
// a disposable component, listens to user input on each observed page,
// samples the events worth keeping, and correlates every asynchronous
// screenshot and MHTML capture back to the event that caused it.
//
// Dispatches, capture completions and finished records go to sinks (stdout,
// webhook, callback); records are also indexed in SQLite when a store path
// is configured.
package snapwatch

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/snaptrail/snapwatch/internal/artifact"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/browser"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/config"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/guard"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/observer"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/scheduler"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/sink"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/store"
)

// Watcher is the top-level orchestrator. It owns the browser, one scheduler
// per page, the artifact writers and the sinks.
type Watcher struct {
	cfg    *config.Config
	mgr    *browser.Manager
	sinkR  *sink.Router
	bridge *sinkBridge
	logger *slog.Logger

	// drain bounds how long closing a page waits for captures in flight.
	drain time.Duration

	mu      sync.Mutex
	ctx     context.Context
	pages   map[string]*pageSlot
	lines   *artifact.LineLog
	db      *sql.DB
	pagesDB *sql.DB
	index   *store.Index
	started time.Time
}

// New creates a Watcher from configuration. Nothing is launched until Start.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealthLevel(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		Logger:           logger,
	})

	router := sink.NewRouter(logger, sinks...)
	return &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		sinkR:  router,
		bridge: &sinkBridge{router: router, ctx: context.Background(), logger: logger},
		logger: logger,
		drain:  5 * time.Second,
		ctx:    context.Background(),
		pages:  make(map[string]*pageSlot),
	}
}

// Start opens the outputs, launches the browser and observes every
// configured page. Pages that fail to open are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.bridge.ctx = ctx
	w.started = time.Now()
	w.mu.Unlock()

	if err := w.openOutputs(); err != nil {
		return err
	}

	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("snapwatch: start browser: %w", err)
	}
	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.detachAll,
		AfterRecycle:  func(*rod.Browser) { w.reattachAll(ctx) },
	})

	pages := slices.Clone(w.cfg.Pages)
	if w.cfg.Store.PagesPath != "" {
		db, err := store.OpenDB(w.cfg.Store.PagesPath, config.Schema)
		if err != nil {
			return fmt.Errorf("snapwatch: open pages db: %w", err)
		}
		w.mu.Lock()
		w.pagesDB = db
		w.mu.Unlock()

		dbPages, err := config.LoadPages(ctx, db)
		if err != nil {
			return err
		}
		pages = append(pages, dbPages...)
		go config.WatchPages(ctx, db, config.WatchOptions{
			Interval: time.Second,
			Debounce: 500 * time.Millisecond,
			Logger:   w.logger,
		}, func(dbPages []config.PageConfig) {
			w.SyncPages(ctx, append(slices.Clone(w.cfg.Pages), dbPages...))
		})
	}

	for _, page := range pages {
		if err := w.ObservePage(ctx, page); err != nil {
			w.logger.Error("snapwatch: failed to observe page", "url", page.URL, "error", err)
		}
	}
	return nil
}

// openOutputs opens the line log and the event index. Safe to call twice.
func (w *Watcher) openOutputs() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lines == nil {
		var mirror io.Writer
		if w.cfg.Output.EchoLines {
			mirror = os.Stderr
		}
		lines, err := artifact.OpenLineLog(w.cfg.Output.Root, "", mirror, nil)
		if err != nil {
			return fmt.Errorf("snapwatch: open line log: %w", err)
		}
		w.lines = lines
		w.logger.Info("snapwatch: line log", "path", lines.Path())
	}

	if w.index == nil && w.cfg.Store.Path != "" {
		db, err := store.OpenDB(w.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("snapwatch: open store: %w", err)
		}
		idx, err := store.New(db, store.WithLogger(w.logger))
		if err != nil {
			db.Close()
			return err
		}
		w.db, w.index = db, idx
	}
	return nil
}

// ObservePage starts observing a page. Observing an ID again reopens its tab
// on the new URL; the page's scheduler and its identifiers carry over.
func (w *Watcher) ObservePage(ctx context.Context, pageCfg PageConfig) error {
	if pageCfg.ID == "" || pageCfg.URL == "" {
		return fmt.Errorf("page id and url are required: %w", ErrInvalid)
	}
	if err := guard.CheckPageURL(pageCfg.URL); err != nil {
		return fmt.Errorf("page %s: %v: %w", pageCfg.ID, err, ErrInvalid)
	}

	w.mu.Lock()
	slot, ok := w.pages[pageCfg.ID]
	if !ok {
		slot = w.newSlot(pageCfg, nil)
		w.pages[pageCfg.ID] = slot
	}
	slot.setPageURL(pageCfg.URL)
	runCtx := w.ctx
	w.mu.Unlock()

	slot.detach()

	tab, err := browser.OpenTab(ctx, w.mgr, pageCfg.URL, pageCfg.ID, slot.level)
	if err != nil {
		return fmt.Errorf("snapwatch: open tab: %w", err)
	}
	if err := slot.attach(runCtx, tab, w.observerConfig()); err != nil {
		return err
	}

	w.logger.Info("snapwatch: observing page",
		"url", pageCfg.URL, "id", pageCfg.ID, "stealth", slot.level,
		"session_dir", slot.handler.SessionDirectoryName())
	return nil
}

// UnobservePage stops observing a page and drops its scheduler.
func (w *Watcher) UnobservePage(pageID string) bool {
	w.mu.Lock()
	slot, ok := w.pages[pageID]
	delete(w.pages, pageID)
	w.mu.Unlock()
	if !ok {
		return false
	}
	if err := slot.close(w.drain); err != nil {
		w.logger.Warn("snapwatch: captures still in flight", "id", pageID, "error", err)
	}
	w.logger.Info("snapwatch: stopped observing page", "id", pageID)
	return true
}

// SyncPages makes the observed set match pages: new IDs are observed, IDs
// no longer listed are dropped, and changed URLs are reopened.
func (w *Watcher) SyncPages(ctx context.Context, pages []PageConfig) {
	want := make(map[string]PageConfig, len(pages))
	for _, p := range pages {
		want[p.ID] = p
	}

	w.mu.Lock()
	var stale []string
	current := make(map[string]string, len(w.pages))
	for id, s := range w.pages {
		current[id] = s.pageURL()
		if _, ok := want[id]; !ok {
			stale = append(stale, id)
		}
	}
	w.mu.Unlock()

	for _, id := range stale {
		w.UnobservePage(id)
	}
	for id, p := range want {
		if u, ok := current[id]; ok && u == p.URL {
			continue
		}
		if err := w.ObservePage(ctx, p); err != nil {
			w.logger.Error("snapwatch: sync page failed", "id", id, "url", p.URL, "error", err)
		}
	}
}

// Stop shuts down observers, flushes the artifact writers and closes the
// sinks, the store and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	slots := w.pages
	w.pages = make(map[string]*pageSlot)
	w.mu.Unlock()

	for id, s := range slots {
		if err := s.close(w.drain); err != nil {
			w.logger.Warn("snapwatch: captures still in flight", "id", id, "error", err)
		}
		w.logger.Info("snapwatch: stopped observer", "id", id)
	}

	w.sinkR.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.index != nil {
		w.index.Close()
		w.index = nil
	}
	if w.db != nil {
		w.db.Close()
		w.db = nil
	}
	if w.pagesDB != nil {
		w.pagesDB.Close()
		w.pagesDB = nil
	}
	if w.lines != nil {
		w.lines.Close()
		w.lines = nil
	}
	w.mgr.Close()
}

// newSlot builds the scheduler and artifact writers for a page. Nil
// backends means the rod capturers on the slot's current tab. Caller holds w.mu.
func (w *Watcher) newSlot(pageCfg PageConfig, b *backends) *pageSlot {
	level := browser.ParseStealthLevel(w.cfg.Browser.Stealth)
	if pageCfg.StealthLevel != "" {
		level = browser.ParseStealthLevel(pageCfg.StealthLevel)
	}
	s := &pageSlot{
		cfg:    pageCfg,
		level:  level,
		url:    pageCfg.URL,
		ledger: scheduler.NewLedger(),
		sinks:  w.bridge,
	}

	capture := w.cfg.Capture
	if b == nil {
		b = &backends{
			screenshots: browser.NewScreenshotCapturer(s.currentPage, capture.ScreenshotFormat, capture.ScreenshotQuality, w.logger),
			structural:  browser.NewMHTMLCapturer(s.currentPage, w.logger),
		}
	}

	rep := reporters{w.bridge}
	if w.index != nil {
		rep = append(rep, w.index)
	}
	deps := scheduler.Deps{
		Screenshots:  b.screenshots,
		Structural:   b.structural,
		Destinations: s,
		Persister:    s,
		Transport:    w.bridge,
		Reporter:     rep,
		Notifier:     s,
		Page:         s,
		Ledger:       s.ledger,
		Logger:       w.logger,
	}
	if b.page != nil {
		deps.Page = b.page
	}
	if w.lines != nil {
		deps.Lines = w.lines
	}

	s.handler = scheduler.New(scheduler.Config{
		PageID:          pageCfg.ID,
		Policy:          capture.Policy(),
		HistoryCapacity: capture.HistoryCapacity,
		MaxAge:          capture.HistoryMaxAge,
		Region:          pageCfg.Region,
	}, deps)

	ext := capture.ScreenshotFormat
	if ext == "jpeg" {
		ext = "jpg"
	}
	s.layout = artifact.NewLayout(w.cfg.Output.Root, s.handler.SessionDirectoryName(), ext)
	s.dest = artifact.NewDestinations(s.layout)
	s.shots = artifact.NewScreenshotWriter(s.layout, 256, w.logger)
	return s
}

func (w *Watcher) observerConfig() observer.Config {
	return observer.Config{
		SweepInterval: w.cfg.Capture.SweepInterval,
		MoveThrottle:  w.cfg.Capture.MoveThrottle,
		Logger:        w.logger,
	}
}

func (w *Watcher) slots() []*pageSlot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*pageSlot, 0, len(w.pages))
	for _, s := range w.pages {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *pageSlot) int {
		switch {
		case a.cfg.ID < b.cfg.ID:
			return -1
		case a.cfg.ID > b.cfg.ID:
			return 1
		}
		return 0
	})
	return out
}

func (w *Watcher) slot(pageID string) *pageSlot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pages[pageID]
}

func (w *Watcher) detachAll() {
	for _, s := range w.slots() {
		s.detach()
	}
}

// reattachAll reopens every page on the new browser process.
func (w *Watcher) reattachAll(ctx context.Context) {
	for _, s := range w.slots() {
		u := s.pageURL()
		tab, err := browser.OpenTab(ctx, w.mgr, u, s.cfg.ID, s.level)
		if err != nil {
			w.logger.Error("snapwatch: reconnect observer failed", "url", u, "error", err)
			continue
		}
		if err := s.attach(ctx, tab, w.observerConfig()); err != nil {
			w.logger.Error("snapwatch: reconnect observer failed", "url", u, "error", err)
		}
	}
}
