package snapwatch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/artifact"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/browser"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/config"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/observer"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/scheduler"
)

// pageSlot is everything snapwatch keeps for one observed page. The handler
// and trace counter outlive browser recycles; the tab and observer do not.
type pageSlot struct {
	cfg     config.PageConfig
	level   browser.StealthLevel
	handler *scheduler.Handler
	ledger  *scheduler.Ledger
	traces  idgen.Counter

	layout artifact.Layout
	dest   *artifact.Destinations
	shots  *artifact.ScreenshotWriter
	sinks  *sinkBridge

	page atomic.Pointer[rod.Page]

	mu  sync.Mutex
	url string
	tab *browser.Tab
	obs *observer.Observer
}

// backends are the capture implementations a slot is built with.
type backends struct {
	screenshots scheduler.ScreenshotBackend
	structural  scheduler.StructuralBackend
	// page overrides the observer as the URL source.
	page scheduler.PageLocator
}

// pageURL is the URL the slot opens its tab on.
func (s *pageSlot) pageURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *pageSlot) setPageURL(u string) {
	s.mu.Lock()
	s.url = u
	s.mu.Unlock()
}

// currentPage is the capture backends' page source.
func (s *pageSlot) currentPage() *rod.Page { return s.page.Load() }

// Locate resolves the page URL from the live observer.
func (s *pageSlot) Locate() policy.PageContext {
	s.mu.Lock()
	obs := s.obs
	s.mu.Unlock()
	if obs == nil {
		return policy.PageContext{}
	}
	return obs.Locate()
}

// OpenDestination opens the MHTML file for a snapshot of this page.
func (s *pageSlot) OpenDestination(snapshotID int64) (io.WriteCloser, error) {
	if s.dest == nil {
		return nil, fmt.Errorf("snapwatch: page %s has no artifact layout", s.cfg.ID)
	}
	return s.dest.OpenDestination(snapshotID)
}

// PersistScreenshot hands a successful image to the async writer.
func (s *pageSlot) PersistScreenshot(snapshotID int64, image []byte) {
	if s.shots != nil {
		s.shots.PersistScreenshot(snapshotID, image)
	}
}

// NotifyCompletion attaches the artifact path and forwards to the sinks.
func (s *pageSlot) NotifyCompletion(c event.Completion) {
	if c.Success && s.dest != nil {
		switch c.Channel {
		case event.ChannelScreenshot:
			c.Path = s.layout.ScreenshotPath(c.SnapshotID)
		case event.ChannelDOMSnapshot:
			c.Path = s.layout.DOMPath(c.SnapshotID)
		}
	}
	s.sinks.NotifyCompletion(c)
}

// attach binds a new tab to the slot and starts observing it.
func (s *pageSlot) attach(ctx context.Context, tab *browser.Tab, cfg observer.Config) error {
	cfg.Tab = tab
	cfg.Handler = s.handler
	cfg.Traces = &s.traces
	obs := observer.New(cfg)
	obs.SetContext(ctx)

	s.page.Store(tab.Page)
	s.mu.Lock()
	s.tab, s.obs = tab, obs
	s.mu.Unlock()

	if err := obs.Start(); err != nil {
		// The dispatch loop never started, so there is no Done to wait on.
		s.mu.Lock()
		s.tab, s.obs = nil, nil
		s.mu.Unlock()
		s.page.Store(nil)
		obs.Stop()
		tab.Close()
		return fmt.Errorf("snapwatch: start observer: %w", err)
	}
	return nil
}

// detach stops the observer and closes the tab. Captures already issued
// against the old page fail and are recorded as failures.
func (s *pageSlot) detach() {
	s.mu.Lock()
	tab, obs := s.tab, s.obs
	s.tab, s.obs = nil, nil
	s.mu.Unlock()
	s.page.Store(nil)

	if obs != nil {
		obs.Stop()
		<-obs.Done()
	}
	if tab != nil {
		tab.Close()
	}
}

// close detaches, waits up to drain for captures in flight, then flushes
// the screenshot writer. Completions arriving later are dropped.
func (s *pageSlot) close(drain time.Duration) error {
	s.detach()
	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	err := s.handler.Drain(ctx)
	if s.shots != nil {
		s.shots.Close()
	}
	return err
}

// observing reports whether a live observer is attached.
func (s *pageSlot) observing() (bool, string, int64, int64) {
	s.mu.Lock()
	obs := s.obs
	s.mu.Unlock()
	if obs == nil {
		return false, "", 0, 0
	}
	recv, dropped := obs.Counters()
	return true, obs.URL(), recv, dropped
}
