package scheduler

import (
	"context"
	"io"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
)

// ScreenshotBackend captures the visual state of the page. It must not block
// the caller; done may run on any goroutine, at most once.
type ScreenshotBackend interface {
	RequestScreenshot(ctx context.Context, req event.ScreenshotRequest, done func(image []byte, success bool))
}

// StructuralBackend serialises the page as MHTML into dest. done receives the
// number of bytes written, or a negative value on failure. The backend
// closes dest.
type StructuralBackend interface {
	RequestSnapshot(ctx context.Context, req event.SnapshotRequest, dest io.WriteCloser, done func(size int64))
}

// LineLogger is the forensic line log.
type LineLogger interface {
	AppendLine(text string, withTime bool)
}

// Transport forwards a classified event downstream. false means the send failed.
type Transport interface {
	Send(ctx context.Context, d event.Dispatch) bool
}

// DestinationProvider opens the sink an MHTML capture is written to.
type DestinationProvider interface {
	OpenDestination(snapshotID int64) (io.WriteCloser, error)
}

// ScreenshotPersister stores a successfully captured image.
type ScreenshotPersister interface {
	PersistScreenshot(snapshotID int64, image []byte)
}

// Reporter observes record lifecycle transitions.
type Reporter interface {
	Classified(r event.Record)
	Ready(r event.Record)
	Expired(r event.Record)
}

// Notifier is told about every capture completion that matched a record.
type Notifier interface {
	NotifyCompletion(c event.Completion)
}

// PageLocator resolves the document events are currently delivered to.
type PageLocator interface {
	Locate() policy.PageContext
}

// PageLocatorFunc adapts a function to PageLocator.
type PageLocatorFunc func() policy.PageContext

func (f PageLocatorFunc) Locate() policy.PageContext { return f() }

type nopLines struct{}

func (nopLines) AppendLine(string, bool) {}

type nopTransport struct{}

func (nopTransport) Send(context.Context, event.Dispatch) bool { return true }

type nopPersister struct{}

func (nopPersister) PersistScreenshot(int64, []byte) {}

type nopReporter struct{}

func (nopReporter) Classified(event.Record) {}
func (nopReporter) Ready(event.Record)      {}
func (nopReporter) Expired(event.Record)    {}

type nopNotifier struct{}

func (nopNotifier) NotifyCompletion(event.Completion) {}
