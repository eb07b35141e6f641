// Package ident mints the identifiers a scheduler hands out: the per-instance
// site ID, the session directory name, monotonic snapshot IDs and composite
// event IDs.
package ident

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/snaptrail/idgen"
)

// Identity holds the identifiers fixed for the lifetime of one handler plus
// the snapshot counter. It is not safe for concurrent use.
type Identity struct {
	siteID  string
	session string
	next    int64
}

// New creates an Identity. gen supplies the site ID (nil uses a 12-char
// NanoID); now is the construction instant used for the session directory.
func New(gen idgen.Generator, now time.Time) *Identity {
	if gen == nil {
		gen = idgen.NanoID(12)
	}
	site := gen()
	return &Identity{
		siteID:  site,
		session: SessionDirectoryName(now, site),
		next:    1,
	}
}

// SiteID returns the per-instance identifier.
func (id *Identity) SiteID() string { return id.siteID }

// SessionDirectoryName returns the directory name computed at construction.
func (id *Identity) SessionDirectoryName() string { return id.session }

// EventID composes {siteId}_{urlEpoch}_{traceId}.
func (id *Identity) EventID(urlEpoch int, traceID int64) string {
	return id.siteID + "_" + strconv.Itoa(urlEpoch) + "_" + strconv.FormatInt(traceID, 10)
}

// AllocateSnapshotID returns the current counter value and advances it.
func (id *Identity) AllocateSnapshotID() int64 {
	n := id.next
	id.next++
	return n
}

// PeekSnapshotID returns the value the next allocation will yield.
func (id *Identity) PeekSnapshotID() int64 { return id.next }

// SessionDirectoryName formats {day}_{month}_{year}__{hour}_{minute}_{second}_{site}
// in local time without zero padding.
func SessionDirectoryName(t time.Time, site string) string {
	t = t.Local()
	return fmt.Sprintf("%d_%d_%d__%d_%d_%d_%s",
		t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute(), t.Second(), site)
}

// ParseEventID splits an event ID into its parts. The site ID may itself
// contain underscores; epoch and trace are always the last two fields.
func ParseEventID(eventID string) (site string, epoch int, trace int64, err error) {
	i := strings.LastIndexByte(eventID, '_')
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("ident: malformed event id %q", eventID)
	}
	j := strings.LastIndexByte(eventID[:i], '_')
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("ident: malformed event id %q", eventID)
	}
	epoch, err = strconv.Atoi(eventID[j+1 : i])
	if err != nil {
		return "", 0, 0, fmt.Errorf("ident: event id %q epoch: %w", eventID, err)
	}
	trace, err = strconv.ParseInt(eventID[i+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("ident: event id %q trace: %w", eventID, err)
	}
	return eventID[:j], epoch, trace, nil
}

const boundaryPrefix = "----MultipartBoundary--"

var boundaryGen = idgen.NanoID(42)

// MultipartBoundary returns a fresh MIME multipart boundary for an MHTML capture.
func MultipartBoundary() string {
	return boundaryPrefix + boundaryGen()
}
