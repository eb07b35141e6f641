// Package store is the SQLite event index. It receives record lifecycle
// reports from the schedulers, persists them from a background goroutine,
// and answers lookups by page, event ID and snapshot ID.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/snaptrail/idgen"
	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Schema for the event index.
const Schema = `
CREATE TABLE IF NOT EXISTS snap_events (
	id          TEXT PRIMARY KEY,
	page_id     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	snapshot_id INTEGER NOT NULL DEFAULT 0,
	kind        TEXT NOT NULL,
	state       TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	record      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	UNIQUE(page_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_snap_events_snapshot ON snap_events(page_id, snapshot_id) WHERE snapshot_id > 0;
CREATE INDEX IF NOT EXISTS idx_snap_events_event ON snap_events(event_id);
CREATE INDEX IF NOT EXISTS idx_snap_events_state ON snap_events(page_id, state);
`

// State is the lifecycle position of an indexed event.
type State string

const (
	StateClassified State = "classified"
	StateReady      State = "ready"
	StateExpired    State = "expired"
)

// Entry is one indexed event.
type Entry struct {
	ID        string       `json:"id"`
	State     State        `json:"state"`
	Record    event.Record `json:"record"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type op struct {
	state State
	rec   event.Record
	at    time.Time
	ack   chan struct{}
}

// Index persists record reports asynchronously. It implements the
// scheduler's Reporter interface.
type Index struct {
	db      *sql.DB
	logger  *slog.Logger
	newID   idgen.Generator
	ch      chan op
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("store: index closed")

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(x *Index) { x.logger = l } }

// WithIDGenerator sets the row ID generator. Default UUIDv7.
func WithIDGenerator(g idgen.Generator) Option { return func(x *Index) { x.newID = g } }

// WithQueue sets the report buffer size. Default 1024.
func WithQueue(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.ch = make(chan op, n)
		}
	}
}

// New creates an Index over db, applies the schema and starts the writer.
func New(db *sql.DB, opts ...Option) (*Index, error) {
	x := &Index{
		db:     db,
		logger: slog.Default(),
		newID:  idgen.UUIDv7(),
		ch:     make(chan op, 1024),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(x)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	go x.flushLoop()
	return x, nil
}

// Classified queues a newly classified record.
func (x *Index) Classified(r event.Record) { x.enqueue(StateClassified, r) }

// Ready queues a record whose captures have all completed.
func (x *Index) Ready(r event.Record) { x.enqueue(StateReady, r) }

// Expired queues a record discarded before its captures completed.
func (x *Index) Expired(r event.Record) { x.enqueue(StateExpired, r) }

// Dropped returns how many reports were lost to a full buffer.
func (x *Index) Dropped() int64 { return x.dropped.Load() }

// Reports arriving after Close are counted as dropped.
func (x *Index) enqueue(state State, r event.Record) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		x.dropped.Add(1)
		x.logger.Debug("store: report after close, dropping", "event_id", r.EventID, "state", state)
		return
	}
	select {
	case x.ch <- op{state: state, rec: r, at: time.Now()}:
	default:
		if n := x.dropped.Add(1); n == 1 || n%1000 == 0 {
			x.logger.Warn("store: report buffer full, dropping", "dropped", n)
		}
	}
}

// Flush blocks until every report queued before the call is committed.
func (x *Index) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	x.mu.RLock()
	if x.closed {
		x.mu.RUnlock()
		return ErrClosed
	}
	select {
	case x.ch <- op{ack: ack}:
	case <-ctx.Done():
		x.mu.RUnlock()
		return ctx.Err()
	}
	x.mu.RUnlock()
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the buffer and stops the writer.
func (x *Index) Close() error {
	x.mu.Lock()
	if !x.closed {
		x.closed = true
		close(x.ch)
	}
	x.mu.Unlock()
	<-x.done
	return nil
}

func (x *Index) flushLoop() {
	defer close(x.done)

	batch := make([]op, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case o, ok := <-x.ch:
			if !ok {
				x.flushBatch(batch)
				return
			}
			if o.ack != nil {
				x.flushBatch(batch)
				batch = batch[:0]
				close(o.ack)
				continue
			}
			batch = append(batch, o)
			if len(batch) >= 64 {
				x.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				x.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (x *Index) flushBatch(batch []op) {
	if len(batch) == 0 {
		return
	}
	err := runTx(context.Background(), x.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO snap_events (id, page_id, event_id, snapshot_id, kind, state, url, record, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(page_id, event_id) DO UPDATE SET
				snapshot_id = excluded.snapshot_id,
				state = excluded.state,
				url = excluded.url,
				record = excluded.record,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("store: prepare: %w", err)
		}
		defer stmt.Close()

		for _, o := range batch {
			data, err := event.MarshalRecord(&o.rec)
			if err != nil {
				x.logger.Error("store: encode record", "event_id", o.rec.EventID, "error", err)
				continue
			}
			if _, err := stmt.Exec(x.newID(), o.rec.PageID, o.rec.EventID, o.rec.SnapshotID,
				string(o.rec.Input.Kind), string(o.state), o.rec.URL, string(data),
				o.rec.CreatedAt.UnixMilli(), o.at.UnixMilli()); err != nil {
				x.logger.Error("store: insert", "event_id", o.rec.EventID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		x.logger.Error("store: flush", "count", len(batch), "error", err)
	}
}

const selectEntry = `SELECT id, state, record, updated_at FROM snap_events`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	var (
		e       Entry
		state   string
		data    string
		updated int64
	)
	if err := row.Scan(&e.ID, &state, &data, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &e.Record); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	e.State = State(state)
	e.UpdatedAt = time.UnixMilli(updated)
	return &e, nil
}

// ByEvent returns the entry for an event ID, or nil if none.
func (x *Index) ByEvent(ctx context.Context, eventID string) (*Entry, error) {
	e, err := scanEntry(x.db.QueryRowContext(ctx, selectEntry+` WHERE event_id = ? LIMIT 1`, eventID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// BySnapshot returns the entry for a page's snapshot ID, or nil if none.
func (x *Index) BySnapshot(ctx context.Context, pageID string, snapshotID int64) (*Entry, error) {
	e, err := scanEntry(x.db.QueryRowContext(ctx,
		selectEntry+` WHERE page_id = ? AND snapshot_id = ? LIMIT 1`, pageID, snapshotID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListOptions filters List.
type ListOptions struct {
	PageID string
	State  State
	// Limit defaults to 100.
	Limit int
}

// List returns entries newest first.
func (x *Index) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	q := selectEntry + ` WHERE 1=1`
	var args []any
	if opts.PageID != "" {
		q += ` AND page_id = ?`
		args = append(args, opts.PageID)
	}
	if opts.State != "" {
		q += ` AND state = ?`
		args = append(args, string(opts.State))
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per state for a page (all pages if empty).
func (x *Index) Counts(ctx context.Context, pageID string) (map[State]int64, error) {
	q := `SELECT state, COUNT(*) FROM snap_events`
	var args []any
	if pageID != "" {
		q += ` WHERE page_id = ?`
		args = append(args, pageID)
	}
	q += ` GROUP BY state`

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[State]int64)
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[State(s)] = n
	}
	return out, rows.Err()
}
