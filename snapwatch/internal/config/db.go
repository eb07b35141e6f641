// CLAUDE:SUMMARY Loads watch_pages rows from SQLite and polls for changes.
package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Schema for the watch_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS watch_pages (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	stealth_level TEXT DEFAULT '',
	region        TEXT DEFAULT '{}',
	status        TEXT DEFAULT 'active',
	updated_at    INTEGER NOT NULL
);
`

// LoadPages reads all active pages from the database.
func LoadPages(ctx context.Context, db *sql.DB) ([]PageConfig, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, stealth_level, region
		FROM watch_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		var regionJSON string
		if err := rows.Scan(&p.ID, &p.URL, &p.StealthLevel, &regionJSON); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		if regionJSON != "" {
			var r event.Region
			if err := json.Unmarshal([]byte(regionJSON), &r); err == nil {
				p.Region = r
			}
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// UpsertPage inserts or replaces one active page row.
func UpsertPage(ctx context.Context, db *sql.DB, p PageConfig) error {
	region, err := json.Marshal(p.Region)
	if err != nil {
		return fmt.Errorf("config: encode region: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO watch_pages (id, url, stealth_level, region, status, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			stealth_level = excluded.stealth_level,
			region = excluded.region,
			status = 'active',
			updated_at = excluded.updated_at
	`, p.ID, p.URL, p.StealthLevel, string(region), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: upsert page: %w", err)
	}
	return nil
}

// WatchOptions tunes WatchPages.
type WatchOptions struct {
	// Interval is the polling frequency. Default 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before reload fires.
	Debounce time.Duration
	Logger   *slog.Logger
}

// WatchPages polls PRAGMA data_version and calls reload with the active pages
// after each settled change. It blocks until ctx is cancelled. A failed load
// is retried on the next poll.
func WatchPages(ctx context.Context, db *sql.DB, opts WatchOptions, reload func([]PageConfig)) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger

	seen, err := dataVersion(ctx, db)
	if err != nil {
		log.Warn("config: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var settle <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			cur, err := dataVersion(ctx, db)
			if err != nil {
				log.Warn("config: version check failed", "error", err)
				continue
			}
			if cur == seen || cur == pending {
				continue
			}
			pending = cur
			if opts.Debounce <= 0 {
				if fireReload(ctx, db, log, reload) {
					seen = pending
				}
				pending = -1
				continue
			}
			settle = time.After(opts.Debounce)

		case <-settle:
			settle = nil
			if pending >= 0 && fireReload(ctx, db, log, reload) {
				seen = pending
			}
			pending = -1
		}
	}
}

func fireReload(ctx context.Context, db *sql.DB, log *slog.Logger, reload func([]PageConfig)) bool {
	pages, err := LoadPages(ctx, db)
	if err != nil {
		log.Error("config: reload pages", "error", err)
		return false
	}
	log.Info("config: pages changed", "count", len(pages))
	reload(pages)
	return true
}

// dataVersion changes whenever another connection commits to the database.
func dataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
