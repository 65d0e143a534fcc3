// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package catalog is the durable event+backup ledger. It owns all durable
// state for the daemon: events observed from the controller, and which
// backup targets hold a copy of each event's clip. The pool is capped at a
// single connection, so within one process writes and reads are serialized
// on it; the store runs in WAL mode, so a reader in another process (such as
// backupctl) does not block on the daemon's writes.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// UpsertResult reports whether upsert_event created a new row or updated an
// existing one.
type UpsertResult int

const (
	Created UpsertResult = iota
	Updated
)

// Event mirrors the events table (spec §3).
type Event struct {
	ID            string
	DetectionType string
	CameraID      string
	CameraName    string
	StartTime     time.Time
	EndTime       *time.Time
	ObservedAt    time.Time
}

// Closed reports whether the event has a known end_time.
func (e Event) Closed() bool {
	return e.EndTime != nil
}

// BackupRecord mirrors the backups table (spec §3).
type BackupRecord struct {
	EventID    string
	TargetName string
	RemotePath string
	SizeBytes  int64
	BackupTime time.Time
}

// MissingTarget is the synthetic target name used to mark an event whose
// clip is permanently gone, per spec §4.5 "skip-missing".
const MissingTarget = "__missing__"

// Catalog wraps a sqlite database implementing the contract in spec §4.1.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog database at path and runs
// schema migrations. Enables WAL journaling so readers never block writers.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog database")
	}
	// Single logical writer; sqlite serializes writers anyway, but capping
	// the pool avoids SQLITE_BUSY churn under concurrent writer goroutines.
	db.SetMaxOpenConns(1)
	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	camera_id      TEXT NOT NULL,
	camera_name    TEXT NOT NULL DEFAULT '',
	start_time     INTEGER NOT NULL,
	end_time       INTEGER,
	observed_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);

CREATE TABLE IF NOT EXISTS backups (
	event_id    TEXT NOT NULL,
	target_name TEXT NOT NULL,
	remote_path TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	backup_time INTEGER NOT NULL,
	PRIMARY KEY (event_id, target_name),
	FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_backups_target_time ON backups(target_name, backup_time);
`
	_, err := c.db.Exec(schema)
	return errors.Wrap(err, "migrate catalog schema")
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// UpsertEvent inserts event if event_id is new, or updates end_time per
// spec §4.1: start_time is never overwritten; end_time only moves NULL ->
// value or value -> larger value.
func (c *Catalog) UpsertEvent(ctx context.Context, ev Event) (UpsertResult, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin upsert_event tx")
	}
	defer tx.Rollback()

	var existingEnd sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT end_time FROM events WHERE id = ?`, ev.ID).Scan(&existingEnd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var endTime interface{}
		if ev.EndTime != nil {
			endTime = ev.EndTime.Unix()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, event_type, camera_id, camera_name, start_time, end_time, observed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.DetectionType, ev.CameraID, ev.CameraName, ev.StartTime.Unix(), endTime, ev.ObservedAt.Unix())
		if err != nil {
			return 0, errors.Wrap(err, "insert event")
		}
		return Created, errors.Wrap(tx.Commit(), "commit insert_event")
	case err != nil:
		return 0, errors.Wrap(err, "query existing event")
	}

	if ev.EndTime == nil {
		return Updated, errors.Wrap(tx.Commit(), "commit upsert_event (no-op)")
	}
	newEnd := ev.EndTime.Unix()
	if existingEnd.Valid && existingEnd.Int64 >= newEnd {
		return Updated, errors.Wrap(tx.Commit(), "commit upsert_event (no-op)")
	}
	_, err = tx.ExecContext(ctx, `UPDATE events SET end_time = ? WHERE id = ?`, newEnd, ev.ID)
	if err != nil {
		return 0, errors.Wrap(err, "update event end_time")
	}
	return Updated, errors.Wrap(tx.Commit(), "commit upsert_event")
}

// ListUnbacked returns events that are closed (end_time set) and have no
// BackupRecord for targetName, ordered start_time ascending, event_id
// ascending on ties, at most limit rows.
func (c *Catalog) ListUnbacked(ctx context.Context, targetName string, limit int) ([]Event, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT e.id, e.event_type, e.camera_id, e.camera_name, e.start_time, e.end_time, e.observed_at
		FROM events e
		WHERE e.end_time IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM backups b WHERE b.event_id = e.id AND b.target_name = ?
		)
		ORDER BY e.start_time ASC, e.id ASC
		LIMIT ?`, targetName, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list_unbacked query")
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var ev Event
		var start, observed int64
		var end sql.NullInt64
		if err := rows.Scan(&ev.ID, &ev.DetectionType, &ev.CameraID, &ev.CameraName, &start, &end, &observed); err != nil {
			return nil, errors.Wrap(err, "scan event row")
		}
		ev.StartTime = time.Unix(start, 0).UTC()
		ev.ObservedAt = time.Unix(observed, 0).UTC()
		if end.Valid {
			t := time.Unix(end.Int64, 0).UTC()
			ev.EndTime = &t
		}
		out = append(out, ev)
	}
	return out, errors.Wrap(rows.Err(), "iterate event rows")
}

// RecordBackup upserts a BackupRecord; idempotent on (event_id, target_name).
func (c *Catalog) RecordBackup(ctx context.Context, rec BackupRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO backups (event_id, target_name, remote_path, size_bytes, backup_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id, target_name) DO UPDATE SET
			remote_path = excluded.remote_path,
			size_bytes = excluded.size_bytes,
			backup_time = excluded.backup_time`,
		rec.EventID, rec.TargetName, rec.RemotePath, rec.SizeBytes, rec.BackupTime.Unix())
	return errors.Wrap(err, "record_backup")
}

// DeleteBackup removes the BackupRecord for (eventID, targetName). Used by
// target prune after the bytes have been removed.
func (c *Catalog) DeleteBackup(ctx context.Context, eventID, targetName string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM backups WHERE event_id = ? AND target_name = ?`, eventID, targetName)
	return errors.Wrap(err, "delete_backup")
}

// BackupWithEvent pairs a BackupRecord with its owning Event, for archive windowing.
type BackupWithEvent struct {
	Backup BackupRecord
	Event  Event
}

// ListBackupsInWindow returns BackupRecords for targetName whose event
// start_time falls in [wStart, wEnd), joined with the owning event.
func (c *Catalog) ListBackupsInWindow(ctx context.Context, targetName string, wStart, wEnd time.Time) ([]BackupWithEvent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT b.event_id, b.target_name, b.remote_path, b.size_bytes, b.backup_time,
		       e.id, e.event_type, e.camera_id, e.camera_name, e.start_time, e.end_time, e.observed_at
		FROM backups b
		JOIN events e ON e.id = b.event_id
		WHERE b.target_name = ? AND e.start_time >= ? AND e.start_time < ?
		ORDER BY e.start_time ASC, e.id ASC`, targetName, wStart.Unix(), wEnd.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "list_backups_in_window query")
	}
	defer rows.Close()

	var out []BackupWithEvent
	for rows.Next() {
		var bw BackupWithEvent
		var backupTime, start, observed int64
		var end sql.NullInt64
		if err := rows.Scan(
			&bw.Backup.EventID, &bw.Backup.TargetName, &bw.Backup.RemotePath, &bw.Backup.SizeBytes, &backupTime,
			&bw.Event.ID, &bw.Event.DetectionType, &bw.Event.CameraID, &bw.Event.CameraName, &start, &end, &observed,
		); err != nil {
			return nil, errors.Wrap(err, "scan backup+event row")
		}
		bw.Backup.BackupTime = time.Unix(backupTime, 0).UTC()
		bw.Event.StartTime = time.Unix(start, 0).UTC()
		bw.Event.ObservedAt = time.Unix(observed, 0).UTC()
		if end.Valid {
			t := time.Unix(end.Int64, 0).UTC()
			bw.Event.EndTime = &t
		}
		out = append(out, bw)
	}
	return out, errors.Wrap(rows.Err(), "iterate backup+event rows")
}

// PruneEventsOlderThan removes events whose start_time < cutoff and which
// have zero BackupRecords. Callers must have already deleted bytes and
// backup rows for any event they intend to prune (spec §4.1 "Failure").
func (c *Catalog) PruneEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM events
		WHERE start_time < ?
		AND NOT EXISTS (SELECT 1 FROM backups b WHERE b.event_id = events.id)`, cutoff.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "prune_events_older_than")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "prune_events_older_than rows affected")
}

// CountEventsByState reports catalog size for metrics/backupctl stats: total
// events, events with end_time set (closed), and events with no
// BackupRecord at all on any target.
func (c *Catalog) CountEventsByState(ctx context.Context) (total, closed, fullyUnbacked int64, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&total)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "count events")
	}
	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE end_time IS NOT NULL`).Scan(&closed)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "count closed events")
	}
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events e
		WHERE NOT EXISTS (SELECT 1 FROM backups b WHERE b.event_id = e.id)`).Scan(&fullyUnbacked)
	return total, closed, fullyUnbacked, errors.Wrap(err, "count unbacked events")
}
