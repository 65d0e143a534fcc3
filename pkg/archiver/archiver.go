// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package archiver implements the Archive Scheduler (C6): on a cron-driven
// tick, it windows already-backed-up clips into deduplicated archives and
// prunes both clip-level and archive-level retention.
package archiver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/metrics"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// maxReplayWindows caps how many missed ticks are replayed newest-first
// (spec §4.6 "Tick skew and missed ticks").
const maxReplayWindows = 7

// Config configures the Archive Scheduler.
type Config struct {
	ArchiveInterval time.Duration
	RetentionPeriod time.Duration
	PathFormat      string
	// SourceTargetOrder names backup targets in declared order; the first
	// target is the "source of truth" for archiving (spec §4.6 step 2).
	SourceTargetOrder []string
}

// Archiver is the Archive Scheduler (C6).
type Archiver struct {
	catalog   *catalog.Catalog
	backups   map[string]targets.BackupTarget
	archives  []targets.ArchiveTarget
	cfg       Config
	cronObj   *cron.Cron
	lastTick  time.Time
}

// New constructs an Archiver. backups is keyed by target name.
func New(cat *catalog.Catalog, backups []targets.BackupTarget, archives []targets.ArchiveTarget, cfg Config) *Archiver {
	byName := make(map[string]targets.BackupTarget, len(backups))
	for _, t := range backups {
		byName[t.Name()] = t
	}
	return &Archiver{catalog: cat, backups: byName, archives: archives, cfg: cfg}
}

// Run schedules ticks on cfg.ArchiveInterval using a cron expression
// equivalent to "every ArchiveInterval", grounded on the teacher's
// cron.New()/AddFunc/Start() init shape.
func (a *Archiver) Run(ctx context.Context) error {
	a.cronObj = cron.New()
	_, err := a.cronObj.AddFunc(everySpec(a.cfg.ArchiveInterval), func() {
		if err := a.tick(ctx); err != nil {
			logger.ErrorContextf(ctx, "archive tick failed: %s", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "schedule archive cron")
	}
	a.cronObj.Start()
	defer a.cronObj.Stop()

	<-ctx.Done()
	return nil
}

// everySpec builds a cron spec firing roughly once per interval. Archive
// intervals in this domain are day-granularity or coarser, so a daily spec
// anchored at midnight is sufficient; sub-day intervals fall back to an
// `@every` spec, which robfig/cron also accepts.
func everySpec(interval time.Duration) string {
	if interval >= 24*time.Hour {
		return "0 0 * * *"
	}
	return "@every " + interval.String()
}

// tick determines the current window, replays missed windows newest-first
// up to maxReplayWindows, and archives each.
func (a *Archiver) tick(ctx context.Context) error {
	now := time.Now().UTC()
	wEnd := now.Truncate(a.cfg.ArchiveInterval)

	var windows [][2]time.Time
	cursor := wEnd
	for i := 0; i < maxReplayWindows; i++ {
		wStart := cursor.Add(-a.cfg.ArchiveInterval)
		windows = append(windows, [2]time.Time{wStart, cursor})
		cursor = wStart
		if a.lastTick.IsZero() || !cursor.After(a.lastTick) {
			break
		}
	}
	if !a.lastTick.IsZero() && cursor.After(a.lastTick) {
		logger.WarnContextf(ctx, "more than %d missed archive windows, older ones not archived", maxReplayWindows)
	}
	a.lastTick = wEnd

	// archive() calls for a given tick are serialized across archive
	// targets against the same staging tree (Open Question 1 decision,
	// see DESIGN.md); prune() calls may run concurrently afterward.
	for i := 0; i < len(windows); i++ {
		wStart, wEndTick := windows[i][0], windows[i][1]
		if err := a.archiveWindow(ctx, wStart, wEndTick); err != nil {
			logger.ErrorContextf(ctx, "archive window [%s,%s) failed: %s", wStart, wEndTick, err)
			metrics.RecordError(metrics.ComponentArchiver, "archive_window", "ExternalProcess")
		}
	}

	for _, at := range a.archives {
		if err := at.Prune(ctx, a.cfg.RetentionPeriod); err != nil {
			logger.ErrorContextf(ctx, "prune archive target %s failed: %s", at.Name(), err)
			metrics.ArchiveRunsTotal.WithLabelValues(at.Name(), "prune_error").Inc()
			metrics.RecordError(metrics.ComponentArchiver, "prune", "ExternalProcess")
			continue
		}
		recorder.Global.Record(ctx, recorder.Event{Type: recorder.EventTypeArchivePruned, Target: at.Name()})
	}
	return nil
}

func (a *Archiver) sourceTarget() (targets.BackupTarget, error) {
	for _, name := range a.cfg.SourceTargetOrder {
		if t, ok := a.backups[name]; ok {
			return t, nil
		}
	}
	return nil, errors.New("no configured backup target available as archive source")
}

func (a *Archiver) archiveWindow(ctx context.Context, wStart, wEnd time.Time) error {
	source, err := a.sourceTarget()
	if err != nil {
		return err
	}
	entries, err := a.catalog.ListBackupsInWindow(ctx, source.Name(), wStart, wEnd)
	if err != nil {
		return errors.Wrap(err, "list_backups_in_window")
	}
	if len(entries) == 0 {
		return nil
	}

	stagingDir, err := buildStagingTree(a.cfg.PathFormat, entries)
	if err != nil {
		return errors.Wrap(err, "build staging tree")
	}

	var inputBytes int64
	for _, e := range entries {
		inputBytes += e.Backup.SizeBytes
	}

	label := "ufp-" + wStart.Format("2006-01-02T15:04:05Z")
	var anySucceeded bool
	for _, at := range a.archives {
		ctx := logger.WithFields(ctx, logger.FieldTarget, at.Name())
		metrics.ArchiveInputBytesTotal.WithLabelValues(at.Name()).Add(float64(inputBytes))
		start := time.Now()
		archiveID, err := at.Archive(ctx, stagingDir, label)
		metrics.ArchiveRunDurationSeconds.WithLabelValues(at.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ArchiveRunsTotal.WithLabelValues(at.Name(), "error").Inc()
			recorder.Global.Record(ctx, recorder.Event{
				Type: recorder.EventTypeArchiveFailed, Target: at.Name(),
				Message: err.Error(), Details: map[string]interface{}{"label": label},
			})
			continue
		}
		anySucceeded = true
		metrics.ArchiveRunsTotal.WithLabelValues(at.Name(), "ok").Inc()
		recorder.Global.Record(ctx, recorder.Event{
			Type: recorder.EventTypeArchiveCreated, Target: at.Name(),
			Details: map[string]interface{}{"archive_id": archiveID, "label": label},
		})
	}

	// On success, delete the staging directory. On failure, leave it for
	// the next tick — archive engines are expected to be resumable by
	// content (spec §4.6 step 4).
	if anySucceeded {
		if err := os.RemoveAll(stagingDir); err != nil {
			logger.WarnContextf(ctx, "remove staging dir %s: %s", stagingDir, err)
		}
	}
	return nil
}

// buildStagingTree mirrors the target's path template layout for entries,
// preferring hard links over copies (spec §4.6 step 2).
func buildStagingTree(pathFormat string, entries []catalog.BackupWithEvent) (string, error) {
	dir, err := os.MkdirTemp("", "ufp-archive-*")
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		rel, err := targets.RenderPath(pathFormat, entry.Event)
		if err != nil {
			logger.Warnf("skip %s in staging tree, bad path template: %s", entry.Event.ID, err)
			continue
		}
		dest := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
			return "", err
		}
		if err := linkOrCopy(entry.Backup.RemotePath, dest); err != nil {
			logger.Warnf("stage %s failed: %s", entry.Backup.RemotePath, err)
		}
	}
	return dir, nil
}

func linkOrCopy(src, dest string) error {
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
