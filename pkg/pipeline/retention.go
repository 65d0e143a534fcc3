// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"time"

	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/metrics"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// runPurgeTicker enforces retention on purge-interval: prune target bytes,
// then drop backup rows whose files are gone, then prune fully-unbacked
// events older than the cutoff. Order is mandatory (spec §4.5 "Retention
// prune") to preserve the BackupRecord <-> bytes invariant.
func (p *Pipeline) runPurgeTicker(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.enforceRetention(ctx)
		}
	}
}

func (p *Pipeline) enforceRetention(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.RetentionPeriod)

	for _, t := range p.tgts {
		if err := t.Prune(ctx, cutoff); err != nil {
			logger.ErrorContextf(ctx, "prune target %s failed: %s", t.Name(), err)
			continue
		}
		n, err := p.reconcileStaleBackupRows(ctx, t, cutoff)
		if err != nil {
			logger.ErrorContextf(ctx, "reconcile stale backup rows for %s failed: %s", t.Name(), err)
			continue
		}
		if n > 0 {
			metrics.RetentionPrunedTotal.WithLabelValues(t.Name()).Add(float64(n))
			recorder.Global.Record(ctx, recorder.Event{
				Type: recorder.EventTypeTargetPruned, Target: t.Name(),
				Details: map[string]interface{}{"rows_removed": n},
			})
		}
	}

	n, err := p.catalog.PruneEventsOlderThan(ctx, cutoff)
	if err != nil {
		logger.ErrorContextf(ctx, "prune_events_older_than failed: %s", err)
		return
	}
	if n > 0 {
		recorder.Global.Record(ctx, recorder.Event{Type: recorder.EventTypeEventPruned, Details: map[string]interface{}{"count": n}})
	}
}

// reconcileStaleBackupRows deletes backup rows older than cutoff for target
// t, but only once t.Exists confirms the bytes are actually gone — t.Prune
// above only guarantees files older than cutoff by its own criterion (e.g.
// Local's mtime), which can disagree with the event's start_time, and a
// no-op Prune (RemoteCopy) never removes bytes at all. A row whose bytes are
// still present is left in place; spec §4.5/§8 invariant 1 forbids a
// BackupRecord pointing at nothing, never the reverse.
func (p *Pipeline) reconcileStaleBackupRows(ctx context.Context, t targets.BackupTarget, cutoff time.Time) (int64, error) {
	window, err := p.catalog.ListBackupsInWindow(ctx, t.Name(), time.Unix(0, 0), cutoff)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, bw := range window {
		present, err := t.Exists(ctx, bw.Backup.RemotePath)
		if err != nil {
			logger.WarnContextf(ctx, "exists check for %s/%s failed: %s", bw.Backup.EventID, t.Name(), err)
			continue
		}
		if present {
			continue
		}
		if err := p.catalog.DeleteBackup(ctx, bw.Backup.EventID, t.Name()); err != nil {
			logger.ErrorContextf(ctx, "delete_backup(%s, %s) failed: %s", bw.Backup.EventID, t.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
