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
)

// runIntegrityTicker periodically checks that every BackupRecord still
// surviving retention actually has bytes present on its target, per spec
// §8 invariant 1 ("BackupRecord <-> bytes") and the DataIntegrity error
// kind (spec §7): a catalog row pointing at bytes the target reports
// missing is surfaced, never auto-fixed.
func (p *Pipeline) runIntegrityTicker(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkDataIntegrity(ctx)
		}
	}
}

func (p *Pipeline) checkDataIntegrity(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.RetentionPeriod)
	horizon := time.Now().Add(24 * time.Hour)
	for _, t := range p.tgts {
		rows, err := p.catalog.ListBackupsInWindow(ctx, t.Name(), cutoff, horizon)
		if err != nil {
			logger.ErrorContextf(ctx, "data-integrity scan for %s failed: %s", t.Name(), err)
			metrics.RecordError(metrics.ComponentCatalog, "list_backups_in_window", "Catalog")
			continue
		}
		for _, row := range rows {
			present, err := t.Exists(ctx, row.Backup.RemotePath)
			if err != nil {
				logger.WarnContextf(ctx, "data-integrity exists check for %s/%s failed: %s",
					row.Backup.EventID, t.Name(), err)
				continue
			}
			if present {
				continue
			}
			metrics.DataIntegrityTotal.WithLabelValues(t.Name(), "missing_bytes").Inc()
			metrics.RecordError(metrics.ComponentTarget, "exists", "DataIntegrity")
			recorder.Global.Record(ctx, recorder.Event{
				Type: recorder.EventTypeDataIntegrity, EventID: row.Backup.EventID, Target: t.Name(),
				EventStatus: recorder.Warning,
				Message:     "catalog row points to bytes the target reports missing",
				Details:     map[string]interface{}{"remote_path": row.Backup.RemotePath},
			})
		}
	}
}
