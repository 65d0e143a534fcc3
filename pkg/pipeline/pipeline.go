// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/lock"
	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/metrics"
	"github.com/kestrelcove/protectbackup/pkg/protectclient"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
	"github.com/kestrelcove/protectbackup/pkg/retry"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// Config configures the Pipeline.
type Config struct {
	ParallelUploads    int
	PurgeInterval      time.Duration
	RetentionPeriod    time.Duration
	PollInterval       time.Duration
	BatchSize          int
	SkipMissing        bool
	DownloadBufferSize int
}

// Pipeline is the Backup Pipeline (C5).
type Pipeline struct {
	client  protectclient.ProtectClient
	catalog *catalog.Catalog
	tgts    []targets.BackupTarget
	cfg     Config

	sem        chan struct{} // global semaphore, caps in-flight events at ParallelUploads
	inFlight   lock.Interface
	quarantine *quarantine
}

// New constructs a Pipeline.
func New(client protectclient.ProtectClient, cat *catalog.Catalog, tgts []targets.BackupTarget, cfg Config) *Pipeline {
	if cfg.ParallelUploads <= 0 {
		cfg.ParallelUploads = 4
	}
	return &Pipeline{
		client:     client,
		catalog:    cat,
		tgts:       tgts,
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.ParallelUploads),
		inFlight:   lock.NewLocalLock(),
		quarantine: newQuarantine(cfg.PollInterval*10, 3),
	}
}

// Run consumes ready from the ingestor and drives periodic reconcile and
// retention-prune ticks, until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, ready <-chan string) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case eventID, ok := <-ready:
				if !ok {
					return
				}
				p.dispatch(ctx, eventID)
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReconcileTicker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runPurgeTicker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runIntegrityTicker(ctx)
	}()

	wg.Wait()
	return nil
}

// dispatch acquires the global semaphore and processes one event.
func (p *Pipeline) dispatch(ctx context.Context, eventID string) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	go func() {
		defer func() { <-p.sem }()
		p.processEvent(ctx, eventID)
	}()
}

// runReconcileTicker asks the catalog for list_unbacked(target, batch_size)
// for every configured target on poll-interval (spec §4.5 "Input").
func (p *Pipeline) runReconcileTicker(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	batch := p.cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seen := make(map[string]bool)
			for _, t := range p.tgts {
				events, err := p.catalog.ListUnbacked(ctx, t.Name(), batch)
				if err != nil {
					logger.ErrorContextf(ctx, "reconcile list_unbacked(%s) failed: %s", t.Name(), err)
					continue
				}
				for _, ev := range events {
					if seen[ev.ID] {
						continue
					}
					seen[ev.ID] = true
					p.dispatch(ctx, ev.ID)
				}
			}
		}
	}
}

// processEvent runs the per-event procedure from spec §4.5: eligibility
// gate, fetch, fan out, completion.
func (p *Pipeline) processEvent(ctx context.Context, eventID string) {
	ctx = logger.WithFields(ctx, logger.FieldEventID, eventID)
	p.inFlight.Lock(ctx, eventID)
	defer p.inFlight.UnLock(ctx, eventID)

	ev, pending, err := p.eligibility(ctx, eventID)
	if err != nil {
		logger.ErrorContextf(ctx, "eligibility check for %s failed: %s", eventID, err)
		metrics.RecordError(metrics.ComponentCatalog, "list_unbacked", "Catalog")
		return
	}
	if len(pending) == 0 {
		return
	}

	staging, size, err := p.fetch(ctx, ev)
	if err != nil {
		if errors.Is(err, protectclient.ErrClipMissing) && p.cfg.SkipMissing {
			p.markMissing(ctx, ev.ID)
			return
		}
		logger.ErrorContextf(ctx, "fetch clip for %s failed: %s", eventID, err)
		metrics.RecordError(metrics.ComponentProtect, "fetch_clip", "Transport")
		return
	}
	defer os.Remove(staging)

	p.fanOut(ctx, ev, staging, size, pending)
}

// eligibility re-reads the event and returns the targets that still lack a
// BackupRecord. Returns an empty pending slice if every configured target
// already has one.
func (p *Pipeline) eligibility(ctx context.Context, eventID string) (catalog.Event, []targets.BackupTarget, error) {
	// list_unbacked(target, 1) filtered by id would require a dedicated
	// query; instead scan each target's unbacked set for this id via a
	// bounded list, acceptable since targets are few and batches small.
	var ev catalog.Event
	var found bool
	var pending []targets.BackupTarget
	for _, t := range p.tgts {
		events, err := p.catalog.ListUnbacked(ctx, t.Name(), 10000)
		if err != nil {
			return catalog.Event{}, nil, errors.Wrapf(err, "list_unbacked(%s)", t.Name())
		}
		for _, e := range events {
			if e.ID == eventID {
				ev = e
				found = true
				pending = append(pending, t)
				break
			}
		}
	}
	if !found {
		return catalog.Event{}, nil, nil
	}
	return ev, pending, nil
}

// fetch downloads the clip to a staging file, retrying transient failures
// (spec §4.5 step 2).
func (p *Pipeline) fetch(ctx context.Context, ev catalog.Event) (string, int64, error) {
	tmp, err := os.CreateTemp("", "ufp-*.clip")
	if err != nil {
		return "", 0, errors.Wrap(err, "create staging file")
	}
	tmpPath := tmp.Name()
	tmp.Close()

	end := ev.StartTime
	if ev.EndTime != nil {
		end = *ev.EndTime
	}

	var size int64
	start := time.Now()
	err = retry.Do(ctx, retry.DefaultOption, "fetch_clip", func(ctx context.Context) error {
		body, err := p.client.FetchClip(ctx, ev.ID, ev.StartTime, end)
		if err != nil {
			if errors.Is(err, protectclient.ErrClipMissing) {
				return nonRetryable{err}
			}
			return err
		}
		defer body.Close()

		f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0640)
		if err != nil {
			return errors.Wrap(err, "reopen staging file")
		}
		defer f.Close()
		bufSize := p.cfg.DownloadBufferSize
		if bufSize <= 0 {
			bufSize = 64 * 1024
		}
		n, err := io.CopyBuffer(f, body, make([]byte, bufSize))
		if err != nil {
			return errors.Wrap(err, "stream clip bytes")
		}
		if n == 0 {
			return errors.New("fetch_clip yielded 0 bytes")
		}
		size = n
		return nil
	})
	metrics.ClipFetchDurationSeconds.WithLabelValues(statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, err
	}
	metrics.ClipFetchBytesTotal.Add(float64(size))
	recorder.Global.Record(ctx, recorder.Event{Type: recorder.EventTypeClipFetched, EventID: ev.ID, Details: map[string]interface{}{"size_bytes": size}})
	return tmpPath, size, nil
}

type nonRetryable struct{ err error }

func (n nonRetryable) Error() string   { return n.err.Error() }
func (n nonRetryable) Unwrap() error   { return n.err }
func (n nonRetryable) Retryable() bool { return false }

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// markMissing records a sentinel BackupRecord on the synthetic __missing__
// target so the event is not retried forever (spec §4.5 "skip-missing").
func (p *Pipeline) markMissing(ctx context.Context, eventID string) {
	err := p.catalog.RecordBackup(ctx, catalog.BackupRecord{
		EventID: eventID, TargetName: catalog.MissingTarget, RemotePath: "", SizeBytes: 0, BackupTime: time.Now(),
	})
	if err != nil {
		logger.ErrorContextf(ctx, "mark %s missing failed: %s", eventID, err)
		return
	}
	recorder.Global.Record(ctx, recorder.Event{Type: recorder.EventTypeClipMissing, EventID: eventID})
}

// fanOut writes clip concurrently to every pending target, recording each
// success in the catalog immediately (spec §4.5 step 3).
func (p *Pipeline) fanOut(ctx context.Context, ev catalog.Event, stagingPath string, size int64, pending []targets.BackupTarget) {
	clip, err := os.ReadFile(stagingPath)
	if err != nil {
		logger.ErrorContextf(ctx, "read staging file for %s: %s", ev.ID, err)
		metrics.RecordError(metrics.ComponentPipeline, "read_staging_file", "TargetWrite")
		return
	}

	var wg sync.WaitGroup
	for _, t := range pending {
		if p.quarantine.Quarantined(t.Name(), time.Now()) {
			logger.WarnContextf(ctx, "target %s quarantined, skipping event %s", t.Name(), ev.ID)
			continue
		}
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.writeOneTarget(ctx, t, ev, clip)
		}()
	}
	wg.Wait()
}

func (p *Pipeline) writeOneTarget(ctx context.Context, t targets.BackupTarget, ev catalog.Event, clip []byte) {
	ctx = logger.WithFields(ctx, logger.FieldTarget, t.Name())
	start := time.Now()
	var remotePath string
	var size int64
	err := retry.Do(ctx, retry.DefaultOption, "target_write:"+t.Name(), func(ctx context.Context) error {
		var err error
		remotePath, size, err = t.Write(ctx, ev, clip)
		return err
	})
	metrics.BackupWriteDurationSeconds.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		p.quarantine.RecordFailure(t.Name(), time.Now())
		metrics.BackupWritesTotal.WithLabelValues(t.Name(), "error").Inc()
		metrics.TargetQuarantinedGauge.WithLabelValues(t.Name()).Set(boolFloat(p.quarantine.Quarantined(t.Name(), time.Now())))
		logger.ErrorContextf(logger.WithFields(ctx, logger.FieldKind, "TargetWrite"), "write to target %s for event %s failed: %s", t.Name(), ev.ID, err)
		metrics.RecordError(metrics.ComponentTarget, "write", "TargetWrite")
		recorder.Global.Record(ctx, recorder.Event{
			Type: recorder.EventTypeBackupFailed, EventID: ev.ID, Target: t.Name(),
			EventStatus: recorder.Warning, Message: err.Error(),
		})
		return
	}
	p.quarantine.RecordSuccess(t.Name())
	metrics.BackupWritesTotal.WithLabelValues(t.Name(), "ok").Inc()
	metrics.TargetQuarantinedGauge.WithLabelValues(t.Name()).Set(0)

	if err := p.catalog.RecordBackup(ctx, catalog.BackupRecord{
		EventID: ev.ID, TargetName: t.Name(), RemotePath: remotePath, SizeBytes: size, BackupTime: time.Now(),
	}); err != nil {
		logger.ErrorContextf(ctx, "record_backup for %s/%s failed: %s", ev.ID, t.Name(), err)
		return
	}
	recorder.Global.Record(ctx, recorder.Event{
		Type: recorder.EventTypeBackupWritten, EventID: ev.ID, Target: t.Name(),
		Details: map[string]interface{}{"remote_path": remotePath, "size_bytes": size},
	})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
