// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ingestor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/metrics"
	"github.com/kestrelcove/protectbackup/pkg/protectclient"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
)

// Filter is a pure predicate over an observed event and the current
// config, applied after ingestion but before catalog write (spec §4.4).
type Filter struct {
	DetectionTypes map[string]bool // empty means "allow all"
	IgnoreCameras  map[string]bool
	Cameras        map[string]bool // empty means "allow all"
}

func (f Filter) allows(ev protectclient.Event) bool {
	if len(f.DetectionTypes) > 0 && !f.DetectionTypes[ev.DetectionType] {
		return false
	}
	if f.IgnoreCameras[ev.CameraID] {
		return false
	}
	if len(f.Cameras) > 0 && !f.Cameras[ev.CameraID] {
		return false
	}
	return true
}

// Config configures the Ingestor.
type Config struct {
	PollInterval   time.Duration
	MaxEventLength time.Duration
	Filter         Filter
}

// Ingestor merges the push and pull sources into a single gap-free stream
// of event IDs ready to back up.
type Ingestor struct {
	client  protectclient.ProtectClient
	catalog *catalog.Catalog
	cfg     Config
	ready   chan string

	mu           sync.Mutex
	states       map[string]*eventState
	disconnectAt time.Time
	cameraNames  map[string]string
}

// New constructs an Ingestor. readyCap bounds the outbound queue (spec §5:
// parallel-uploads x 4).
func New(client protectclient.ProtectClient, cat *catalog.Catalog, cfg Config, readyCap int) *Ingestor {
	return &Ingestor{
		client:  client,
		catalog: cat,
		cfg:     cfg,
		ready:   make(chan string, readyCap),
		states:  make(map[string]*eventState),
	}
}

// Ready returns the outbound queue of event IDs ready to back up.
func (in *Ingestor) Ready() <-chan string {
	return in.ready
}

// SetCameras records the camera id-to-name mapping from the controller's
// bootstrap response (spec §3 Event.camera_name, §4.2 {camera_name} token).
// Call once before Run; the controller's camera list does not change within
// a daemon lifetime.
func (in *Ingestor) SetCameras(cameras []protectclient.Camera) {
	names := make(map[string]string, len(cameras))
	for _, cam := range cameras {
		names[cam.ID] = cam.Name
	}
	in.mu.Lock()
	in.cameraNames = names
	in.mu.Unlock()
}

func (in *Ingestor) cameraName(cameraID string) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cameraNames[cameraID]
}

// Run drives the ingestor until ctx is canceled: a reconnecting push loop,
// a periodic pull reconciliation tick, and a periodic Open-event timeout
// sweep. Returns nil on clean shutdown.
func (in *Ingestor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- in.runPush(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- in.runPullTicker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- in.runTimeoutSweep(ctx)
	}()

	go func() {
		wg.Wait()
		close(in.ready)
	}()

	select {
	case <-ctx.Done():
		wg.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}

// runPush maintains the WebSocket subscription, reconnecting after every
// disconnect and triggering a catch-up pull once the reconnect succeeds
// (spec §4.4 "Reconnect protocol").
func (in *Ingestor) runPush(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		stream, err := in.client.SubscribeEvents(ctx)
		if err != nil {
			logger.WarnContextf(ctx, "subscribe_events failed, retrying: %s", err)
			metrics.RecordError(metrics.ComponentProtect, "subscribe_events", "Transport")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if err := in.catchUp(ctx); err != nil {
			logger.WarnContextf(ctx, "catch-up pull after reconnect failed: %s", err)
			metrics.RecordError(metrics.ComponentIngestor, "catch_up", "Transport")
		}
		in.mu.Lock()
		in.disconnectAt = time.Time{}
		in.mu.Unlock()

		for ev := range stream {
			in.observe(ctx, ev, "push")
		}
		if ctx.Err() != nil {
			return nil
		}

		in.mu.Lock()
		in.disconnectAt = time.Now()
		in.mu.Unlock()
		logger.WarnContextf(ctx, "controller websocket disconnected, reconnecting")
	}
}

// catchUp pulls [disconnect_ts - 60s, now] on reconnect.
func (in *Ingestor) catchUp(ctx context.Context) error {
	in.mu.Lock()
	disconnectAt := in.disconnectAt
	in.mu.Unlock()
	if disconnectAt.IsZero() {
		return nil
	}
	from := disconnectAt.Add(-60 * time.Second)
	return in.pull(ctx, from, time.Now())
}

// runPullTicker runs the reconcile pull on poll-interval.
func (in *Ingestor) runPullTicker(ctx context.Context) error {
	ticker := time.NewTicker(in.cfg.PollInterval)
	defer ticker.Stop()
	recoveryWindow := 2 * in.cfg.PollInterval
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := in.pull(ctx, now.Add(-recoveryWindow), now); err != nil {
				logger.WarnContextf(ctx, "reconcile pull failed: %s", err)
			}
		}
	}
}

func (in *Ingestor) pull(ctx context.Context, from, to time.Time) error {
	events, err := in.client.ListEvents(ctx, from, to)
	if err != nil {
		return errors.Wrap(err, "list_events")
	}
	for _, ev := range events {
		in.observe(ctx, ev, "pull")
	}
	return nil
}

// runTimeoutSweep periodically checks Open events for max_event_length elapsing.
func (in *Ingestor) runTimeoutSweep(ctx context.Context) error {
	interval := in.cfg.MaxEventLength / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			in.sweepTimeouts(ctx, now)
		}
	}
}

func (in *Ingestor) sweepTimeouts(ctx context.Context, now time.Time) {
	in.mu.Lock()
	var toPersist []*eventState
	for _, st := range in.states {
		if checkTimeout(st, now, in.cfg.MaxEventLength) {
			toPersist = append(toPersist, st)
		}
	}
	in.mu.Unlock()
	for _, st := range toPersist {
		in.persistReady(ctx, st)
	}
}

// observe folds one raw observation from source ("push" or "pull") through
// the filter and the state machine.
func (in *Ingestor) observe(ctx context.Context, ev protectclient.Event, source string) {
	if !in.cfg.Filter.allows(ev) {
		return
	}
	recorder.Global.Record(ctx, recorder.Event{
		Type:    recorder.EventTypeEventObserved,
		EventID: ev.EventID,
		Details: map[string]interface{}{"source": source, "camera_id": ev.CameraID},
	})
	metrics.EventsObservedTotal.WithLabelValues(source, ev.DetectionType).Inc()

	in.mu.Lock()
	existing := in.states[ev.EventID]
	st, becameReady := applyObservation(existing, ev, time.Now(), in.cfg.MaxEventLength)
	in.states[ev.EventID] = st
	if becameReady {
		delete(in.states, ev.EventID)
	}
	in.mu.Unlock()

	if becameReady {
		in.persistReady(ctx, st)
	}
}

// persistReady upserts the event into the catalog and emits its ID on the
// outbound queue, per spec §4.4 "Every transition that reaches READY..."
func (in *Ingestor) persistReady(ctx context.Context, st *eventState) {
	ctx = logger.WithFields(ctx, logger.FieldEventID, st.event.EventID)
	_, err := in.catalog.UpsertEvent(ctx, catalog.Event{
		ID:            st.event.EventID,
		DetectionType: st.event.DetectionType,
		CameraID:      st.event.CameraID,
		CameraName:    in.cameraName(st.event.CameraID),
		StartTime:     st.event.Start,
		EndTime:       st.event.End,
		ObservedAt:    st.observedAt,
	})
	if err != nil {
		logger.ErrorContextf(ctx, "upsert_event for %s failed: %s", st.event.EventID, err)
		metrics.RecordError(metrics.ComponentCatalog, "upsert_event", "Catalog")
		return
	}
	recorder.Global.Record(ctx, recorder.Event{
		Type:    recorder.EventTypeEventReady,
		EventID: st.event.EventID,
	})
	metrics.EventsReadyTotal.WithLabelValues(st.event.DetectionType).Inc()
	select {
	case in.ready <- st.event.EventID:
	case <-ctx.Done():
	}
}
