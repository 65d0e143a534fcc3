// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package ingestor implements the Event Ingestor (C4): it merges the
// controller's push (WebSocket) event stream with a periodic pull
// reconciliation so no event is lost across disconnects, runs each event
// through a small in-memory state machine, and emits event IDs that are
// ready to back up onto an outbound queue.
package ingestor

import (
	"time"

	"github.com/kestrelcove/protectbackup/pkg/protectclient"
)

// State is the per-event in-memory state (spec §4.4).
type State int

const (
	Open State = iota
	Closed
	TimedOut
	Ready
)

// eventState tracks one in-flight event until it reaches Ready.
type eventState struct {
	event      protectclient.Event
	state      State
	observedAt time.Time
}

// applyObservation folds a newly observed raw event into the state machine, returning
// the updated state and whether it just became ready to persist+emit.
// Transitions are idempotent (spec §4.4): re-observing an add for an Open
// event is a no-op; a close for an unknown event creates it directly in
// Closed.
func applyObservation(existing *eventState, observed protectclient.Event, now time.Time, maxEventLength time.Duration) (*eventState, bool) {
	if existing == nil {
		st := &eventState{event: observed, observedAt: now, state: Open}
		if observed.Closed {
			st.state = Closed
		}
		if st.state == Closed {
			return st, true
		}
		return st, false
	}

	merged := existing.event
	if observed.End != nil && (merged.End == nil || observed.End.After(*merged.End)) {
		merged.End = observed.End
	}
	if observed.Closed {
		merged.Closed = true
	}
	existing.event = merged

	if existing.state == Open && existing.event.Closed {
		existing.state = Closed
		return existing, true
	}
	if existing.state == Open && now.Sub(existing.observedAt) >= maxEventLength {
		end := existing.event.Start.Add(maxEventLength)
		existing.event.End = &end
		existing.event.Closed = true
		existing.state = TimedOut
		return existing, true
	}
	return existing, false
}

// checkTimeout is called periodically for events still Open to detect
// max_event_length elapsing without relying on a new observation arriving.
func checkTimeout(st *eventState, now time.Time, maxEventLength time.Duration) bool {
	if st.state != Open {
		return false
	}
	if now.Sub(st.observedAt) < maxEventLength {
		return false
	}
	end := st.event.Start.Add(maxEventLength)
	st.event.End = &end
	st.event.Closed = true
	st.state = TimedOut
	return true
}
