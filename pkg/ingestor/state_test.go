// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package ingestor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelcove/protectbackup/pkg/protectclient"
)

func TestApplyObservation_AddThenClose(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	start := now

	st, ready := applyObservation(nil, protectclient.Event{EventID: "e1", Start: start}, now, time.Hour)
	require.False(t, ready)
	require.Equal(t, Open, st.state)

	end := now.Add(5 * time.Second)
	st, ready = applyObservation(st, protectclient.Event{EventID: "e1", Start: start, End: &end, Closed: true}, now.Add(5*time.Second), time.Hour)
	require.True(t, ready)
	require.Equal(t, Closed, st.state)
	require.NotNil(t, st.event.End)
	require.Equal(t, end, *st.event.End)
}

func TestApplyObservation_CloseForUnknownCreatesClosedDirectly(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	end := now.Add(time.Second)
	st, ready := applyObservation(nil, protectclient.Event{EventID: "e1", Start: now, End: &end, Closed: true}, now, time.Hour)
	require.True(t, ready)
	require.Equal(t, Closed, st.state)
}

func TestApplyObservation_ReAddIsNoOp(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	st, ready := applyObservation(nil, protectclient.Event{EventID: "e1", Start: now}, now, time.Hour)
	require.False(t, ready)

	st2, ready2 := applyObservation(st, protectclient.Event{EventID: "e1", Start: now}, now.Add(time.Second), time.Hour)
	require.False(t, ready2)
	require.Equal(t, Open, st2.state)
}

func TestCheckTimeout_TimesOutAfterMaxEventLength(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	st, _ := applyObservation(nil, protectclient.Event{EventID: "e1", Start: now}, now, time.Minute)

	timedOut := checkTimeout(st, now.Add(30*time.Second), time.Minute)
	require.False(t, timedOut)
	require.Equal(t, Open, st.state)

	timedOut = checkTimeout(st, now.Add(61*time.Second), time.Minute)
	require.True(t, timedOut)
	require.Equal(t, TimedOut, st.state)
	require.NotNil(t, st.event.End)
	require.Equal(t, now.Add(time.Minute), *st.event.End)
}

func TestApplyObservation_EndTimeMonotonicWhileStillOpen(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	later := now.Add(10 * time.Second)
	earlier := now.Add(2 * time.Second)

	st, ready := applyObservation(nil, protectclient.Event{EventID: "e1", Start: now}, now, time.Hour)
	require.False(t, ready)

	// A mid-flight "update" observation (no Closed flag) only stretches End,
	// it never flips the state to Closed on its own.
	st, ready = applyObservation(st, protectclient.Event{EventID: "e1", Start: now, End: &later}, now, time.Hour)
	require.False(t, ready)
	require.Equal(t, Open, st.state)
	require.Equal(t, later, *st.event.End)

	st, ready = applyObservation(st, protectclient.Event{EventID: "e1", Start: now, End: &earlier}, now, time.Hour)
	require.False(t, ready)
	require.Equal(t, later, *st.event.End) // end_time never decreases
}
