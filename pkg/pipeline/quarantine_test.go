// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuarantine_ThresholdTriggersQuarantine(t *testing.T) {
	q := newQuarantine(time.Minute, 3)
	now := time.Unix(1000, 0)

	q.RecordFailure("nas", now)
	require.False(t, q.Quarantined("nas", now))
	q.RecordFailure("nas", now)
	require.False(t, q.Quarantined("nas", now))
	q.RecordFailure("nas", now)
	require.True(t, q.Quarantined("nas", now))

	require.False(t, q.Quarantined("nas", now.Add(2*time.Minute)))
}

func TestQuarantine_SuccessClearsStreak(t *testing.T) {
	q := newQuarantine(time.Minute, 2)
	now := time.Unix(1000, 0)

	q.RecordFailure("nas", now)
	q.RecordSuccess("nas")
	q.RecordFailure("nas", now)
	require.False(t, q.Quarantined("nas", now))
}

func TestQuarantine_OtherTargetsUnaffected(t *testing.T) {
	q := newQuarantine(time.Minute, 1)
	now := time.Unix(1000, 0)

	q.RecordFailure("nas", now)
	require.True(t, q.Quarantined("nas", now))
	require.False(t, q.Quarantined("s3", now))
}
