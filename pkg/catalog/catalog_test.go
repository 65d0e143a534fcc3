// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpsertEvent_CreateThenUpdate(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	start := time.Unix(1000, 0).UTC()

	res, err := c.UpsertEvent(ctx, Event{
		ID: "e1", DetectionType: "motion", CameraID: "cam1",
		StartTime: start, ObservedAt: start,
	})
	require.NoError(t, err)
	require.Equal(t, Created, res)

	end := time.Unix(1005, 0).UTC()
	res, err = c.UpsertEvent(ctx, Event{
		ID: "e1", DetectionType: "motion", CameraID: "cam1",
		StartTime: start, EndTime: &end, ObservedAt: start,
	})
	require.NoError(t, err)
	require.Equal(t, Updated, res)

	events, err := c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "e1", events[0].ID)
	require.NotNil(t, events[0].EndTime)
	require.Equal(t, end.Unix(), events[0].EndTime.Unix())
}

func TestUpsertEvent_EndTimeNeverDecreases(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	start := time.Unix(1000, 0).UTC()
	laterEnd := time.Unix(2000, 0).UTC()
	earlierEnd := time.Unix(1500, 0).UTC()

	_, err := c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: start, EndTime: &laterEnd, ObservedAt: start})
	require.NoError(t, err)
	_, err = c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: start, EndTime: &earlierEnd, ObservedAt: start})
	require.NoError(t, err)

	events, err := c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, laterEnd.Unix(), events[0].EndTime.Unix())
}

func TestUpsertEvent_StartTimeNeverOverwritten(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	start := time.Unix(1000, 0).UTC()
	otherStart := time.Unix(5000, 0).UTC()

	_, err := c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: start, ObservedAt: start})
	require.NoError(t, err)
	_, err = c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: otherStart, ObservedAt: otherStart})
	require.NoError(t, err)

	events, err := c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Len(t, events, 0) // not closed yet, so not unbacked-eligible

	end := time.Unix(6000, 0).UTC()
	_, err = c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: otherStart, EndTime: &end, ObservedAt: otherStart})
	require.NoError(t, err)

	events, err = c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, start.Unix(), events[0].StartTime.Unix())
}

func TestListUnbacked_OrderingAndTieBreak(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	end := time.Unix(9999, 0).UTC()

	for _, id := range []string{"b", "a"} {
		_, err := c.UpsertEvent(ctx, Event{ID: id, CameraID: "cam1", StartTime: time.Unix(100, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(100, 0).UTC()})
		require.NoError(t, err)
	}
	_, err := c.UpsertEvent(ctx, Event{ID: "c", CameraID: "cam1", StartTime: time.Unix(50, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(50, 0).UTC()})
	require.NoError(t, err)

	events, err := c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, []string{"c", "a", "b"}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestRecordBackupAndListUnbackedExcludesBacked(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	end := time.Unix(2000, 0).UTC()
	_, err := c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: time.Unix(1000, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(1000, 0).UTC()})
	require.NoError(t, err)

	err = c.RecordBackup(ctx, BackupRecord{EventID: "e1", TargetName: "local", RemotePath: "/b/e1.mp4", SizeBytes: 10, BackupTime: time.Now()})
	require.NoError(t, err)

	events, err := c.ListUnbacked(ctx, "local", 10)
	require.NoError(t, err)
	require.Empty(t, events)

	events, err = c.ListUnbacked(ctx, "remote", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	// idempotent re-record
	err = c.RecordBackup(ctx, BackupRecord{EventID: "e1", TargetName: "local", RemotePath: "/b/e1.mp4", SizeBytes: 10, BackupTime: time.Now()})
	require.NoError(t, err)
}

func TestPruneEventsOlderThan_RespectsSurvivingBackups(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	end := time.Unix(100, 0).UTC()

	_, err := c.UpsertEvent(ctx, Event{ID: "old-with-backup", CameraID: "cam1", StartTime: time.Unix(10, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(10, 0).UTC()})
	require.NoError(t, err)
	_, err = c.UpsertEvent(ctx, Event{ID: "old-no-backup", CameraID: "cam1", StartTime: time.Unix(10, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(10, 0).UTC()})
	require.NoError(t, err)

	require.NoError(t, c.RecordBackup(ctx, BackupRecord{EventID: "old-with-backup", TargetName: "local", RemotePath: "x", BackupTime: time.Now()}))

	cutoff := time.Unix(50, 0).UTC()
	n, err := c.PruneEventsOlderThan(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	total, _, _, err := c.CountEventsByState(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestDeleteBackupThenPruneCascades(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	end := time.Unix(100, 0).UTC()
	_, err := c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: time.Unix(10, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(10, 0).UTC()})
	require.NoError(t, err)
	require.NoError(t, c.RecordBackup(ctx, BackupRecord{EventID: "e1", TargetName: "local", RemotePath: "x", BackupTime: time.Now()}))

	require.NoError(t, c.DeleteBackup(ctx, "e1", "local"))

	n, err := c.PruneEventsOlderThan(ctx, time.Unix(50, 0).UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestListBackupsInWindow(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	end := time.Unix(500, 0).UTC()
	_, err := c.UpsertEvent(ctx, Event{ID: "e1", CameraID: "cam1", StartTime: time.Unix(100, 0).UTC(), EndTime: &end, ObservedAt: time.Unix(100, 0).UTC()})
	require.NoError(t, err)
	require.NoError(t, c.RecordBackup(ctx, BackupRecord{EventID: "e1", TargetName: "local", RemotePath: "x", BackupTime: time.Now()}))

	in, err := c.ListBackupsInWindow(ctx, "local", time.Unix(0, 0).UTC(), time.Unix(200, 0).UTC())
	require.NoError(t, err)
	require.Len(t, in, 1)

	out, err := c.ListBackupsInWindow(ctx, "local", time.Unix(200, 0).UTC(), time.Unix(300, 0).UTC())
	require.NoError(t, err)
	require.Empty(t, out)
}
