// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package recorder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecord_RingBufferWrapsAndListReturnsNewest(t *testing.T) {
	r := New(2)
	ctx := context.Background()
	r.Record(ctx, Event{Type: EventTypeBackupWritten, Target: "a"})
	r.Record(ctx, Event{Type: EventTypeBackupWritten, Target: "b"})
	r.Record(ctx, Event{Type: EventTypeBackupWritten, Target: "c"})

	out := r.List(10, nil, nil)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].Target)
	require.Equal(t, "c", out[1].Target)
}

func TestSubscribe_ReceivesSubsequentEvents(t *testing.T) {
	r := New(10)
	ch, unsub := r.Subscribe()
	defer unsub()

	r.Record(context.Background(), Event{Type: EventTypeArchiveCreated, Target: "offsite"})

	select {
	case ev := <-ch:
		require.Equal(t, EventTypeArchiveCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscriber channel")
	}
}

func TestInitEventFile_RecordThenListReadsBackFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	r := New(10)
	require.NoError(t, r.InitEventFile(path, 1, 2))
	r.Record(context.Background(), Event{Type: EventTypeBackupWritten, Target: "nas", Message: "wrote clip"})
	r.Record(context.Background(), Event{Type: EventTypeArchiveFailed, Target: "offsite", Message: "dial timeout"})
	r.CloseEventFile()

	out := r.List(10, nil, nil)
	require.Len(t, out, 2)
	require.Equal(t, "nas", out[0].Target)
	require.Equal(t, "offsite", out[1].Target)
}

func TestReadEventFile_AppliesQueryAndLimitAcrossRotatedBackups(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "events.jsonl")

	writeJSONL(t, base+".2", Event{Type: EventTypeBackupWritten, Target: "nas", Message: "old"})
	writeJSONL(t, base+".1", Event{Type: EventTypeBackupWritten, Target: "nas", Message: "middle"})
	writeJSONL(t, base, Event{Type: EventTypeArchiveFailed, Target: "offsite", Message: "dial timeout"})

	all := ReadEventFile(base, 2, 10, nil, nil)
	require.Len(t, all, 3)
	require.Equal(t, "old", all[0].Message)
	require.Equal(t, "dial timeout", all[2].Message)

	filtered := ReadEventFile(base, 2, 10, []string{"offsite"}, nil)
	require.Len(t, filtered, 1)
	require.Equal(t, "offsite", filtered[0].Target)

	limited := ReadEventFile(base, 2, 1, nil, nil)
	require.Len(t, limited, 1)
	require.Equal(t, "dial timeout", limited[0].Message)
}

func writeJSONL(t *testing.T, path string, ev Event) {
	t.Helper()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(raw, '\n'), 0600))
}
