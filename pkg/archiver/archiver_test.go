// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package archiver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

func TestEverySpec(t *testing.T) {
	require.Equal(t, "0 0 * * *", everySpec(24*time.Hour))
	require.Equal(t, "0 0 * * *", everySpec(7*24*time.Hour))
	require.Equal(t, "@every 1h0m0s", everySpec(time.Hour))
}

type fakeBackupTarget struct{ name string }

func (f fakeBackupTarget) Name() string { return f.name }
func (f fakeBackupTarget) Write(ctx context.Context, ev catalog.Event, clip []byte) (string, int64, error) {
	return "", 0, nil
}
func (f fakeBackupTarget) Prune(ctx context.Context, cutoff time.Time) error { return nil }
func (f fakeBackupTarget) Exists(ctx context.Context, remotePath string) (bool, error) {
	return true, nil
}

var _ targets.BackupTarget = fakeBackupTarget{}

func TestArchiver_SourceTarget_FallsBackThroughOrder(t *testing.T) {
	a := New(nil, []targets.BackupTarget{fakeBackupTarget{name: "nas"}, fakeBackupTarget{name: "s3"}}, nil, Config{
		SourceTargetOrder: []string{"missing", "s3", "nas"},
	})
	src, err := a.sourceTarget()
	require.NoError(t, err)
	require.Equal(t, "s3", src.Name())
}

func TestArchiver_SourceTarget_ErrorsWhenNoneConfigured(t *testing.T) {
	a := New(nil, nil, nil, Config{SourceTargetOrder: []string{"nas"}})
	_, err := a.sourceTarget()
	require.Error(t, err)
}
