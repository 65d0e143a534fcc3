// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package options

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validOption() *DaemonOption {
	return &DaemonOption{
		Unifi: UnifiConfig{Address: "10.0.0.1", Username: "admin", Password: "env:TEST_PW"},
		Backup: BackupConfig{
			RetentionPeriod:     "7d",
			PollInterval:        "30s",
			MaxEventLength:      "10m",
			PurgeInterval:       "1h",
			FileStructureFormat: "{camera_name}/{date}/{time}.mp4",
			Remote:              []BackupRemote{{Name: "nas", Local: &LocalRemote{Path: "/b"}}},
		},
		Database: DatabaseConfig{Path: "/var/lib/protectbackup.db"},
	}
}

func TestValidate_Success(t *testing.T) {
	o := validOption()
	require.NoError(t, o.validate())
	require.Equal(t, 443, o.Unifi.Port)
	require.Equal(t, 4, o.Backup.ParallelUploads)
	require.Equal(t, 100, o.Logging.MaxSizeMB)
	require.Equal(t, 0, o.Logging.EventFileMB, "event file defaults only apply when event-file is set")
}

func TestValidate_LoggingEventFileDefaults(t *testing.T) {
	o := validOption()
	o.Logging.EventFile = "/var/log/protectbackup/events.jsonl"
	require.NoError(t, o.validate())
	require.Equal(t, 1024, o.Logging.EventFileMB)
	require.Equal(t, 5, o.Logging.EventFileBaks)
}

func TestValidate_BackupRemoteMustSetExactlyOne(t *testing.T) {
	o := validOption()
	o.Backup.Remote[0].RemoteCopy = &RemoteCopyRemote{Remote: "r", Path: "/x"}
	require.Error(t, o.validate())
}

func TestValidate_DuplicateBackupRemoteName(t *testing.T) {
	o := validOption()
	o.Backup.Remote = append(o.Backup.Remote, BackupRemote{Name: "nas", Local: &LocalRemote{Path: "/c"}})
	require.Error(t, o.validate())
}

func TestValidate_ArchiveOptionalWhenNoRemotes(t *testing.T) {
	o := validOption()
	require.NoError(t, o.validate())
}

func TestValidate_ArchiveRemoteRequiresDedupRepo(t *testing.T) {
	o := validOption()
	o.Archive.ArchiveInterval = "1d"
	o.Archive.RetentionPeriod = "30d"
	o.Archive.Remote = []ArchiveRemote{{Name: "offsite"}}
	require.Error(t, o.validate())
}

func TestValidate_ArchiveRemoteValid(t *testing.T) {
	o := validOption()
	o.Archive.ArchiveInterval = "1d"
	o.Archive.RetentionPeriod = "30d"
	o.Archive.Remote = []ArchiveRemote{{Name: "offsite", DedupRepo: &DedupRepoRemote{Repo: "/repo"}}}
	require.NoError(t, o.validate())
}
