// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package options

import "time"

// DaemonOption is the top-level, TOML-decoded configuration for
// protectbackupd (spec §6).
type DaemonOption struct {
	Unifi    UnifiConfig    `toml:"unifi"`
	Backup   BackupConfig   `toml:"backup"`
	Archive  ArchiveConfig  `toml:"archive"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// LoggingConfig configures both the structured log sink and the recorder's
// event file, read by both protectbackupd and backupctl.
type LoggingConfig struct {
	Filename      string `toml:"filename"`
	MaxSizeMB     int    `toml:"max-size-mb"`
	MaxAgeDays    int    `toml:"max-age-days"`
	MaxBackups    int    `toml:"max-backups"`
	EventFile     string `toml:"event-file"`
	EventFileMB   int    `toml:"event-file-max-size-mb"`
	EventFileBaks int    `toml:"event-file-max-backups"`
}

// UnifiConfig describes how to reach the controller.
type UnifiConfig struct {
	Address   string `toml:"address"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	VerifySSL bool   `toml:"verify-ssl"`
}

// BackupConfig configures the ingestor and backup pipeline.
type BackupConfig struct {
	RetentionPeriod     string         `toml:"retention-period"`
	PollInterval        string         `toml:"poll-interval"`
	MaxEventLength      string         `toml:"max-event-length"`
	PurgeInterval       string         `toml:"purge-interval"`
	FileStructureFormat string         `toml:"file-structure-format"`
	DetectionTypes      []string       `toml:"detection-types"`
	IgnoreCameras       []string       `toml:"ignore-cameras"`
	Cameras             []string       `toml:"cameras"`
	DownloadBufferSize  int            `toml:"download-buffer-size"`
	ParallelUploads     int            `toml:"parallel-uploads"`
	SkipMissing         bool           `toml:"skip-missing"`
	Remote              []BackupRemote `toml:"remote"`

	// parsed durations, filled in by parse.go after TOML decode.
	retentionPeriod time.Duration
	pollInterval    time.Duration
	maxEventLength  time.Duration
	purgeInterval   time.Duration
}

// RetentionPeriodDuration returns the parsed retention-period.
func (b BackupConfig) RetentionPeriodDuration() time.Duration { return b.retentionPeriod }

// PollIntervalDuration returns the parsed poll-interval.
func (b BackupConfig) PollIntervalDuration() time.Duration { return b.pollInterval }

// MaxEventLengthDuration returns the parsed max-event-length.
func (b BackupConfig) MaxEventLengthDuration() time.Duration { return b.maxEventLength }

// PurgeIntervalDuration returns the parsed purge-interval.
func (b BackupConfig) PurgeIntervalDuration() time.Duration { return b.purgeInterval }

// BackupRemote is one inline table from backup.remote: exactly one of Local
// or RemoteCopy is set (spec §6).
type BackupRemote struct {
	Name       string            `toml:"name"`
	Local      *LocalRemote      `toml:"local"`
	RemoteCopy *RemoteCopyRemote `toml:"remote-copy"`
}

// LocalRemote configures a Local backup target.
type LocalRemote struct {
	Path string `toml:"path"`
}

// RemoteCopyRemote configures a RemoteCopy backup target.
type RemoteCopyRemote struct {
	Remote     string `toml:"remote"`
	Path       string `toml:"path"`
	ConfigFile string `toml:"config-file"`
}

// ArchiveConfig configures the archive scheduler.
type ArchiveConfig struct {
	ArchiveInterval     string          `toml:"archive-interval"`
	RetentionPeriod     string          `toml:"retention-period"`
	PurgeInterval       string          `toml:"purge-interval"`
	FileStructureFormat string          `toml:"file-structure-format"`
	Remote              []ArchiveRemote `toml:"remote"`

	archiveInterval time.Duration
	retentionPeriod time.Duration
}

// ArchiveIntervalDuration returns the parsed archive-interval.
func (a ArchiveConfig) ArchiveIntervalDuration() time.Duration { return a.archiveInterval }

// RetentionPeriodDuration returns the parsed retention-period.
func (a ArchiveConfig) RetentionPeriodDuration() time.Duration { return a.retentionPeriod }

// ArchiveRemote is one inline table from archive.remote.
type ArchiveRemote struct {
	Name      string           `toml:"name"`
	DedupRepo *DedupRepoRemote `toml:"dedup-repo"`
}

// DedupRepoRemote configures a DedupRepo archive target.
type DedupRepoRemote struct {
	Repo       string `toml:"repo"`
	Passphrase string `toml:"passphrase"`
	SSHKeyPath string `toml:"ssh-key-path"`
}

// DatabaseConfig configures the catalog.
type DatabaseConfig struct {
	Path string `toml:"path"`
}
