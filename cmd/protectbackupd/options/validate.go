// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package options

import (
	"context"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// validate checks every config section, mirroring the teacher's
// check*Config chain (one validator per section, first failure wins).
func (o *DaemonOption) validate() error {
	if err := o.checkUnifi(); err != nil {
		return errors.Wrap(err, "unifi")
	}
	if err := o.checkBackup(); err != nil {
		return errors.Wrap(err, "backup")
	}
	if err := o.checkArchive(); err != nil {
		return errors.Wrap(err, "archive")
	}
	if err := o.checkDatabase(); err != nil {
		return errors.Wrap(err, "database")
	}
	o.checkLogging()
	return nil
}

func (o *DaemonOption) checkLogging() {
	if o.Logging.MaxSizeMB <= 0 {
		o.Logging.MaxSizeMB = 100
	}
	if o.Logging.MaxAgeDays <= 0 {
		o.Logging.MaxAgeDays = 30
	}
	if o.Logging.MaxBackups <= 0 {
		o.Logging.MaxBackups = 10
	}
	if o.Logging.EventFile != "" {
		if o.Logging.EventFileMB <= 0 {
			o.Logging.EventFileMB = 1024
		}
		if o.Logging.EventFileBaks <= 0 {
			o.Logging.EventFileBaks = 5
		}
	}
}

func (o *DaemonOption) checkUnifi() error {
	if o.Unifi.Address == "" {
		return errors.New("address is required")
	}
	if o.Unifi.Port == 0 {
		o.Unifi.Port = 443
	}
	if o.Unifi.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

func (o *DaemonOption) checkBackup() error {
	var err error
	if o.Backup.retentionPeriod, err = ParseDuration(o.Backup.RetentionPeriod); err != nil {
		return errors.Wrap(err, "retention-period")
	}
	if o.Backup.pollInterval, err = ParseDuration(o.Backup.PollInterval); err != nil {
		return errors.Wrap(err, "poll-interval")
	}
	if o.Backup.maxEventLength, err = ParseDuration(o.Backup.MaxEventLength); err != nil {
		return errors.Wrap(err, "max-event-length")
	}
	if o.Backup.purgeInterval, err = ParseDuration(o.Backup.PurgeInterval); err != nil {
		return errors.Wrap(err, "purge-interval")
	}
	if o.Backup.FileStructureFormat == "" {
		return errors.New("file-structure-format is required")
	}
	if err := targets.ValidateTemplate(o.Backup.FileStructureFormat); err != nil {
		return errors.Wrap(err, "file-structure-format")
	}
	if o.Backup.ParallelUploads <= 0 {
		o.Backup.ParallelUploads = 4
	}
	if o.Backup.DownloadBufferSize <= 0 {
		o.Backup.DownloadBufferSize = 64 * 1024
	}
	if len(o.Backup.Remote) == 0 {
		return errors.New("at least one backup.remote target is required")
	}
	seen := make(map[string]bool)
	for _, rem := range o.Backup.Remote {
		if rem.Name == "" {
			return errors.New("backup.remote entries require a name")
		}
		if seen[rem.Name] {
			return errors.Errorf("duplicate backup.remote name %q", rem.Name)
		}
		seen[rem.Name] = true
		hasLocal, hasRemoteCopy := rem.Local != nil, rem.RemoteCopy != nil
		if hasLocal == hasRemoteCopy {
			return errors.Errorf("backup.remote %q must set exactly one of local or remote-copy", rem.Name)
		}
	}
	return nil
}

func (o *DaemonOption) checkArchive() error {
	if len(o.Archive.Remote) == 0 {
		return nil
	}
	var err error
	if o.Archive.archiveInterval, err = ParseDuration(o.Archive.ArchiveInterval); err != nil {
		return errors.Wrap(err, "archive-interval")
	}
	if o.Archive.retentionPeriod, err = ParseDuration(o.Archive.RetentionPeriod); err != nil {
		return errors.Wrap(err, "retention-period")
	}
	if o.Archive.FileStructureFormat == "" {
		o.Archive.FileStructureFormat = o.Backup.FileStructureFormat
	}
	if err := targets.ValidateTemplate(o.Archive.FileStructureFormat); err != nil {
		return errors.Wrap(err, "file-structure-format")
	}
	seen := make(map[string]bool)
	for _, rem := range o.Archive.Remote {
		if rem.Name == "" {
			return errors.New("archive.remote entries require a name")
		}
		if seen[rem.Name] {
			return errors.Errorf("duplicate archive.remote name %q", rem.Name)
		}
		seen[rem.Name] = true
		if rem.DedupRepo == nil {
			return errors.Errorf("archive.remote %q must set dedup-repo", rem.Name)
		}
		if rem.DedupRepo.Repo == "" {
			return errors.Errorf("archive.remote %q: dedup-repo.repo is required", rem.Name)
		}
	}
	return nil
}

func (o *DaemonOption) checkDatabase() error {
	if o.Database.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// Probe runs the `--validate` dependency probe (spec §6): config is already
// known-good by the time this runs (validate() succeeded during Parse), so
// this checks external reachability: (a) controller TCP reachability, (b)
// each configured external binary is on PATH. It does not open the catalog,
// check that backup directories are writable, run `archive-engine check`,
// or log in to the controller.
func (o *DaemonOption) Probe(ctx context.Context) error {
	addr := net.JoinHostPort(o.Unifi.Address, strconv.Itoa(o.Unifi.Port))
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial controller %s", addr)
	}
	conn.Close()

	for _, rem := range o.Backup.Remote {
		if rem.RemoteCopy != nil {
			if _, err := exec.LookPath("remote-copy"); err != nil {
				return errors.Wrap(err, "remote-copy binary not found on PATH")
			}
			break
		}
	}
	for _, rem := range o.Archive.Remote {
		if rem.DedupRepo != nil {
			if _, err := exec.LookPath("archive-engine"); err != nil {
				return errors.Wrap(err, "archive-engine binary not found on PATH")
			}
			break
		}
	}
	return nil
}
