// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/cmd/protectbackupd/options"
	"github.com/kestrelcove/protectbackup/pkg/archiver"
	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/daemon"
	"github.com/kestrelcove/protectbackup/pkg/ingestor"
	"github.com/kestrelcove/protectbackup/pkg/pipeline"
	"github.com/kestrelcove/protectbackup/pkg/protectclient"
	"github.com/kestrelcove/protectbackup/pkg/secrets"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// build turns parsed options into a daemon.Daemon (not yet initialized or
// running) plus the opened catalog: opens the catalog, constructs the
// controller client, instantiates every configured backup/archive target,
// and assembles the per-component configs.
func build(op *options.DaemonOption, rs *options.ResolvedSecrets) (*daemon.Daemon, *catalog.Catalog, error) {
	cat, err := catalog.Open(op.Database.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open catalog")
	}

	client := protectclient.New(protectclient.Config{
		Address:   op.Unifi.Address,
		Port:      op.Unifi.Port,
		Username:  op.Unifi.Username,
		Password:  rs.UnifiPassword,
		VerifySSL: op.Unifi.VerifySSL,
	})

	backupTargets, err := buildBackupTargets(op)
	if err != nil {
		cat.Close()
		return nil, nil, err
	}
	archiveTargets, err := buildArchiveTargets(op, rs)
	if err != nil {
		cat.Close()
		return nil, nil, err
	}

	sourceOrder := make([]string, 0, len(op.Backup.Remote))
	for _, rem := range op.Backup.Remote {
		sourceOrder = append(sourceOrder, rem.Name)
	}

	detectionTypes := toSet(op.Backup.DetectionTypes)
	ignoreCameras := toSet(op.Backup.IgnoreCameras)
	cameras := toSet(op.Backup.Cameras)

	d := daemon.New(daemon.Config{
		Client:         client,
		Catalog:        cat,
		BackupTargets:  backupTargets,
		ArchiveTargets: archiveTargets,
		IngestorConfig: ingestor.Config{
			PollInterval:   op.Backup.PollIntervalDuration(),
			MaxEventLength: op.Backup.MaxEventLengthDuration(),
			Filter: ingestor.Filter{
				DetectionTypes: detectionTypes,
				IgnoreCameras:  ignoreCameras,
				Cameras:        cameras,
			},
		},
		PipelineConfig: pipeline.Config{
			ParallelUploads:    op.Backup.ParallelUploads,
			PurgeInterval:      op.Backup.PurgeIntervalDuration(),
			RetentionPeriod:    op.Backup.RetentionPeriodDuration(),
			PollInterval:       op.Backup.PollIntervalDuration(),
			SkipMissing:        op.Backup.SkipMissing,
			DownloadBufferSize: op.Backup.DownloadBufferSize,
		},
		ArchiverConfig: archiver.Config{
			ArchiveInterval:   op.Archive.ArchiveIntervalDuration(),
			RetentionPeriod:   op.Archive.RetentionPeriodDuration(),
			PathFormat:        op.Archive.FileStructureFormat,
			SourceTargetOrder: sourceOrder,
		},
		EventFile:      op.Logging.EventFile,
		EventFileMaxMB: op.Logging.EventFileMB,
		EventFileBacks: op.Logging.EventFileBaks,
	})
	return d, cat, nil
}

func buildBackupTargets(op *options.DaemonOption) ([]targets.BackupTarget, error) {
	if err := targets.ValidateTemplate(op.Backup.FileStructureFormat); err != nil {
		return nil, errors.Wrap(err, "backup.file-structure-format")
	}
	out := make([]targets.BackupTarget, 0, len(op.Backup.Remote))
	for _, rem := range op.Backup.Remote {
		switch {
		case rem.Local != nil:
			out = append(out, targets.NewLocal(rem.Name, rem.Local.Path, op.Backup.FileStructureFormat))
		case rem.RemoteCopy != nil:
			out = append(out, targets.NewRemoteCopy(rem.Name, rem.RemoteCopy.Remote, rem.RemoteCopy.Path,
				rem.RemoteCopy.ConfigFile, op.Backup.FileStructureFormat))
		}
	}
	return out, nil
}

func buildArchiveTargets(op *options.DaemonOption, rs *options.ResolvedSecrets) ([]targets.ArchiveTarget, error) {
	out := make([]targets.ArchiveTarget, 0, len(op.Archive.Remote))
	for _, rem := range op.Archive.Remote {
		if rem.DedupRepo == nil {
			continue
		}
		passphrase := rs.DedupPassphrases[rem.Name]
		var sshKey secrets.Sealed
		if rem.DedupRepo.SSHKeyPath != "" {
			var err error
			sshKey, err = secrets.Resolve(rem.DedupRepo.SSHKeyPath)
			if err != nil {
				return nil, errors.Wrapf(err, "archive.remote[%s].dedup-repo.ssh-key-path", rem.Name)
			}
		}
		timeout := 2 * op.Archive.ArchiveIntervalDuration()
		out = append(out, targets.NewDedupRepo(rem.Name, rem.DedupRepo.Repo, passphrase, sshKey.Value(), timeout))
	}
	return out, nil
}

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}
