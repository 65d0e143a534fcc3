// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package targets

import (
	"context"
	"time"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
)

// BackupTarget is the common contract for C2 variants (spec §4.2).
type BackupTarget interface {
	// Name returns the target's stable, configured name.
	Name() string
	// Write stores ev's clip bytes and returns the remote path and size.
	// Idempotent: the path is a pure function of (event, configured template).
	Write(ctx context.Context, ev catalog.Event, clip []byte) (remotePath string, sizeBytes int64, err error)
	// Prune removes clips older than cutoff by the target's own criterion:
	// Local compares file mtime, RemoteCopy takes no action.
	Prune(ctx context.Context, cutoff time.Time) error
	// Exists reports whether remotePath (as returned by a prior Write) is
	// still present on this target's storage, for data-integrity checks and
	// for deciding which backup rows retention may delete.
	Exists(ctx context.Context, remotePath string) (bool, error)
}

// ArchiveTarget is the common contract for C3 variants (spec §4.3).
type ArchiveTarget interface {
	Name() string
	// Archive creates a snapshot of stagingDir under a label, returning an archive_id.
	Archive(ctx context.Context, stagingDir, label string) (archiveID string, err error)
	// Prune invokes the archiver's retention policy (keep-within window).
	Prune(ctx context.Context, retention time.Duration) error
	// Check probes that the archive-engine and repository are reachable.
	// The --validate dependency probe does not call it.
	Check(ctx context.Context) error
}
