// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package targets

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
)

// Local is the C2 Local backup target variant: writes clips under a root
// directory using a configured path template.
type Local struct {
	name       string
	root       string
	pathFormat string
}

// NewLocal constructs a Local backup target. pathFormat must already have
// passed ValidateTemplate.
func NewLocal(name, root, pathFormat string) *Local {
	return &Local{name: name, root: root, pathFormat: pathFormat}
}

func (l *Local) Name() string { return l.name }

// Write stores clip at a deterministic path derived from ev and the
// configured template. Idempotent: if a same-size file already exists at
// the target path, the write is skipped (spec §4.2 "implementer's choice").
// Otherwise it writes to a sibling temp file and atomically renames it into
// place so a crash never leaves a partial file under the final name.
func (l *Local) Write(ctx context.Context, ev catalog.Event, clip []byte) (string, int64, error) {
	rel, err := RenderPath(l.pathFormat, ev)
	if err != nil {
		return "", 0, errors.Wrap(err, "render local path template")
	}
	full := filepath.Join(l.root, rel)

	if fi, err := os.Stat(full); err == nil && fi.Size() == int64(len(clip)) {
		return full, fi.Size(), nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return "", 0, errors.Wrapf(err, "create directory for %s", full)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "ufp-*.tmp")
	if err != nil {
		return "", 0, errors.Wrap(err, "create staging temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(clip); err != nil {
		tmp.Close()
		return "", 0, errors.Wrapf(err, "write clip bytes to %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errors.Wrapf(err, "close staging file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		return "", 0, errors.Wrapf(err, "rename %s to %s", tmpPath, full)
	}
	return full, int64(len(clip)), nil
}

// Exists reports whether remotePath is still present on local disk.
func (l *Local) Exists(ctx context.Context, remotePath string) (bool, error) {
	if _, err := os.Stat(remotePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", remotePath)
	}
	return true, nil
}

// Prune removes files under root whose mtime is older than cutoff.
func (l *Local) Prune(ctx context.Context, cutoff time.Time) error {
	return filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "prune %s", path)
			}
		}
		return nil
	})
}
