// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package targets

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/logger"
)

// RemoteCopy is the C2 RemoteCopy backup target variant: invokes the
// external `remote-copy` binary to transfer a staging file to a named
// remote. Argv only, no shell (spec §6).
type RemoteCopy struct {
	name       string
	remote     string
	remotePath string
	configFile string
	pathFormat string
}

// NewRemoteCopy constructs a RemoteCopy backup target. remote is the
// external tool's remote spec, remotePath the destination root on that
// remote, configFile an optional config passed to the tool.
func NewRemoteCopy(name, remote, remotePath, configFile, pathFormat string) *RemoteCopy {
	return &RemoteCopy{name: name, remote: remote, remotePath: remotePath, configFile: configFile, pathFormat: pathFormat}
}

func (r *RemoteCopy) Name() string { return r.name }

// Write stages clip to a local temp file, then invokes
// `remote-copy copy <tmp> <remote>:<remotePath>/<rel>` (argv only).
// Idempotent by deterministic destination path: re-invoking the same write
// overwrites the remote file with identical content.
func (r *RemoteCopy) Write(ctx context.Context, ev catalog.Event, clip []byte) (string, int64, error) {
	rel, err := RenderPath(r.pathFormat, ev)
	if err != nil {
		return "", 0, errors.Wrap(err, "render remote-copy path template")
	}
	dest := filepath.ToSlash(filepath.Join(r.remotePath, rel))

	tmp, err := os.CreateTemp("", "ufp-*.tmp")
	if err != nil {
		return "", 0, errors.Wrap(err, "create staging temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(clip); err != nil {
		tmp.Close()
		return "", 0, errors.Wrapf(err, "write clip bytes to %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, errors.Wrapf(err, "close staging file %s", tmpPath)
	}

	args := []string{"copy", tmpPath, r.remote + ":" + dest}
	if r.configFile != "" {
		args = append(args, "--config", r.configFile)
	}
	if err := r.run(ctx, args...); err != nil {
		return "", 0, err
	}
	return r.remote + ":" + dest, int64(len(clip)), nil
}

// Prune is a local no-op: spec §4.2 only specifies a local mtime-based
// prune contract; RemoteCopy's retention is left to the external tool,
// which is authoritative over its own remote.
func (r *RemoteCopy) Prune(ctx context.Context, cutoff time.Time) error {
	logger.InfoContextf(ctx, "remote-copy target %s: prune delegated to remote tool, no local action", r.name)
	return nil
}

// Exists reports whether remotePath is still present on the remote.
// remote-copy's argv contract (spec §6) exposes only a copy subcommand, no
// query verb, so this cannot probe the remote directly; it conservatively
// assumes presence, deferring detection of drift to the remote tool's own
// bookkeeping. A future revision adding a `check` verb to remote-copy is
// the natural place to make this precise.
func (r *RemoteCopy) Exists(ctx context.Context, remotePath string) (bool, error) {
	return true, nil
}

func (r *RemoteCopy) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "remote-copy", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "remote-copy %v failed: %s", args, stderr.String())
	}
	return nil
}
