// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package targets

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/secrets"
)

// DedupRepo is the C3 archive target variant: wraps an external
// deduplicating/encrypting archiver (`archive-engine`). Passphrase and
// identity key are sealed handles, never placed on argv (spec §9); they are
// passed via environment variables to the subprocess.
type DedupRepo struct {
	name       string
	repo       string
	passphrase secrets.Sealed
	sshKeyPath string
	timeout    time.Duration
}

// NewDedupRepo constructs a DedupRepo archive target. timeout bounds each
// archive-engine invocation (spec §5: 2x archive-interval).
func NewDedupRepo(name, repo string, passphrase secrets.Sealed, sshKeyPath string, timeout time.Duration) *DedupRepo {
	return &DedupRepo{name: name, repo: repo, passphrase: passphrase, sshKeyPath: sshKeyPath, timeout: timeout}
}

func (d *DedupRepo) Name() string { return d.name }

// Archive creates a snapshot of stagingDir under label. All-or-nothing from
// the caller's perspective: a non-zero exit means no snapshot was created.
func (d *DedupRepo) Archive(ctx context.Context, stagingDir, label string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.run(ctx, "create", "--repo", d.repo, "--label", label, stagingDir)
	if err != nil {
		return "", errors.Wrapf(err, "archive-engine create (label %s)", label)
	}
	archiveID := strings.TrimSpace(out)
	if archiveID == "" {
		archiveID = label + "-" + uuid.NewString()
	}
	return archiveID, nil
}

// Prune invokes the archiver's retention command with a keep-within policy
// derived from retention.
func (d *DedupRepo) Prune(ctx context.Context, retention time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	keepWithin := fmt.Sprintf("%dh", int(retention.Hours()))
	_, err := d.run(ctx, "prune", "--repo", d.repo, "--keep-within", keepWithin)
	return errors.Wrap(err, "archive-engine prune")
}

// Check probes that the repository is reachable.
func (d *DedupRepo) Check(ctx context.Context) error {
	_, err := d.run(ctx, "check", "--repo", d.repo)
	return errors.Wrap(err, "archive-engine check")
}

func (d *DedupRepo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "archive-engine", args...)
	cmd.Env = append(cmd.Environ(), "ARCHIVE_ENGINE_PASSPHRASE="+d.passphrase.Value())
	if d.sshKeyPath != "" {
		cmd.Env = append(cmd.Env, "ARCHIVE_ENGINE_SSH_KEY="+d.sshKeyPath)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Errorf("archive-engine %v failed: %s (exit %s)", args, stderr.String(), exitCode(err))
	}
	return stdout.String(), nil
}

func exitCode(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return strconv.Itoa(exitErr.ExitCode())
	}
	return err.Error()
}
