// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package logger

import (
	"context"
)

// Verbose gates a log call on a verbosity level, mirroring the teacher's
// V(n) idiom. Only the InfoContextf surface this daemon calls (curl-repro
// debug logging) is implemented.
type Verbose struct {
	level int
}

func V(level int) Verbose {
	return Verbose{
		level: level,
	}
}

func (v Verbose) InfoContextf(ctx context.Context, format string, args ...interface{}) {
	if v.level > maxLevel {
		return
	}
	InfoContextf(ctx, format, args...)
}
