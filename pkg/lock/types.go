// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package lock provides a keyed mutex used to serialize work per event ID
// and per target name without a global lock.
package lock

import (
	"context"
)

// Interface defines a keyed mutex.
type Interface interface {
	Lock(ctx context.Context, key string)
	UnLock(ctx context.Context, key string)
}
