// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package lock

import (
	"context"
	"sync"

	"github.com/kestrelcove/protectbackup/pkg/logger"
)

// keyedMutex is a local lock keyed by string. Entries are never removed, so
// it is meant for a bounded key space (event IDs in flight, target names).
type keyedMutex struct {
	mutexes *sync.Map
}

// NewLocalLock creates a new keyed mutex.
func NewLocalLock() Interface {
	return &keyedMutex{
		mutexes: &sync.Map{},
	}
}

// Lock locks the given key, creating its mutex on first use.
func (m *keyedMutex) Lock(_ context.Context, key string) {
	value, _ := m.mutexes.LoadOrStore(key, &sync.Mutex{})
	mtx := value.(*sync.Mutex)
	mtx.Lock()
}

// UnLock unlocks the given key.
func (m *keyedMutex) UnLock(_ context.Context, key string) {
	value, _ := m.mutexes.Load(key)
	if value == nil {
		logger.Warnf("local unlock %q is empty", key)
		return
	}
	mtx := value.(*sync.Mutex)
	mtx.Unlock()
}
