// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package utils

import (
	"unsafe"
)

// BytesToString converts b to a string without copying. b must not be
// mutated after the call.
func BytesToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}
