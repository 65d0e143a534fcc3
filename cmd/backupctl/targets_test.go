// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBacklogLabel(t *testing.T) {
	require.Equal(t, "0", backlogLabel(0))
	require.Equal(t, "42", backlogLabel(42))
	require.Equal(t, "5000+", backlogLabel(backlogSampleLimit))
}
