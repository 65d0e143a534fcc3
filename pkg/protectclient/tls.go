// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package protectclient

import "crypto/tls"

// insecureTLSConfig skips certificate verification, for controllers on a
// self-signed local certificate (unifi.verify-ssl = false, spec §6).
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} // nolint:gosec
}
