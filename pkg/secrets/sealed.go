// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package secrets resolves sealed configuration values (spec §6 "sealed-handle
// prefixes") once at startup and keeps them out of logs and process argv.
package secrets

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Sealed holds a resolved secret value. It deliberately does not implement
// fmt.Stringer with the real value, and MarshalJSON redacts it, so a stray
// %v/%s or accidental log/JSON encode never leaks the value.
type Sealed struct {
	value string
}

// String always returns a redaction marker, never the secret.
func (s Sealed) String() string {
	if s.value == "" {
		return ""
	}
	return "***"
}

// MarshalJSON redacts the value.
func (s Sealed) MarshalJSON() ([]byte, error) {
	return []byte(`"***"`), nil
}

// Value returns the resolved secret. Callers must not log or print it.
func (s Sealed) Value() string {
	return s.value
}

// Empty reports whether no value was configured.
func (s Sealed) Empty() bool {
	return s.value == ""
}

const (
	envPrefix  = "env:"
	filePrefix = "file:"
)

// Resolve resolves a raw config value per spec §6: `env:NAME` reads from the
// environment, `file:/path` reads from a file (trailing newline trimmed).
// Any other value is used verbatim (still wrapped as Sealed, since any
// config string may carry credentials).
func Resolve(raw string) (Sealed, error) {
	switch {
	case strings.HasPrefix(raw, envPrefix):
		name := strings.TrimPrefix(raw, envPrefix)
		val, ok := os.LookupEnv(name)
		if !ok {
			return Sealed{}, errors.Errorf("sealed handle %q: environment variable %s is not set", raw, name)
		}
		return Sealed{value: val}, nil
	case strings.HasPrefix(raw, filePrefix):
		path := strings.TrimPrefix(raw, filePrefix)
		return resolveFile(path)
	default:
		return Sealed{value: raw}, nil
	}
}

func resolveFile(path string) (Sealed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Sealed{}, errors.Wrapf(err, "sealed handle file:%s", path)
	}
	return Sealed{value: strings.TrimRight(string(raw), "\n")}, nil
}
