// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package options

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ParseDuration parses a duration string using the s/m/h/d/w/y suffix
// grammar from spec §6, which time.ParseDuration doesn't support (it has no
// day/week/year units). Not a general calendar-aware duration: d/w/y are
// fixed multiples of 24h for this domain's purposes (retention windows,
// not calendar arithmetic).
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	unit := s[len(s)-1]
	var mult time.Duration
	switch unit {
	case 's':
		mult = time.Second
	case 'm':
		mult = time.Minute
	case 'h':
		mult = time.Hour
	case 'd':
		mult = 24 * time.Hour
	case 'w':
		mult = 7 * 24 * time.Hour
	case 'y':
		mult = 365 * 24 * time.Hour
	default:
		return 0, errors.Errorf("duration %q: unrecognized unit suffix", s)
	}
	n, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "duration %q: invalid numeric part", s)
	}
	if n < 0 {
		return 0, errors.Errorf("duration %q: must not be negative", s)
	}
	return time.Duration(n * float64(mult)), nil
}
