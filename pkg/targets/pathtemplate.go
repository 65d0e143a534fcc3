// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package targets implements the Backup Target (C2) and Archive Target (C3)
// variants: Local and RemoteCopy backup targets, and the DedupRepo archive
// target.
package targets

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
)

// knownTokens is the substitution set from spec §4.2.
var knownTokens = map[string]bool{
	"camera_name":    true,
	"camera_id":      true,
	"date":           true,
	"time":           true,
	"end_time":       true,
	"detection_type": true,
	"event_id":       true,
}

// ValidateTemplate checks that format contains only known `{token}`
// placeholders, per spec §4.2 "Unknown tokens are an error at configuration
// validation time."
func ValidateTemplate(format string) error {
	_, err := scanTokens(format)
	return err
}

func scanTokens(format string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(format) {
		open := strings.IndexByte(format[i:], '{')
		if open < 0 {
			break
		}
		open += i
		closeIdx := strings.IndexByte(format[open:], '}')
		if closeIdx < 0 {
			return nil, errors.Errorf("path template %q: unterminated token starting at %d", format, open)
		}
		closeIdx += open
		token := format[open+1 : closeIdx]
		if !knownTokens[token] {
			return nil, errors.Errorf("path template %q: unknown token %q", format, token)
		}
		tokens = append(tokens, token)
		i = closeIdx + 1
	}
	return tokens, nil
}

// sanitizeComponent replaces any path separator in a substituted value with
// `_`, and replaces a value of `.` or `..` with `_`, preventing directory
// escape (spec §4.2).
func sanitizeComponent(v string) string {
	v = strings.ReplaceAll(v, "/", "_")
	v = strings.ReplaceAll(v, "\\", "_")
	if v == ".." || v == "." {
		v = "_"
	}
	return v
}

// RenderPath substitutes format's tokens from ev, sanitizing every value.
// The caller joins the result onto the target's root directory.
func RenderPath(format string, ev catalog.Event) (string, error) {
	tokens, err := scanTokens(format)
	if err != nil {
		return "", err
	}
	out := format
	for _, token := range tokens {
		var raw string
		switch token {
		case "camera_name":
			raw = ev.CameraName
		case "camera_id":
			raw = ev.CameraID
		case "date":
			raw = ev.StartTime.Local().Format("2006-01-02")
		case "time":
			raw = ev.StartTime.Local().Format("15-04-05")
		case "end_time":
			if ev.EndTime != nil {
				raw = fmt.Sprintf("%d", ev.EndTime.Unix())
			}
		case "detection_type":
			raw = ev.DetectionType
		case "event_id":
			raw = ev.ID
		}
		out = strings.Replace(out, "{"+token+"}", sanitizeComponent(raw), 1)
	}
	return out, nil
}
