// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package protectclient implements the opaque ProtectClient capability
// (spec §6): bootstrap, event subscription (push), event history (pull),
// and clip fetch, against the surveillance controller's REST+WebSocket API.
package protectclient

import (
	"context"
	"io"
	"time"
)

// Camera is a controller-known camera, returned by Bootstrap.
type Camera struct {
	ID   string
	Name string
}

// Event is a raw controller event, as reported over the push or pull paths.
type Event struct {
	EventID       string
	CameraID      string
	DetectionType string
	Start         time.Time
	End           *time.Time
	Closed        bool
}

// ProtectClient is the capability the rest of the daemon depends on. The
// wire format against the controller is not part of this package's public
// contract; callers depend only on these four operations (spec §6).
type ProtectClient interface {
	// Bootstrap authenticates and returns the camera list.
	Bootstrap(ctx context.Context) ([]Camera, error)
	// SubscribeEvents streams add/update/close events until ctx is
	// canceled or the connection is lost; either way the returned channel
	// is closed, which the ingestor treats as a disconnect signal. The
	// error return reports a failure to open the stream.
	SubscribeEvents(ctx context.Context) (<-chan Event, error)
	// ListEvents queries the event-history API over [from, to).
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	// FetchClip streams the clip bytes for event_id covering [start, end).
	FetchClip(ctx context.Context, eventID string, start, end time.Time) (io.ReadCloser, error)
}
