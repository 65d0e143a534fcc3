// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package daemon

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/ingestor"
	"github.com/kestrelcove/protectbackup/pkg/pipeline"
	"github.com/kestrelcove/protectbackup/pkg/protectclient"
)

type fakeClient struct{}

func (fakeClient) Bootstrap(ctx context.Context) ([]protectclient.Camera, error) {
	return []protectclient.Camera{{ID: "c1", Name: "front"}}, nil
}
func (fakeClient) SubscribeEvents(ctx context.Context) (<-chan protectclient.Event, error) {
	ch := make(chan protectclient.Event)
	close(ch)
	return ch, nil
}
func (fakeClient) ListEvents(ctx context.Context, from, to time.Time) ([]protectclient.Event, error) {
	return nil, nil
}
func (fakeClient) FetchClip(ctx context.Context, eventID string, start, end time.Time) (io.ReadCloser, error) {
	return nil, protectclient.ErrClipMissing
}

func TestDaemon_InitThenRunStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.Open(dir + "/catalog.db")
	require.NoError(t, err)
	defer cat.Close()

	d := New(Config{
		Client:  fakeClient{},
		Catalog: cat,
		IngestorConfig: ingestor.Config{
			PollInterval:   50 * time.Millisecond,
			MaxEventLength: 100 * time.Millisecond,
		},
		PipelineConfig: pipeline.Config{
			PollInterval:    50 * time.Millisecond,
			PurgeInterval:   50 * time.Millisecond,
			RetentionPeriod: time.Hour,
		},
	})
	require.NoError(t, d.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop within grace period")
	}
}
