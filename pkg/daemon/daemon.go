// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package daemon wires the catalog, configured targets, ingestor, pipeline
// and archiver into one running process and owns startup/shutdown
// sequencing.
package daemon

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelcove/protectbackup/pkg/archiver"
	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/ingestor"
	"github.com/kestrelcove/protectbackup/pkg/logger"
	"github.com/kestrelcove/protectbackup/pkg/metrics"
	"github.com/kestrelcove/protectbackup/pkg/pipeline"
	"github.com/kestrelcove/protectbackup/pkg/protectclient"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
	"github.com/kestrelcove/protectbackup/pkg/targets"
)

// ShutdownGrace is how long Run waits for components to exit cleanly after
// ctx is canceled before returning anyway.
const ShutdownGrace = 30 * time.Second

// Config bundles everything Daemon needs, already constructed by the
// entrypoint from parsed options.
type Config struct {
	Client         protectclient.ProtectClient
	Catalog        *catalog.Catalog
	BackupTargets  []targets.BackupTarget
	ArchiveTargets []targets.ArchiveTarget
	IngestorConfig ingestor.Config
	PipelineConfig pipeline.Config
	ArchiverConfig archiver.Config
	EventFile      string
	EventFileMaxMB int
	EventFileBacks int
}

// Daemon owns one running instance of every long-lived component.
type Daemon struct {
	cfg      Config
	ingestor *ingestor.Ingestor
	pipeline *pipeline.Pipeline
	archiver *archiver.Archiver
}

// New constructs a Daemon. Call Init before Run.
func New(cfg Config) *Daemon {
	return &Daemon{cfg: cfg}
}

// Init wires the components together but starts no goroutines.
func (d *Daemon) Init() error {
	if d.cfg.EventFile != "" {
		if err := recorder.Global.InitEventFile(d.cfg.EventFile, d.cfg.EventFileMaxMB, d.cfg.EventFileBacks); err != nil {
			return errors.Wrap(err, "init event file sink")
		}
		logger.Infof("event file sink enabled: %s", d.cfg.EventFile)
	}

	readyCap := 4 * d.cfg.PipelineConfig.ParallelUploads
	if readyCap <= 0 {
		readyCap = 16
	}
	d.ingestor = ingestor.New(d.cfg.Client, d.cfg.Catalog, d.cfg.IngestorConfig, readyCap)
	d.pipeline = pipeline.New(d.cfg.Client, d.cfg.Catalog, d.cfg.BackupTargets, d.cfg.PipelineConfig)
	if len(d.cfg.ArchiveTargets) > 0 {
		d.archiver = archiver.New(d.cfg.Catalog, d.cfg.BackupTargets, d.cfg.ArchiveTargets, d.cfg.ArchiverConfig)
	}

	cameras, err := d.cfg.Client.Bootstrap(context.Background())
	if err != nil {
		return errors.Wrap(err, "bootstrap controller client")
	}
	d.ingestor.SetCameras(cameras)
	return nil
}

// Run starts every component and blocks until ctx is canceled or a
// component fails. One goroutine per component, errgroup fan-in: the first
// non-nil error cancels every other component's context. On shutdown, Run
// waits up to ShutdownGrace for components to exit before returning.
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer logger.Warnf("ingestor exited")
		return d.ingestor.Run(logger.WithComponent(gCtx, "ingestor"))
	})
	g.Go(func() error {
		defer logger.Warnf("pipeline exited")
		return d.pipeline.Run(logger.WithComponent(gCtx, "pipeline"), d.ingestor.Ready())
	})
	g.Go(func() error {
		d.reportCatalogStats(logger.WithComponent(gCtx, "daemon"))
		return nil
	})
	if d.archiver != nil {
		g.Go(func() error {
			defer logger.Warnf("archive scheduler exited")
			return d.archiver.Run(logger.WithComponent(gCtx, "archiver"))
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "component failed")
		}
		return nil
	case <-ctx.Done():
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(ShutdownGrace):
			logger.Warnf("shutdown grace period elapsed, components did not exit in time")
			return nil
		}
	}
}

// catalogStatsInterval is how often reportCatalogStats refreshes the
// catalog_events gauge; it is cheap relative to purge/archive cadences.
const catalogStatsInterval = 30 * time.Second

// reportCatalogStats periodically refreshes metrics.CatalogEventsGauge from
// the catalog's current counts, for operator dashboards.
func (d *Daemon) reportCatalogStats(ctx context.Context) {
	ticker := time.NewTicker(catalogStatsInterval)
	defer ticker.Stop()
	for {
		total, closed, unbacked, err := d.cfg.Catalog.CountEventsByState(ctx)
		if err != nil {
			logger.WarnContextf(ctx, "catalog stats query failed: %s", err)
		} else {
			metrics.CatalogEventsGauge.WithLabelValues("total").Set(float64(total))
			metrics.CatalogEventsGauge.WithLabelValues("closed").Set(float64(closed))
			metrics.CatalogEventsGauge.WithLabelValues("fully_unbacked").Set(float64(unbacked))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
