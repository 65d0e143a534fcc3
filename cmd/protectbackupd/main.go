// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelcove/protectbackup/cmd/protectbackupd/options"
	"github.com/kestrelcove/protectbackup/pkg/logger"
)

// version is set via -ldflags at build time.
var version = "dev"

const (
	exitOK             = 0
	exitRuntimeFailure = 1
	exitConfigError    = 2
	exitProbeFailure   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("UFP_CONFIG"), "config file path")
	validate := flag.Bool("validate", false, "load config, probe all dependencies, and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("protectbackupd " + version)
		return exitOK
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "a config file is required: --config PATH or UFP_CONFIG")
		return exitConfigError
	}

	op, rs, err := options.Parse(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return exitConfigError
	}

	if *validate {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := op.Probe(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "dependency probe failed: %s\n", err)
			return exitProbeFailure
		}
		fmt.Println("validate: ok")
		return exitOK
	}

	logger.InitLogger(&logger.Option{
		Filename:   op.Logging.Filename,
		MaxSize:    op.Logging.MaxSizeMB,
		MaxAge:     op.Logging.MaxAgeDays,
		MaxBackups: op.Logging.MaxBackups,
	})
	defer logger.Sync()
	logger.Infof("protectbackupd %s starting, config=%s", version, op.String())

	d, cat, err := build(op, rs)
	if err != nil {
		logger.Errorf("wiring failed: %s", err)
		return exitConfigError
	}
	defer cat.Close()

	if err := d.Init(); err != nil {
		logger.Errorf("init failed: %s", err)
		return exitProbeFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
		s := <-interrupt
		logger.Infof("received signal %v, shutting down", s)
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		logger.Errorf("daemon exited with error: %s", err)
		return exitRuntimeFailure
	}
	logger.Infof("protectbackupd exited cleanly")
	return exitOK
}
