// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelcove/protectbackup/cmd/protectbackupd/options"
)

var globalConfigPath string

// loadConfig parses the daemon config file backupctl was pointed at. Unlike
// protectbackupd, backupctl never writes to it and never starts any
// component; it only reads target names, the catalog path and the event
// file location out of the same TOML the daemon uses.
func loadConfig() (*options.DaemonOption, error) {
	op, _, err := options.Parse(globalConfigPath)
	return op, err
}

// NewRootCmd returns the root command with global flags and subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backupctl",
		Short: "Inspect a running protectbackupd instance's catalog and event history",
	}
	cmd.PersistentFlags().StringVar(&globalConfigPath, "config", os.Getenv("UFP_CONFIG"), "daemon config file path")

	cmd.AddCommand(NewEventsCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewTargetsCmd())
	cmd.AddCommand(NewValidateCmd())
	return cmd
}
