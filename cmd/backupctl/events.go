// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelcove/protectbackup/pkg/recorder"
)

const defaultTail = 300

func NewEventsCmd() *cobra.Command {
	var (
		outputFormat string
		follow       bool
		tail         int
		search       string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded backup/archive events from the daemon's event file",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := loadConfig()
			if err != nil {
				return err
			}
			if op.Logging.EventFile == "" {
				return fmt.Errorf("logging.event-file is not configured in %s", globalConfigPath)
			}
			var query []string
			if search != "" {
				query = []string{search}
			}

			events := recorder.ReadEventFile(op.Logging.EventFile, op.Logging.EventFileBaks, tail, query, nil)
			for _, ev := range events {
				printEvent(ev, outputFormat)
			}

			if !follow {
				return nil
			}
			return followEvents(cmd, op.Logging.EventFile, op.Logging.EventFileBaks, query, outputFormat, events)
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll for new events (like tail -f)")
	cmd.Flags().IntVar(&tail, "tail", defaultTail, "Number of recent events to show")
	cmd.Flags().StringVar(&search, "search", "", "Filter by substring match on the raw event record")
	return cmd
}

// followEvents polls the event file for entries newer than the last one
// already printed. There is no cross-process subscribe channel, so this is
// tail -f over the rotating JSONL file rather than a live pub/sub feed.
func followEvents(cmd *cobra.Command, eventFile string, maxBackups int, query []string, outputFormat string, seen []recorder.Event) error {
	var last time.Time
	if len(seen) > 0 {
		last = seen[len(seen)-1].Timestamp
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			next := recorder.ReadEventFile(eventFile, maxBackups, defaultTail, query, &last)
			for _, ev := range next {
				if !ev.Timestamp.After(last) {
					continue
				}
				printEvent(ev, outputFormat)
			}
			if len(next) > 0 {
				last = next[len(next)-1].Timestamp
			}
		}
	}
}

func printEvent(ev recorder.Event, outputFormat string) {
	if outputFormat == "json" {
		raw, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Println(string(raw))
		return
	}
	fmt.Printf("%s  %-18s  %-10s  target=%-12s  %s\n",
		ev.Timestamp.Format(time.RFC3339), ev.Type, ev.EventStatus, ev.Target, ev.Message)
}
