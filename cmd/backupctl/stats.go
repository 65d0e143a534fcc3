// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelcove/protectbackup/cmd/protectbackupd/options"
	"github.com/kestrelcove/protectbackup/pkg/catalog"
	"github.com/kestrelcove/protectbackup/pkg/recorder"
)

// integritySampleLimit bounds how many data-integrity findings stats
// --integrity reads back from the event file.
const integritySampleLimit = 500

func NewStatsCmd() *cobra.Command {
	var (
		outputFormat string
		integrity    bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog totals: events observed, closed, and fully unbacked",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Open(op.Database.Path)
			if err != nil {
				return err
			}
			defer cat.Close()

			total, closed, fullyUnbacked, err := cat.CountEventsByState(context.Background())
			if err != nil {
				return err
			}

			if integrity {
				return printIntegrityFindings(op)
			}

			if outputFormat == "json" {
				raw, err := json.Marshal(map[string]int64{
					"total":           total,
					"closed":          closed,
					"fully_unbacked":  fullyUnbacked,
					"open":            total - closed,
					"backed_up_total": total - fullyUnbacked,
				})
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
				return nil
			}

			fmt.Printf("events total:          %d\n", total)
			fmt.Printf("events closed:         %d\n", closed)
			fmt.Printf("events open:           %d\n", total-closed)
			fmt.Printf("events fully unbacked: %d\n", fullyUnbacked)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json")
	cmd.Flags().BoolVar(&integrity, "integrity", false, "Show surfaced data-integrity findings instead of event counts")
	return cmd
}

// printIntegrityFindings surfaces backups the reconcile pass found missing
// on a target's storage. The row is never auto-deleted from the catalog; an
// operator decides whether to re-back-up or accept the loss.
func printIntegrityFindings(op *options.DaemonOption) error {
	if op.Logging.EventFile == "" {
		fmt.Println("no data-integrity findings (logging.event-file is not configured)")
		return nil
	}
	findings := recorder.ReadEventFile(op.Logging.EventFile, op.Logging.EventFileBaks, integritySampleLimit,
		[]string{string(recorder.EventTypeDataIntegrity)}, nil)
	if len(findings) == 0 {
		fmt.Println("no data-integrity findings")
		return nil
	}
	for _, ev := range findings {
		if ev.Type != recorder.EventTypeDataIntegrity {
			continue
		}
		fmt.Printf("%s  target=%-12s  event=%-36s  %s\n",
			ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.Target, ev.EventID, ev.Message)
	}
	return nil
}
