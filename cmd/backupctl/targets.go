// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelcove/protectbackup/pkg/catalog"
)

// backlogSampleLimit bounds how many unbacked events targets inspects per
// target; it reports "N+" rather than an exact count when the backlog is at
// least this large.
const backlogSampleLimit = 5000

func NewTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List configured backup and archive targets with their backlog",
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

			ctx := context.Background()
			fmt.Println("backup targets:")
			for _, rem := range op.Backup.Remote {
				kind := "local"
				if rem.RemoteCopy != nil {
					kind = "remote-copy"
				}
				unbacked, err := cat.ListUnbacked(ctx, rem.Name, backlogSampleLimit)
				if err != nil {
					return err
				}
				fmt.Printf("  %-16s kind=%-12s backlog=%s\n", rem.Name, kind, backlogLabel(len(unbacked)))
			}

			if len(op.Archive.Remote) == 0 {
				return nil
			}
			fmt.Println("archive targets:")
			for _, rem := range op.Archive.Remote {
				fmt.Printf("  %-16s kind=dedup-repo repo=%s\n", rem.Name, rem.DedupRepo.Repo)
			}
			return nil
		},
	}
	return cmd
}

func backlogLabel(n int) string {
	if n >= backlogSampleLimit {
		return fmt.Sprintf("%d+", n)
	}
	return fmt.Sprintf("%d", n)
}
