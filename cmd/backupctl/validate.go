// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the same dependency probe protectbackupd --validate runs, without starting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := op.Probe(ctx); err != nil {
				return fmt.Errorf("dependency probe failed: %w", err)
			}
			fmt.Println("validate: ok")
			return nil
		},
	}
	return cmd
}
