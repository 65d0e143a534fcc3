// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package retry provides a single exponential-backoff retry helper. The
// backup pipeline uses it for clip fetch from the controller and for each
// backup target write (which covers the remote-copy subprocess);
// archive-engine invocations and controller REST calls are not wrapped in
// it. It replaces the ad-hoc fixed-interval retry loops
// the rest of the pack writes inline at each call site.
package retry

import (
	"context"
	"time"

	"github.com/kestrelcove/protectbackup/pkg/logger"
)

// Option configures the backoff schedule. The nth retry (1-indexed) sleeps
// for min(Initial * Factor^(n-1), Max).
type Option struct {
	Attempts int           // total attempts including the first, >= 1
	Initial  time.Duration // backoff before the first retry
	Factor   float64       // backoff growth per retry
	Max      time.Duration // backoff ceiling
}

// DefaultOption is the schedule used when the caller has no reason to
// deviate: 5 attempts, 1s initial, factor 2, capped at 60s.
var DefaultOption = Option{
	Attempts: 5,
	Initial:  time.Second,
	Factor:   2,
	Max:      60 * time.Second,
}

// IsRetryable reports whether an error should be retried. Callers whose
// errors do not implement this are always retried.
type IsRetryable interface {
	Retryable() bool
}

// Do calls fn up to opt.Attempts times, sleeping between attempts per the
// backoff schedule. It stops early if ctx is canceled or fn returns an error
// that implements IsRetryable and reports false. Returns the last error.
func Do(ctx context.Context, opt Option, label string, fn func(ctx context.Context) error) error {
	if opt.Attempts <= 0 {
		opt = DefaultOption
	}
	backoff := opt.Initial
	var err error
	for attempt := 1; attempt <= opt.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if r, ok := err.(IsRetryable); ok && !r.Retryable() {
			return err
		}
		if attempt == opt.Attempts {
			break
		}
		logger.WarnContextf(ctx, "%s failed (attempt %d/%d), retrying in %s: %s",
			label, attempt, opt.Attempts, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * opt.Factor)
		if backoff > opt.Max {
			backoff = opt.Max
		}
	}
	return err
}
