// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dirsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abcxyz/pkg/logging"
)

// PassRunner runs one reconciliation pass over every directory.
type PassRunner interface {
	ReconcileAll(ctx context.Context) error
}

// Scheduler triggers a pass immediately and then on every tick of a fixed
// interval. Each pass runs in its own goroutine so a slow pass never delays
// the next tick; groups that are still being reconciled are skipped by the
// Reconciler.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner PassRunner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
	}
}

// Run blocks until ctx is done, then waits for in-flight passes to return.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	logger := logging.FromContext(ctx)
	logger.InfoContext(ctx, "scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.startPass(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
			s.startPass(ctx)
		}
	}
}

// RunOnce runs a single pass synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.runner.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("pass failed: %w", err)
	}
	return nil
}

func (s *Scheduler) startPass(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runner.ReconcileAll(ctx); err != nil {
			logging.FromContext(ctx).ErrorContext(ctx, "reconciliation pass failed", "error", err)
		}
	}()
}
