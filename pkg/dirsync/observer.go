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
	"log/slog"
	"time"

	"github.com/abcxyz/pkg/logging"
)

// ObservationKind names a discrete event of a reconciliation pass.
type ObservationKind string

const (
	KindPassStarted      ObservationKind = "pass_started"
	KindPassCompleted    ObservationKind = "pass_completed"
	KindDirectorySkipped ObservationKind = "directory_skipped"
	KindDirectoryFailed  ObservationKind = "directory_failed"
	KindGroupSkipped     ObservationKind = "group_skipped"
	KindGroupFailed      ObservationKind = "group_failed"
	KindEmptyGuarded     ObservationKind = "empty_guarded"
	KindEmptyHonored     ObservationKind = "empty_honored"
	KindDispatched       ObservationKind = "dispatched"
	KindDispatchFailed   ObservationKind = "dispatch_failed"
	KindStoreUpdated     ObservationKind = "store_updated"
)

// Observation is one event reported by the Reconciler.
type Observation struct {
	Kind        ObservationKind
	DirectoryID string
	GroupID     string
	Operation   Operation
	// Count is the number of member IDs involved, or the number of
	// directories for pass events.
	Count    int
	Reason   string
	Err      error
	Duration time.Duration
}

// Observer receives the observations of the Reconciler. Implementations must
// be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, o *Observation)
}

// MultiObserver forwards observations to every observer in order.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(ctx context.Context, o *Observation) {
	for _, obs := range m {
		if obs != nil {
			obs.Observe(ctx, o)
		}
	}
}

// LogObserver writes observations to the logger in the context.
type LogObserver struct{}

// Observe implements Observer.
func (LogObserver) Observe(ctx context.Context, o *Observation) {
	logger := logging.FromContext(ctx)

	attrs := []any{"kind", string(o.Kind)}
	if o.DirectoryID != "" {
		attrs = append(attrs, "directory_id", o.DirectoryID)
	}
	if o.GroupID != "" {
		attrs = append(attrs, "group_id", o.GroupID)
	}
	if o.Operation != "" {
		attrs = append(attrs, "operation", string(o.Operation))
	}
	if o.Count > 0 {
		attrs = append(attrs, "count", o.Count)
	}
	if o.Reason != "" {
		attrs = append(attrs, "reason", o.Reason)
	}
	if o.Duration > 0 {
		attrs = append(attrs, "duration", o.Duration.String())
	}
	if o.Err != nil {
		attrs = append(attrs, "error", o.Err)
	}

	level := slog.LevelInfo
	switch o.Kind {
	case KindDirectoryFailed, KindGroupFailed, KindDispatchFailed:
		level = slog.LevelError
	case KindDirectorySkipped, KindGroupSkipped, KindEmptyGuarded, KindEmptyHonored:
		level = slog.LevelWarn
	case KindStoreUpdated, KindPassStarted:
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "reconciliation "+string(o.Kind), attrs...)
}
