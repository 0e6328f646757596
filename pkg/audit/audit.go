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

// Package audit provides event callbacks recording every dispatch attempt.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/logging"
)

const (
	// DefaultSource is the CloudEvents source of dispatch events.
	DefaultSource = "directory-sync"

	EventTypeDispatchSucceeded = "dev.directorysync.dispatch.succeeded"
	EventTypeDispatchFailed    = "dev.directorysync.dispatch.failed"

	// extensionDirectoryID carries the directory of an event. CloudEvents
	// extension names are lower case alphanumeric.
	extensionDirectoryID = "directoryid"
)

// LogCallback writes every dispatch attempt to the logger in the context.
func LogCallback(ctx context.Context, event *dirsync.DispatchEvent) {
	logger := logging.FromContext(ctx)

	level := slog.LevelInfo
	msg := "dispatched membership change"
	attrs := []any{
		"event_id", event.ID,
		"directory_id", event.DirectoryID,
		"tenant", event.Tenant,
		"product", event.Product,
		"group_id", event.GroupID,
		"operation", string(event.Operation),
		"member_ids", event.MemberIDs,
	}
	if event.Status != 0 {
		attrs = append(attrs, "status", event.Status)
	}
	if !event.Succeeded() {
		level = slog.LevelError
		msg = "failed to dispatch membership change"
		attrs = append(attrs, "error", event.Error)
	}
	logger.Log(ctx, level, msg, attrs...)
}

// Multi returns a callback invoking every non-nil callback in order.
func Multi(callbacks ...dirsync.EventCallback) dirsync.EventCallback {
	return func(ctx context.Context, event *dirsync.DispatchEvent) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(ctx, event)
			}
		}
	}
}

// CloudEventsCallback publishes dispatch attempts as CloudEvents.
type CloudEventsCallback struct {
	client cloudevents.Client
	source string
}

// NewCloudEventsCallback creates a CloudEventsCallback sending through client.
func NewCloudEventsCallback(client cloudevents.Client, source string) *CloudEventsCallback {
	if source == "" {
		source = DefaultSource
	}
	return &CloudEventsCallback{client: client, source: source}
}

// NewHTTPCloudEventsCallback creates a CloudEventsCallback posting events in
// binary mode to target.
func NewHTTPCloudEventsCallback(target, source string) (*CloudEventsCallback, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}
	return NewCloudEventsCallback(client, source), nil
}

// Callback is a dirsync.EventCallback. Delivery failures are logged and never
// affect the reconciliation.
func (c *CloudEventsCallback) Callback(ctx context.Context, event *dirsync.DispatchEvent) {
	if err := c.Send(ctx, event); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to publish dispatch event",
			"event_id", event.ID,
			"directory_id", event.DirectoryID,
			"group_id", event.GroupID,
			"error", err)
	}
}

// Send publishes one dispatch attempt.
func (c *CloudEventsCallback) Send(ctx context.Context, event *dirsync.DispatchEvent) error {
	ce, err := c.toCloudEvent(event)
	if err != nil {
		return err
	}
	if result := c.client.Send(ctx, ce); !cloudevents.IsACK(result) {
		return fmt.Errorf("failed to send event %s: %w", event.ID, result)
	}
	return nil
}

func (c *CloudEventsCallback) toCloudEvent(event *dirsync.DispatchEvent) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(event.ID)
	ce.SetSource(c.source)
	ce.SetSubject(event.GroupID)
	ce.SetTime(event.Time)
	ce.SetExtension(extensionDirectoryID, event.DirectoryID)
	if event.Succeeded() {
		ce.SetType(EventTypeDispatchSucceeded)
	} else {
		ce.SetType(EventTypeDispatchFailed)
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return ce, fmt.Errorf("failed to set event data: %w", err)
	}
	return ce, nil
}
