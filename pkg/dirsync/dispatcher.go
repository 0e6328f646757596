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
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ResourceTypeGroups is the resource type of every membership SyncRequest.
const ResourceTypeGroups = "groups"

// SyncRequest is the envelope submitted to a RequestHandler for one change
// payload of one group.
type SyncRequest struct {
	DirectoryID  string            `json:"directory_id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Method       string            `json:"method"`
	APISecret    string            `json:"-"`
	Query        map[string]string `json:"query,omitempty"`
	Body         *PatchBody        `json:"body"`
}

// SyncResponse is the outcome reported by a RequestHandler.
type SyncResponse struct {
	Status int `json:"status"`
	Data   any `json:"data,omitempty"`
}

// RequestHandler applies a SyncRequest downstream.
type RequestHandler interface {
	Handle(ctx context.Context, req *SyncRequest) (*SyncResponse, error)
}

// RequestHandlerFunc adapts a function to a RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req *SyncRequest) (*SyncResponse, error)

// Handle calls f(ctx, req).
func (f RequestHandlerFunc) Handle(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	return f(ctx, req)
}

// DispatchEvent describes one dispatch attempt, successful or not.
type DispatchEvent struct {
	ID          string    `json:"id"`
	DirectoryID string    `json:"directory_id"`
	Tenant      string    `json:"tenant"`
	Product     string    `json:"product"`
	GroupID     string    `json:"group_id"`
	GroupName   string    `json:"group_name,omitempty"`
	Operation   Operation `json:"operation"`
	MemberIDs   []string  `json:"member_ids"`
	Status      int       `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Succeeded reports whether the attempt was applied downstream.
func (e *DispatchEvent) Succeeded() bool {
	return e.Error == ""
}

// EventCallback observes every dispatch attempt. It is called synchronously,
// once per attempt, after the handler returned.
type EventCallback func(ctx context.Context, event *DispatchEvent)

// DispatcherOpt configures a Dispatcher.
type DispatcherOpt func(d *Dispatcher)

// WithDispatchTimeout bounds each submission to the request handler. A zero
// duration disables the bound.
func WithDispatchTimeout(timeout time.Duration) DispatcherOpt {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithClock overrides the time source of dispatch events.
func WithClock(now func() time.Time) DispatcherOpt {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// Dispatcher wraps change payloads into SyncRequests and submits them.
// It submits exactly once per call and never retries.
type Dispatcher struct {
	handler  RequestHandler
	callback EventCallback
	timeout  time.Duration
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher submitting to handler. The callback may be
// nil.
func NewDispatcher(handler RequestHandler, callback EventCallback, opts ...DispatcherOpt) *Dispatcher {
	d := &Dispatcher{
		handler:  handler,
		callback: callback,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewSyncRequest builds the SyncRequest for one payload of a directory.
func NewSyncRequest(directory *Directory, payload *ChangePayload) *SyncRequest {
	return &SyncRequest{
		DirectoryID:  directory.ID,
		ResourceType: ResourceTypeGroups,
		ResourceID:   payload.GroupID,
		Method:       http.MethodPatch,
		APISecret:    directory.Secret,
		Query:        map[string]string{},
		Body:         payload.PatchBody(),
	}
}

// Dispatch submits the payload for the given group and reports the attempt to
// the event callback.
func (d *Dispatcher) Dispatch(ctx context.Context, directory *Directory, group *Group, payload *ChangePayload) (*SyncRequest, error) {
	if payload.GroupID != group.ID {
		return nil, fmt.Errorf("payload for group %s dispatched for group %s", payload.GroupID, group.ID)
	}
	req := NewSyncRequest(directory, payload)

	resp, err := d.submit(ctx, req)

	event := &DispatchEvent{
		ID:          uuid.NewString(),
		DirectoryID: directory.ID,
		Tenant:      directory.Tenant,
		Product:     directory.Product,
		GroupID:     group.ID,
		GroupName:   group.Name,
		Operation:   payload.Operation,
		MemberIDs:   payload.MemberIDs,
		Time:        d.now(),
	}
	if resp != nil {
		event.Status = resp.Status
	}
	if err != nil {
		event.Error = err.Error()
	}
	if d.callback != nil {
		d.callback(ctx, event)
	}

	if err != nil {
		return req, fmt.Errorf("failed to dispatch %s of %d member(s) for group %s: %w",
			payload.Operation, len(payload.MemberIDs), group.ID, err)
	}
	return req, nil
}

func (d *Dispatcher) submit(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	resp, err := d.handler.Handle(ctx, req)
	if err != nil {
		return resp, err //nolint:wrapcheck // Want passthrough
	}
	if resp != nil && resp.Status != 0 && (resp.Status < 200 || resp.Status > 299) {
		return resp, fmt.Errorf("request handler responded with status %d", resp.Status)
	}
	return resp, nil
}
