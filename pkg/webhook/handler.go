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

// Package webhook implements a request handler that turns membership patches
// into signed webhook events for the subscribers of a directory.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/cache"
	"github.com/abcxyz/pkg/logging"
)

const (
	EventUserAdded   = "group.user_added"
	EventUserRemoved = "group.user_removed"

	// DeliveryHeader carries the unique ID of one delivery.
	DeliveryHeader = "Directory-Sync-Delivery"

	// DefaultCacheDuration is the default time to live of cached directories.
	DefaultCacheDuration = 5 * time.Minute
)

// ErrUnauthorized is returned when the API secret of a request does not match
// the secret of its directory.
var ErrUnauthorized = errors.New("unauthorized")

var _ dirsync.RequestHandler = (*Handler)(nil)

// Event is the body of one webhook delivery.
type Event struct {
	DirectoryID string     `json:"directory_id"`
	Event       string     `json:"event"`
	Data        *EventData `json:"data"`
}

type EventData struct {
	GroupID   string   `json:"group_id"`
	MemberIDs []string `json:"member_ids"`
}

type Config struct {
	cacheDuration time.Duration
	httpClient    *http.Client
	now           func() time.Time
}

type Opt func(config *Config)

// WithCacheDuration sets the time to live of cached directories.
func WithCacheDuration(duration time.Duration) Opt {
	return func(config *Config) {
		config.cacheDuration = duration
	}
}

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(client *http.Client) Opt {
	return func(config *Config) {
		config.httpClient = client
	}
}

// WithClock overrides the time source of signatures.
func WithClock(now func() time.Time) Opt {
	return func(config *Config) {
		config.now = now
	}
}

// Handler authenticates SyncRequests against their directory and delivers one
// webhook event per patch operation to the directory's webhook endpoint.
type Handler struct {
	registry       dirsync.Registry
	directoryCache *cache.Cache[*dirsync.Directory]
	httpClient     *http.Client
	now            func() time.Time
}

// NewHandler creates a Handler resolving directories from registry.
func NewHandler(registry dirsync.Registry, opts ...Opt) *Handler {
	config := &Config{
		cacheDuration: DefaultCacheDuration,
		httpClient:    http.DefaultClient,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Handler{
		registry:       registry,
		directoryCache: cache.New[*dirsync.Directory](config.cacheDuration),
		httpClient:     config.httpClient,
		now:            config.now,
	}
}

// Handle implements dirsync.RequestHandler. A directory without a webhook
// endpoint accepts the request without delivering anything.
func (h *Handler) Handle(ctx context.Context, req *dirsync.SyncRequest) (*dirsync.SyncResponse, error) {
	directory, err := h.directory(ctx, req.DirectoryID)
	if err != nil {
		if errors.Is(err, dirsync.ErrNotFound) {
			return &dirsync.SyncResponse{Status: http.StatusNotFound}, err
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(req.APISecret), []byte(directory.Secret)) != 1 {
		return &dirsync.SyncResponse{Status: http.StatusUnauthorized}, fmt.Errorf("directory %s: %w", directory.ID, ErrUnauthorized)
	}
	if req.ResourceType != dirsync.ResourceTypeGroups || req.Method != http.MethodPatch {
		return &dirsync.SyncResponse{Status: http.StatusMethodNotAllowed},
			fmt.Errorf("unsupported request %s %s", req.Method, req.ResourceType)
	}
	payloads, err := dirsync.ParsePatchBody(req.ResourceID, req.Body)
	if err != nil {
		return &dirsync.SyncResponse{Status: http.StatusBadRequest}, fmt.Errorf("invalid patch body: %w", err)
	}

	if directory.WebhookEndpoint == "" {
		return &dirsync.SyncResponse{Status: http.StatusOK}, nil
	}

	var merr error
	deliveries := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		id, err := h.deliver(ctx, directory, newEvent(directory.ID, payload))
		if err != nil {
			merr = errors.Join(merr, err)
			continue
		}
		deliveries = append(deliveries, id)
	}
	if merr != nil {
		return &dirsync.SyncResponse{Status: http.StatusBadGateway, Data: deliveries}, merr
	}
	return &dirsync.SyncResponse{Status: http.StatusOK, Data: deliveries}, nil
}

func (h *Handler) directory(ctx context.Context, id string) (*dirsync.Directory, error) {
	directory, err := h.directoryCache.WriteThruLookup(id, func() (*dirsync.Directory, error) {
		d, err := h.registry.Directory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get directory %s: %w", id, err)
		}
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lookup directory: %w", err)
	}
	return directory, nil
}

func newEvent(directoryID string, payload *dirsync.ChangePayload) *Event {
	name := EventUserAdded
	if payload.Operation == dirsync.OperationRemove {
		name = EventUserRemoved
	}
	return &Event{
		DirectoryID: directoryID,
		Event:       name,
		Data: &EventData{
			GroupID:   payload.GroupID,
			MemberIDs: payload.MemberIDs,
		},
	}
}

// deliver posts the event to the directory's webhook endpoint and returns the
// delivery ID.
func (h *Handler) deliver(ctx context.Context, directory *dirsync.Directory, event *Event) (string, error) {
	logger := logging.FromContext(ctx)

	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	id := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, directory.WebhookEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, id)
	req.Header.Set(SignatureHeader, Sign(directory.WebhookSecret, h.now(), body))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to deliver %s for group %s: %w", event.Event, event.Data.GroupID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to deliver %s for group %s: endpoint responded with status %d",
			event.Event, event.Data.GroupID, resp.StatusCode)
	}

	logger.DebugContext(ctx, "delivered webhook event",
		"directory_id", directory.ID,
		"group_id", event.Data.GroupID,
		"event", event.Event,
		"delivery_id", id)
	return id, nil
}
