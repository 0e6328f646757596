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

package scim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

var _ dirsync.RequestHandler = (*Forwarder)(nil)

// Forwarder is a RequestHandler that applies SyncRequests to a downstream
// SCIM 2.0 API by sending the patch body to <base>/Groups/<group id>. The
// request's API secret is the bearer token.
type Forwarder struct {
	httpClient *http.Client
	baseURL    string
}

// NewForwarder creates a Forwarder for the SCIM API at baseURL.
func NewForwarder(httpClient *http.Client, baseURL string) (*Forwarder, error) {
	// Validate once so Handle only fails on transport or downstream errors.
	if _, err := NewClient(httpClient, baseURL, ""); err != nil {
		return nil, err
	}
	return &Forwarder{httpClient: httpClient, baseURL: baseURL}, nil
}

// Handle implements dirsync.RequestHandler.
func (f *Forwarder) Handle(ctx context.Context, req *dirsync.SyncRequest) (*dirsync.SyncResponse, error) {
	if req.ResourceType != dirsync.ResourceTypeGroups {
		return nil, fmt.Errorf("unsupported resource type %q", req.ResourceType)
	}
	if req.Method != http.MethodPatch {
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	client, err := NewClient(f.httpClient, f.baseURL, req.APISecret)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range req.Query {
		q.Set(k, v)
	}

	var result scimGroup
	status, err := client.do(ctx, http.MethodPatch, client.resolve(q, "Groups", req.ResourceID), req.Body, &result)
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) {
			return &dirsync.SyncResponse{Status: status, Data: serr.Body}, fmt.Errorf("failed to patch group %s: %w", req.ResourceID, err)
		}
		return nil, fmt.Errorf("failed to patch group %s: %w", req.ResourceID, err)
	}

	resp := &dirsync.SyncResponse{Status: status}
	if result.ID != "" {
		resp.Data = &result
	}
	return resp, nil
}
