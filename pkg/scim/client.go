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

// Package scim reads groups from SCIM 2.0 service providers and forwards
// membership patches to them.
package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// GroupSchema is the SCIM 2.0 core group schema URI.
	GroupSchema = "urn:ietf:params:scim:schemas:core:2.0:Group"

	contentType = "application/scim+json"
)

// Client handles direct HTTP communication with a SCIM 2.0 API.
// https://datatracker.ietf.org/doc/html/rfc7644
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
}

// scimGroup is a SCIM group resource.
// https://datatracker.ietf.org/doc/html/rfc7643#section-4.2
type scimGroup struct {
	Schemas     []string      `json:"schemas,omitempty"`
	ID          string        `json:"id"`
	DisplayName string        `json:"displayName,omitempty"`
	Members     []*scimMember `json:"members,omitempty"`
}

type scimMember struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	// Type is "User" or "Group". Absent means "User".
	Type string `json:"type,omitempty"`
}

// listResponse is a SCIM list response.
// https://datatracker.ietf.org/doc/html/rfc7644#section-3.4.2
type listResponse[T any] struct {
	TotalResults int `json:"totalResults"`
	StartIndex   int `json:"startIndex"`
	ItemsPerPage int `json:"itemsPerPage"`
	Resources    []T `json:"Resources"`
}

// StatusError is returned for responses outside of the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new client for the SCIM API at baseURL. A non-empty
// token is sent as a bearer token.
func NewClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Client{httpClient: httpClient, baseURL: u, token: token}, nil
}

// resolve joins the path segments onto the base URL. Each segment is escaped
// exactly once, so a "/" inside a resource ID stays within its segment.
func (c *Client) resolve(query url.Values, segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	ref := &url.URL{
		Path:    strings.Join(segments, "/"),
		RawPath: strings.Join(escaped, "/"),
	}
	u := c.baseURL.ResolveReference(ref)
	u.RawQuery = query.Encode()
	return u.String()
}

// do is a helper to make a SCIM request. The returned status is zero when no
// response was received.
func (c *Client) do(ctx context.Context, method, url string, body, result any) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	// See headers in https://datatracker.ietf.org/doc/html/rfc7644
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return resp.StatusCode, nil
}
