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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/directory-sync/pkg/paging"
	"github.com/abcxyz/pkg/logging"
)

const (
	// DirectoryType is the Directory.Type served by the Adapter.
	DirectoryType = "scim"

	// ConfigBaseURL is the directory config key of the SCIM base URL, e.g.
	// "https://idp.example.com/scim/v2".
	ConfigBaseURL = "base_url"
	// ConfigToken is the directory config key of the bearer token used to
	// read from the SCIM API.
	ConfigToken = "token"

	defaultPageSize = 100
	memberTypeGroup = "Group"
)

var _ dirsync.ProviderAdapter = (*Adapter)(nil)

// Adapter polls the groups of a SCIM 2.0 service provider.
type Adapter struct {
	httpClient *http.Client
}

// NewAdapter creates an Adapter. A nil httpClient uses http.DefaultClient.
func NewAdapter(httpClient *http.Client) *Adapter {
	return &Adapter{httpClient: httpClient}
}

// Groups lists every group of the directory's SCIM endpoint. Members are
// excluded from the listing and fetched per group.
func (a *Adapter) Groups(ctx context.Context, directory *dirsync.Directory) ([]*dirsync.Group, error) {
	client, err := a.client(directory)
	if err != nil {
		return nil, err
	}

	groups, err := paging.Paginate(ctx, &pageRequest{startIndex: 1, count: defaultPageSize},
		func(ctx context.Context, req paging.PageRequest[*pageRequest]) (paging.Page[*scimGroup], error) {
			opt := req.Opt()
			q := url.Values{}
			q.Set("startIndex", strconv.Itoa(opt.startIndex))
			q.Set("count", strconv.Itoa(opt.count))
			q.Set("excludedAttributes", "members")

			var result listResponse[*scimGroup]
			if _, err := client.do(ctx, http.MethodGet, client.resolve(q, "Groups"), nil, &result); err != nil {
				return nil, fmt.Errorf("failed to list scim groups starting at index %d: %w", opt.startIndex, err)
			}
			opt.received = len(result.Resources)
			return &page{
				content: result.Resources,
				hasNext: len(result.Resources) > 0 && opt.startIndex-1+len(result.Resources) < result.TotalResults,
			}, nil
		})
	if err != nil {
		return nil, fmt.Errorf("could not list groups: %w", err)
	}

	out := make([]*dirsync.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, &dirsync.Group{ID: g.ID, Name: g.DisplayName, Attributes: g})
	}
	return out, nil
}

// GroupMembers reads the group resource and returns its user members. Nested
// group members are skipped.
func (a *Adapter) GroupMembers(ctx context.Context, directory *dirsync.Directory, group *dirsync.Group) ([]*dirsync.Member, error) {
	logger := logging.FromContext(ctx)

	client, err := a.client(directory)
	if err != nil {
		return nil, err
	}

	var result scimGroup
	q := url.Values{}
	q.Set("attributes", "members")
	if _, err := client.do(ctx, http.MethodGet, client.resolve(q, "Groups", group.ID), nil, &result); err != nil {
		return nil, fmt.Errorf("could not get group %s: %w", group.ID, err)
	}

	members := make([]*dirsync.Member, 0, len(result.Members))
	for _, m := range result.Members {
		if strings.EqualFold(m.Type, memberTypeGroup) {
			logger.DebugContext(ctx, "skipping nested group member",
				"group_id", group.ID,
				"member", m.Value)
			continue
		}
		members = append(members, &dirsync.Member{ID: m.Value, Attributes: m})
	}
	return members, nil
}

func (a *Adapter) client(directory *dirsync.Directory) (*Client, error) {
	baseURL := directory.ConfigValue(ConfigBaseURL, "")
	if baseURL == "" {
		return nil, fmt.Errorf("directory %s: config %q is required", directory.ID, ConfigBaseURL)
	}
	client, err := NewClient(a.httpClient, baseURL, directory.ConfigValue(ConfigToken, ""))
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", directory.ID, err)
	}
	return client, nil
}

// pageRequest requests one page by SCIM's 1-based startIndex. Providers may
// return fewer than count resources, so the next page starts after the
// resources actually received.
type pageRequest struct {
	startIndex int
	count      int
	received   int
}

func (r *pageRequest) Opt() *pageRequest {
	return r
}

func (r *pageRequest) Next() paging.PageRequest[*pageRequest] {
	return &pageRequest{startIndex: r.startIndex + r.received, count: r.count}
}

type page struct {
	content []*scimGroup
	hasNext bool
}

func (p *page) Content() []*scimGroup {
	return p.content
}

func (p *page) HasNext() bool {
	return p.hasNext
}
