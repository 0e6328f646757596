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

// Package googlegroups polls Google Workspace groups through the Admin SDK
// Directory API.
package googlegroups

import (
	"context"
	"fmt"
	"sync"

	admin "google.golang.org/api/admin/directory/v1"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/logging"
)

const (
	MemberTypeUser  = "USER"
	MemberTypeGroup = "GROUP"

	// DirectoryType is the Directory.Type served by this adapter.
	DirectoryType = "google"

	// ConfigCustomer and ConfigDomain select the groups of a directory. The
	// domain wins when both are set.
	ConfigCustomer = "customer"
	ConfigDomain   = "domain"

	defaultCustomer = "my_customer"
)

// Ensure we conform to the interface.
var _ dirsync.ProviderAdapter = (*Adapter)(nil)

// ServiceFunc creates the admin service used for a directory.
type ServiceFunc func(ctx context.Context, directory *dirsync.Directory) (*admin.Service, error)

// Adapter provides read operations for Google Workspace groups. Services are
// created once per directory and reused.
type Adapter struct {
	newService ServiceFunc

	mu       sync.Mutex
	services map[string]*admin.Service
}

// NewAdapter creates a new Adapter.
func NewAdapter(newService ServiceFunc) *Adapter {
	return &Adapter{
		newService: newService,
		services:   make(map[string]*admin.Service),
	}
}

// Groups retrieves every group of the directory's customer or domain.
func (a *Adapter) Groups(ctx context.Context, directory *dirsync.Directory) ([]*dirsync.Group, error) {
	svc, err := a.service(ctx, directory)
	if err != nil {
		return nil, err
	}

	call := svc.Groups.List().Context(ctx)
	if domain := directory.ConfigValue(ConfigDomain, ""); domain != "" {
		call = call.Domain(domain)
	} else {
		call = call.Customer(directory.ConfigValue(ConfigCustomer, defaultCustomer))
	}

	var groups []*dirsync.Group
	if err := call.Pages(ctx, func(page *admin.Groups) error {
		for _, g := range page.Groups {
			groups = append(groups, &dirsync.Group{
				ID:         g.Id,
				Name:       g.Name,
				Attributes: g,
			})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not list groups: %w", err)
	}
	return groups, nil
}

// GroupMembers retrieves the direct user members of the group. Nested groups
// are not expanded.
func (a *Adapter) GroupMembers(ctx context.Context, directory *dirsync.Directory, group *dirsync.Group) ([]*dirsync.Member, error) {
	svc, err := a.service(ctx, directory)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	var members []*dirsync.Member
	if err := svc.Members.List(group.ID).Context(ctx).Pages(ctx, func(page *admin.Members) error {
		for _, m := range page.Members {
			switch m.Type {
			case MemberTypeUser:
				members = append(members, &dirsync.Member{ID: m.Id, Attributes: m})
			case MemberTypeGroup:
				// Direct members only.
			default:
				logger.WarnContext(ctx, "unrecognized member type encountered",
					"group_id", group.ID,
					"member_type", m.Type,
				)
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not get group members: %w", err)
	}
	return members, nil
}

func (a *Adapter) service(ctx context.Context, directory *dirsync.Directory) (*admin.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if svc, ok := a.services[directory.ID]; ok {
		return svc, nil
	}
	svc, err := a.newService(ctx, directory)
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", directory.ID, err)
	}
	a.services[directory.ID] = svc
	return svc, nil
}
