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

// Package dirsync reconciles group memberships of polled identity directories
// against a persisted membership snapshot and emits the difference as
// directory-protocol change requests.
package dirsync

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by unique key lookups when no entry matches.
	ErrNotFound = errors.New("not found")

	// ErrEmptyResult is reported when a provider returned an empty result that
	// the EmptyPolicy did not (yet) accept as truth.
	ErrEmptyResult = errors.New("provider returned an empty result")
)

// Directory is one configured external identity source scoped to a tenant
// and product. The sync engine never mutates a Directory.
type Directory struct {
	// ID uniquely identifies the directory.
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Tenant  string `json:"tenant" yaml:"tenant"`
	Product string `json:"product" yaml:"product"`
	// Type is the provider kind, e.g. "google", "gitlab", "github" or "scim".
	// It selects the ProviderAdapter used to poll the directory.
	Type string `json:"type" yaml:"type"`
	// Secret authenticates the change requests issued for this directory.
	Secret string `json:"-" yaml:"secret"`
	// WebhookEndpoint and WebhookSecret are optional. When the endpoint is
	// empty no webhook events are delivered for the directory.
	WebhookEndpoint string `json:"webhook_endpoint,omitempty" yaml:"webhook_endpoint,omitempty"`
	WebhookSecret   string `json:"-" yaml:"webhook_secret,omitempty"`
	// Config holds provider specific parameters such as the Google customer
	// or the GitHub org.
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Validate reports missing required fields.
func (d *Directory) Validate() error {
	var merr error
	if d.ID == "" {
		merr = errors.Join(merr, fmt.Errorf("directory id is required"))
	}
	if d.Tenant == "" || d.Product == "" {
		merr = errors.Join(merr, fmt.Errorf("directory %q: tenant and product are required", d.ID))
	}
	if d.Type == "" {
		merr = errors.Join(merr, fmt.Errorf("directory %q: type is required", d.ID))
	}
	if d.Secret == "" {
		merr = errors.Join(merr, fmt.Errorf("directory %q: secret is required", d.ID))
	}
	return merr
}

// ConfigValue returns the provider parameter with the given key, or def when
// it is not set.
func (d *Directory) ConfigValue(key, def string) string {
	if v, ok := d.Config[key]; ok && v != "" {
		return v
	}
	return def
}

// Group is a group as reported by a provider.
type Group struct {
	// ID is the group's ID in the provider.
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Attributes represent arbitrary provider specific attributes about the
	// group. They are opaque to the engine.
	Attributes any `json:"attributes,omitempty"`
}

// Member is a direct user member of a group as reported by a provider.
type Member struct {
	// ID is the member's identifier in the provider.
	ID         string `json:"id"`
	Attributes any    `json:"attributes,omitempty"`
}

// Registry enumerates configured directories.
type Registry interface {
	// Directories returns every directory visible to this registry.
	Directories(ctx context.Context) ([]*Directory, error)

	// Directory returns the directory with the given ID. It returns an error
	// wrapping ErrNotFound when there is none.
	Directory(ctx context.Context, id string) (*Directory, error)

	// Scope returns a view of the registry restricted to the given tenant and
	// product.
	Scope(tenant, product string) Registry
}

// ProviderAdapter fetches current group and membership state from one kind of
// external directory.
type ProviderAdapter interface {
	// Groups retrieves the groups of the given directory.
	Groups(ctx context.Context, directory *Directory) ([]*Group, error)

	// GroupMembers retrieves the direct user members of the given group.
	GroupMembers(ctx context.Context, directory *Directory, group *Group) ([]*Member, error)
}

// MembershipStore holds the canonical membership snapshot, scoped by
// directory.
type MembershipStore interface {
	// Members returns the stored member IDs of a group. A group that was
	// never stored yields an empty set.
	Members(ctx context.Context, directoryID, groupID string) (MemberIDSet, error)

	// SetMembers atomically replaces the stored member IDs of a group.
	SetMembers(ctx context.Context, directoryID, groupID string, ids MemberIDSet) error

	// Groups returns the IDs of groups with stored members in a directory.
	Groups(ctx context.Context, directoryID string) ([]string, error)
}

// MemberIDs returns the identifiers of the given members as a set.
func MemberIDs(members []*Member) MemberIDSet {
	ids := make(MemberIDSet, len(members))
	for _, m := range members {
		if m == nil || m.ID == "" {
			continue
		}
		ids[m.ID] = struct{}{}
	}
	return ids
}
