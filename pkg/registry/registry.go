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

// Package registry provides a Directory Registry backed by a static manifest.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

// Ensure we conform to the interface.
var _ dirsync.Registry = (*StaticRegistry)(nil)

// StaticRegistry is an immutable dirsync.Registry.
type StaticRegistry struct {
	directories []*dirsync.Directory
	byID        map[string]*dirsync.Directory
}

// New creates a StaticRegistry holding the given directories in order. Every
// directory must be valid and IDs must be unique.
func New(directories []*dirsync.Directory) (*StaticRegistry, error) {
	r := &StaticRegistry{
		directories: make([]*dirsync.Directory, 0, len(directories)),
		byID:        make(map[string]*dirsync.Directory, len(directories)),
	}
	var merr error
	for i, d := range directories {
		if d == nil {
			merr = errors.Join(merr, fmt.Errorf("directory %d is empty", i))
			continue
		}
		if err := d.Validate(); err != nil {
			merr = errors.Join(merr, err)
			continue
		}
		if _, ok := r.byID[d.ID]; ok {
			merr = errors.Join(merr, fmt.Errorf("duplicate directory id %q", d.ID))
			continue
		}
		r.byID[d.ID] = d
		r.directories = append(r.directories, d)
	}
	if merr != nil {
		return nil, merr
	}
	return r, nil
}

// Directories returns every directory of the registry.
func (r *StaticRegistry) Directories(ctx context.Context) ([]*dirsync.Directory, error) {
	out := make([]*dirsync.Directory, len(r.directories))
	copy(out, r.directories)
	return out, nil
}

// Directory returns the directory with the given ID.
func (r *StaticRegistry) Directory(ctx context.Context, id string) (*dirsync.Directory, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("directory %q: %w", id, dirsync.ErrNotFound)
	}
	return d, nil
}

// Scope returns the directories of one tenant and product. An empty tenant or
// product matches any value.
func (r *StaticRegistry) Scope(tenant, product string) dirsync.Registry {
	scoped := &StaticRegistry{byID: make(map[string]*dirsync.Directory)}
	for _, d := range r.directories {
		if tenant != "" && d.Tenant != tenant {
			continue
		}
		if product != "" && d.Product != product {
			continue
		}
		scoped.directories = append(scoped.directories, d)
		scoped.byID[d.ID] = d
	}
	return scoped
}
