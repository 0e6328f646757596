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

// Package store provides implementations of the membership snapshot store.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

// Ensure we conform to the interface.
var _ dirsync.MembershipStore = (*MemoryStore)(nil)

type memoryKey struct {
	directoryID string
	groupID     string
}

// MemoryStore keeps the snapshot in process memory. It is lost on restart and
// is meant for tests and single-shot runs.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[memoryKey]dirsync.MemberIDSet
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[memoryKey]dirsync.MemberIDSet)}
}

// Members returns a copy of the stored member IDs of a group.
func (s *MemoryStore) Members(ctx context.Context, directoryID, groupID string) (dirsync.MemberIDSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[memoryKey{directoryID, groupID}].Clone(), nil
}

// SetMembers replaces the stored member IDs of a group. An empty set removes
// the group.
func (s *MemoryStore) SetMembers(ctx context.Context, directoryID, groupID string, ids dirsync.MemberIDSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{directoryID, groupID}
	if len(ids) == 0 {
		delete(s.members, key)
		return nil
	}
	s.members[key] = ids.Clone()
	return nil
}

// Groups returns the sorted IDs of groups with stored members.
func (s *MemoryStore) Groups(ctx context.Context, directoryID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]string, 0)
	for key := range s.members {
		if key.directoryID == directoryID {
			groups = append(groups, key.groupID)
		}
	}
	slices.Sort(groups)
	return groups, nil
}
