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
	"maps"
	"slices"

	"github.com/abcxyz/pkg/sets"
)

// MemberIDSet is an unordered set of member identifiers.
type MemberIDSet map[string]struct{}

// NewMemberIDSet creates a set holding the given IDs.
func NewMemberIDSet(ids ...string) MemberIDSet {
	s := make(MemberIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s MemberIDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the IDs in ascending order. The order only serves stable
// output; the set itself has none.
func (s MemberIDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Equal reports whether both sets hold the same IDs.
func (s MemberIDSet) Equal(other MemberIDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the set. Cloning nil yields an empty set.
func (s MemberIDSet) Clone() MemberIDSet {
	out := make(MemberIDSet, len(s))
	maps.Copy(out, s)
	return out
}

// Diff is the symmetric difference between a stored and a provider member set.
// An ID never appears in both Added and Removed.
type Diff struct {
	// Added holds IDs the provider reports that are not stored.
	Added MemberIDSet
	// Removed holds stored IDs the provider no longer reports.
	Removed MemberIDSet
}

// ComputeDiff returns removed = stored \ provider and added = provider \ stored.
// Empty or nil inputs are valid.
func ComputeDiff(stored, provider MemberIDSet) *Diff {
	return &Diff{
		Added:   MemberIDSet(sets.SubtractMapKeys(provider, stored)),
		Removed: MemberIDSet(sets.SubtractMapKeys(stored, provider)),
	}
}

// Empty reports whether the diff has no changes.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}
