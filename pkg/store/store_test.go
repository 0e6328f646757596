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

package store

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/testutil"
)

func newTestSQLStore(tb testing.TB) *SQLStore {
	tb.Helper()

	s, err := Open(DriverSQLite, filepath.Join(tb.TempDir(), "dsync.db"))
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := s.Close(); err != nil {
			tb.Errorf("failed to close store: %v", err)
		}
	})
	if err := s.CreateSchema(tb.Context()); err != nil {
		tb.Fatal(err)
	}
	return s
}

func TestMembershipStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(testing.TB) dirsync.MembershipStore{
		"memory": func(testing.TB) dirsync.MembershipStore { return NewMemoryStore() },
		"sqlite": func(tb testing.TB) dirsync.MembershipStore { return newTestSQLStore(tb) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			s := newStore(t)

			got, err := s.Members(ctx, "d1", "g1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 0 {
				t.Errorf("unknown group got members %v, want none", got.Sorted())
			}

			if err := s.SetMembers(ctx, "d1", "g1", dirsync.NewMemberIDSet("u1", "u2", "u3")); err != nil {
				t.Fatal(err)
			}
			if err := s.SetMembers(ctx, "d1", "g2", dirsync.NewMemberIDSet("u1")); err != nil {
				t.Fatal(err)
			}
			if err := s.SetMembers(ctx, "d2", "g1", dirsync.NewMemberIDSet("u9")); err != nil {
				t.Fatal(err)
			}

			// Replace the whole set.
			if err := s.SetMembers(ctx, "d1", "g1", dirsync.NewMemberIDSet("u2", "u3", "u4")); err != nil {
				t.Fatal(err)
			}
			got, err = s.Members(ctx, "d1", "g1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"u2", "u3", "u4"}, got.Sorted()); diff != "" {
				t.Errorf("members of d1/g1 (-want, +got):\n%s", diff)
			}

			// Directories do not leak into each other.
			got, err = s.Members(ctx, "d2", "g1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"u9"}, got.Sorted()); diff != "" {
				t.Errorf("members of d2/g1 (-want, +got):\n%s", diff)
			}

			groups, err := s.Groups(ctx, "d1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"g1", "g2"}, groups); diff != "" {
				t.Errorf("groups of d1 (-want, +got):\n%s", diff)
			}

			// Emptying a group drops it from the directory's groups.
			if err := s.SetMembers(ctx, "d1", "g2", dirsync.NewMemberIDSet()); err != nil {
				t.Fatal(err)
			}
			groups, err = s.Groups(ctx, "d1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"g1"}, groups); diff != "" {
				t.Errorf("groups of d1 after emptying g2 (-want, +got):\n%s", diff)
			}

			groups, err = s.Groups(ctx, "d3")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{}, groups); diff != "" {
				t.Errorf("groups of unknown directory (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	s := NewMemoryStore()
	ids := dirsync.NewMemberIDSet("u1")
	if err := s.SetMembers(ctx, "d1", "g1", ids); err != nil {
		t.Fatal(err)
	}
	ids["u2"] = struct{}{}

	got, err := s.Members(ctx, "d1", "g1")
	if err != nil {
		t.Fatal(err)
	}
	got["u3"] = struct{}{}

	again, err := s.Members(ctx, "d1", "g1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"u1"}, again.Sorted()); diff != "" {
		t.Errorf("stored members were mutated (-want, +got):\n%s", diff)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	_, err := Open("mysql", "")
	if diff := testutil.DiffErrString(err, "failed to open mysql database"); diff != "" {
		t.Error(diff)
	}

	_, err = NewSQLStore(nil)
	if diff := testutil.DiffErrString(err, "bun db is required"); diff != "" {
		t.Error(diff)
	}
}
