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
	"context"
	"fmt"
	"sync"
)

type testRegistry struct {
	directories []*Directory
	listErr     error
}

func (r *testRegistry) Directories(ctx context.Context) ([]*Directory, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.directories, nil
}

func (r *testRegistry) Directory(ctx context.Context, id string) (*Directory, error) {
	for _, d := range r.directories {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("directory %s: %w", id, ErrNotFound)
}

func (r *testRegistry) Scope(tenant, product string) Registry {
	scoped := &testRegistry{listErr: r.listErr}
	for _, d := range r.directories {
		if d.Tenant == tenant && d.Product == product {
			scoped.directories = append(scoped.directories, d)
		}
	}
	return scoped
}

type testAdapter struct {
	// key: directory ID
	groups     map[string][]*Group
	groupsErrs map[string]error
	// key: group ID
	members     map[string][]*Member
	membersErrs map[string]error
	// panics when fetching members of this group
	panicGroup string
	mutex      sync.RWMutex
}

func (a *testAdapter) Groups(ctx context.Context, directory *Directory) ([]*Group, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if err, ok := a.groupsErrs[directory.ID]; ok {
		return nil, err
	}
	return a.groups[directory.ID], nil
}

func (a *testAdapter) GroupMembers(ctx context.Context, directory *Directory, group *Group) ([]*Member, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if group.ID == a.panicGroup && a.panicGroup != "" {
		panic("injected panic")
	}
	if err, ok := a.membersErrs[group.ID]; ok {
		return nil, err
	}
	return a.members[group.ID], nil
}

func (a *testAdapter) setGroups(directoryID string, groups []*Group) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.groups[directoryID] = groups
}

func (a *testAdapter) setMembers(groupID string, ids ...string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	members := make([]*Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, &Member{ID: id})
	}
	a.members[groupID] = members
}

func testMembers(ids ...string) []*Member {
	members := make([]*Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, &Member{ID: id})
	}
	return members
}

type testStore struct {
	// key: directory ID, then group ID
	members      map[string]map[string]MemberIDSet
	membersErrs  map[string]error
	setErrs      map[string]error
	groupsErrs   map[string]error
	setCallCount int
	mutex        sync.RWMutex
}

func newTestStore() *testStore {
	return &testStore{members: make(map[string]map[string]MemberIDSet)}
}

func (s *testStore) Members(ctx context.Context, directoryID, groupID string) (MemberIDSet, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err, ok := s.membersErrs[groupID]; ok {
		return nil, err
	}
	return s.members[directoryID][groupID].Clone(), nil
}

func (s *testStore) SetMembers(ctx context.Context, directoryID, groupID string, ids MemberIDSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err, ok := s.setErrs[groupID]; ok {
		return err
	}
	s.setCallCount++
	if _, ok := s.members[directoryID]; !ok {
		s.members[directoryID] = make(map[string]MemberIDSet)
	}
	s.members[directoryID][groupID] = ids.Clone()
	return nil
}

func (s *testStore) Groups(ctx context.Context, directoryID string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err, ok := s.groupsErrs[directoryID]; ok {
		return nil, err
	}
	groups := make([]string, 0, len(s.members[directoryID]))
	for id, members := range s.members[directoryID] {
		if len(members) > 0 {
			groups = append(groups, id)
		}
	}
	return groups, nil
}

// snapshot returns the stored member IDs as sorted slices, keyed by
// "directory/group".
func (s *testStore) snapshot() map[string][]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make(map[string][]string)
	for dirID, groups := range s.members {
		for groupID, ids := range groups {
			out[dirID+"/"+groupID] = ids.Sorted()
		}
	}
	return out
}

type testHandler struct {
	// key: group ID + "/" + operation
	errs     map[string]error
	statuses map[string]int
	requests []*SyncRequest
	mutex    sync.Mutex
}

func (h *testHandler) Handle(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.requests = append(h.requests, req)
	key := req.ResourceID
	if req.Body != nil && len(req.Body.Operations) > 0 {
		key = key + "/" + req.Body.Operations[0].Op
	}
	if err, ok := h.errs[key]; ok {
		return nil, err
	}
	if status, ok := h.statuses[key]; ok {
		return &SyncResponse{Status: status}, nil
	}
	return &SyncResponse{Status: 200}, nil
}

// calls returns "directory/group/op:ids" for every request received.
func (h *testHandler) calls() []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out := make([]string, 0, len(h.requests))
	for _, req := range h.requests {
		for _, op := range req.Body.Operations {
			ids := make([]string, 0, len(op.Value))
			for _, v := range op.Value {
				ids = append(ids, v.Value)
			}
			out = append(out, fmt.Sprintf("%s/%s/%s:%v", req.DirectoryID, req.ResourceID, op.Op, ids))
		}
	}
	return out
}

type testObserver struct {
	observations []*Observation
	mutex        sync.Mutex
}

func (o *testObserver) Observe(ctx context.Context, obs *Observation) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.observations = append(o.observations, obs)
}

func (o *testObserver) count(kind ObservationKind) int {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	var n int
	for _, obs := range o.observations {
		if obs.Kind == kind {
			n++
		}
	}
	return n
}

type testEvents struct {
	events []*DispatchEvent
	mutex  sync.Mutex
}

func (e *testEvents) callback(ctx context.Context, event *DispatchEvent) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.events = append(e.events, event)
}
