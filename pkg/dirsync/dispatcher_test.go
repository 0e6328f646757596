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
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/abcxyz/pkg/testutil"
)

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	directory := &Directory{ID: "d1", Tenant: "t1", Product: "p1", Type: "google", Secret: "s3cr3t"}
	group := &Group{ID: "g1", Name: "Group 1"}

	cases := []struct {
		name      string
		handler   *testHandler
		group     *Group
		payload   *ChangePayload
		wantReq   *SyncRequest
		wantEvent *DispatchEvent
		wantErr   string
	}{
		{
			name:    "success",
			handler: &testHandler{},
			group:   group,
			payload: &ChangePayload{Operation: OperationAdd, GroupID: "g1", MemberIDs: []string{"u4"}},
			wantReq: &SyncRequest{
				DirectoryID:  "d1",
				ResourceType: "groups",
				ResourceID:   "g1",
				Method:       http.MethodPatch,
				APISecret:    "s3cr3t",
				Query:        map[string]string{},
				Body: &PatchBody{
					Schemas: []string{PatchOpSchema},
					Operations: []*PatchOperation{{
						Op:    "add",
						Path:  "members",
						Value: []*PatchValue{{Value: "u4"}},
					}},
				},
			},
			wantEvent: &DispatchEvent{
				DirectoryID: "d1",
				Tenant:      "t1",
				Product:     "p1",
				GroupID:     "g1",
				GroupName:   "Group 1",
				Operation:   OperationAdd,
				MemberIDs:   []string{"u4"},
				Status:      200,
				Time:        now,
			},
		},
		{
			name: "handler_error",
			handler: &testHandler{
				errs: map[string]error{"g1/remove": fmt.Errorf("injected handler error")},
			},
			group:   group,
			payload: &ChangePayload{Operation: OperationRemove, GroupID: "g1", MemberIDs: []string{"u1"}},
			wantEvent: &DispatchEvent{
				DirectoryID: "d1",
				Tenant:      "t1",
				Product:     "p1",
				GroupID:     "g1",
				GroupName:   "Group 1",
				Operation:   OperationRemove,
				MemberIDs:   []string{"u1"},
				Error:       "injected handler error",
				Time:        now,
			},
			wantErr: "injected handler error",
		},
		{
			name: "handler_error_status",
			handler: &testHandler{
				statuses: map[string]int{"g1/add": http.StatusBadGateway},
			},
			group:   group,
			payload: &ChangePayload{Operation: OperationAdd, GroupID: "g1", MemberIDs: []string{"u4"}},
			wantEvent: &DispatchEvent{
				DirectoryID: "d1",
				Tenant:      "t1",
				Product:     "p1",
				GroupID:     "g1",
				GroupName:   "Group 1",
				Operation:   OperationAdd,
				MemberIDs:   []string{"u4"},
				Status:      http.StatusBadGateway,
				Error:       "request handler responded with status 502",
				Time:        now,
			},
			wantErr: "status 502",
		},
		{
			name:    "group_mismatch",
			handler: &testHandler{},
			group:   &Group{ID: "g2"},
			payload: &ChangePayload{Operation: OperationAdd, GroupID: "g1", MemberIDs: []string{"u4"}},
			wantErr: "payload for group g1 dispatched for group g2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			events := &testEvents{}
			d := NewDispatcher(tc.handler, events.callback, WithClock(func() time.Time { return now }))

			req, err := d.Dispatch(t.Context(), directory, tc.group, tc.payload)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Error(diff)
			}
			if tc.wantReq != nil {
				if diff := cmp.Diff(tc.wantReq, req); diff != "" {
					t.Errorf("unexpected request (-want, +got):\n%s", diff)
				}
			}

			var wantEvents []*DispatchEvent
			if tc.wantEvent != nil {
				wantEvents = []*DispatchEvent{tc.wantEvent}
			}
			if diff := cmp.Diff(wantEvents, events.events, cmpopts.IgnoreFields(DispatchEvent{}, "ID")); diff != "" {
				t.Errorf("unexpected events (-want, +got):\n%s", diff)
			}
			for _, e := range events.events {
				if e.ID == "" {
					t.Errorf("event has no id")
				}
			}
			if got, want := len(tc.handler.requests), len(wantEvents); got != want {
				t.Errorf("handler got %d requests, want %d", got, want)
			}
		})
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	t.Parallel()

	handler := RequestHandlerFunc(func(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err() //nolint:wrapcheck // Want passthrough
	})
	d := NewDispatcher(handler, nil, WithDispatchTimeout(10*time.Millisecond))

	_, err := d.Dispatch(t.Context(), &Directory{ID: "d1"}, &Group{ID: "g1"},
		&ChangePayload{Operation: OperationAdd, GroupID: "g1", MemberIDs: []string{"u1"}})
	if diff := testutil.DiffErrString(err, "context deadline exceeded"); diff != "" {
		t.Error(diff)
	}
}
