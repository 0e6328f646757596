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

package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/directory-sync/pkg/registry"
	"github.com/abcxyz/pkg/testutil"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type receivedEvent struct {
	Event      *Event
	Signature  string
	Verified   bool
	DeliveryID bool
}

type fakeSubscriber struct {
	secret string
	// key: event name
	statuses map[string]int

	mu     sync.Mutex
	events []*receivedEvent
}

func (s *fakeSubscriber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	var event Event
	if err := json.Unmarshal(b, &event); err != nil {
		w.WriteHeader(400)
		return
	}
	sig := r.Header.Get(SignatureHeader)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &receivedEvent{
		Event:      &event,
		Signature:  sig,
		Verified:   Verify(s.secret, sig, b, testNow, time.Minute) == nil,
		DeliveryID: r.Header.Get(DeliveryHeader) != "",
	})
	if status, ok := s.statuses[event.Event]; ok {
		w.WriteHeader(status)
	}
}

func (s *fakeSubscriber) received() []*receivedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func testRequest(secret string, payloads ...*dirsync.ChangePayload) *dirsync.SyncRequest {
	req := dirsync.NewSyncRequest(&dirsync.Directory{ID: "d1", Secret: secret}, payloads[0])
	for _, p := range payloads[1:] {
		req.Body.Operations = append(req.Body.Operations, p.PatchBody().Operations...)
	}
	return req
}

func TestHandler_Handle(t *testing.T) {
	t.Parallel()

	add := &dirsync.ChangePayload{Operation: dirsync.OperationAdd, GroupID: "g1", MemberIDs: []string{"u4"}}
	remove := &dirsync.ChangePayload{Operation: dirsync.OperationRemove, GroupID: "g1", MemberIDs: []string{"u1", "u2"}}

	cases := []struct {
		name       string
		noEndpoint bool
		statuses   map[string]int
		req        *dirsync.SyncRequest
		wantStatus int
		wantEvents []*receivedEvent
		wantErr    string
	}{
		{
			name:       "delivers_one_event_per_operation",
			req:        testRequest("api-secret", remove, add),
			wantStatus: http.StatusOK,
			wantEvents: []*receivedEvent{
				{
					Event: &Event{
						DirectoryID: "d1",
						Event:       EventUserRemoved,
						Data:        &EventData{GroupID: "g1", MemberIDs: []string{"u1", "u2"}},
					},
					Verified:   true,
					DeliveryID: true,
				},
				{
					Event: &Event{
						DirectoryID: "d1",
						Event:       EventUserAdded,
						Data:        &EventData{GroupID: "g1", MemberIDs: []string{"u4"}},
					},
					Verified:   true,
					DeliveryID: true,
				},
			},
		},
		{
			name:       "no_webhook_endpoint",
			noEndpoint: true,
			req:        testRequest("api-secret", add),
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong_secret",
			req:        testRequest("wrong", add),
			wantStatus: http.StatusUnauthorized,
			wantErr:    "unauthorized",
		},
		{
			name: "unknown_directory",
			req: &dirsync.SyncRequest{
				DirectoryID:  "d9",
				ResourceType: dirsync.ResourceTypeGroups,
				Method:       http.MethodPatch,
				APISecret:    "api-secret",
			},
			wantStatus: http.StatusNotFound,
			wantErr:    "failed to get directory d9",
		},
		{
			name: "invalid_body",
			req: &dirsync.SyncRequest{
				DirectoryID:  "d1",
				ResourceType: dirsync.ResourceTypeGroups,
				ResourceID:   "g1",
				Method:       http.MethodPatch,
				APISecret:    "api-secret",
				Body:         &dirsync.PatchBody{},
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid patch body",
		},
		{
			name: "nil_operation",
			req: &dirsync.SyncRequest{
				DirectoryID:  "d1",
				ResourceType: dirsync.ResourceTypeGroups,
				ResourceID:   "g1",
				Method:       http.MethodPatch,
				APISecret:    "api-secret",
				Body: &dirsync.PatchBody{
					Schemas:    []string{dirsync.PatchOpSchema},
					Operations: []*dirsync.PatchOperation{nil},
				},
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    "operation 0 is empty",
		},
		{
			name: "unsupported_method",
			req: &dirsync.SyncRequest{
				DirectoryID:  "d1",
				ResourceType: dirsync.ResourceTypeGroups,
				Method:       http.MethodPut,
				APISecret:    "api-secret",
			},
			wantStatus: http.StatusMethodNotAllowed,
			wantErr:    "unsupported request PUT groups",
		},
		{
			name:       "subscriber_rejects_one_event",
			statuses:   map[string]int{EventUserAdded: http.StatusInternalServerError},
			req:        testRequest("api-secret", remove, add),
			wantStatus: http.StatusBadGateway,
			wantEvents: []*receivedEvent{
				{
					Event: &Event{
						DirectoryID: "d1",
						Event:       EventUserRemoved,
						Data:        &EventData{GroupID: "g1", MemberIDs: []string{"u1", "u2"}},
					},
					Verified:   true,
					DeliveryID: true,
				},
				{
					Event: &Event{
						DirectoryID: "d1",
						Event:       EventUserAdded,
						Data:        &EventData{GroupID: "g1", MemberIDs: []string{"u4"}},
					},
					Verified:   true,
					DeliveryID: true,
				},
			},
			wantErr: "failed to deliver group.user_added for group g1: endpoint responded with status 500",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			subscriber := &fakeSubscriber{secret: "hook-secret", statuses: tc.statuses}
			srv := httptest.NewServer(subscriber)
			t.Cleanup(srv.Close)

			directory := &dirsync.Directory{
				ID:            "d1",
				Tenant:        "t1",
				Product:       "p1",
				Type:          "scim",
				Secret:        "api-secret",
				WebhookSecret: "hook-secret",
			}
			if !tc.noEndpoint {
				directory.WebhookEndpoint = srv.URL + "/hooks"
			}
			reg, err := registry.New([]*dirsync.Directory{directory})
			if err != nil {
				t.Fatalf("registry.New() unexpected error: %v", err)
			}

			handler := NewHandler(reg,
				WithHTTPClient(srv.Client()),
				WithClock(func() time.Time { return testNow }))

			resp, err := handler.Handle(t.Context(), tc.req)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Error(diff)
			}
			if resp == nil {
				t.Fatal("Handle() returned nil response")
			}
			if got, want := resp.Status, tc.wantStatus; got != want {
				t.Errorf("Handle() status got %d, want %d", got, want)
			}

			opt := cmp.FilterPath(func(p cmp.Path) bool {
				return p.Last().String() == ".Signature"
			}, cmp.Ignore())
			if diff := cmp.Diff(tc.wantEvents, subscriber.received(), opt); diff != "" {
				t.Errorf("received events unexpected result (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestHandler_UnauthorizedIsSentinel(t *testing.T) {
	t.Parallel()

	reg, err := registry.New([]*dirsync.Directory{{ID: "d1", Tenant: "t1", Product: "p1", Type: "scim", Secret: "s"}})
	if err != nil {
		t.Fatalf("registry.New() unexpected error: %v", err)
	}
	payload := &dirsync.ChangePayload{Operation: dirsync.OperationAdd, GroupID: "g1", MemberIDs: []string{"u1"}}

	_, err = NewHandler(reg).Handle(t.Context(), testRequest("not-s", payload))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Handle() error got %v, want ErrUnauthorized", err)
	}
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	body := []byte(`{"directory_id":"d1"}`)
	sig := Sign("secret", testNow, body)

	cases := []struct {
		name      string
		secret    string
		header    string
		body      []byte
		now       time.Time
		tolerance time.Duration
		wantErr   string
	}{
		{
			name:      "valid",
			secret:    "secret",
			header:    sig,
			body:      body,
			now:       testNow.Add(30 * time.Second),
			tolerance: time.Minute,
		},
		{
			name:    "wrong_secret",
			secret:  "other",
			header:  sig,
			body:    body,
			now:     testNow,
			wantErr: "signature mismatch",
		},
		{
			name:    "tampered_body",
			secret:  "secret",
			header:  sig,
			body:    []byte(`{"directory_id":"d2"}`),
			now:     testNow,
			wantErr: "signature mismatch",
		},
		{
			name:      "expired",
			secret:    "secret",
			header:    sig,
			body:      body,
			now:       testNow.Add(time.Hour),
			tolerance: time.Minute,
			wantErr:   "signature older than 1m0s",
		},
		{
			name:    "missing_parts",
			secret:  "secret",
			header:  "s=abc",
			body:    body,
			now:     testNow,
			wantErr: "missing timestamp or signature",
		},
		{
			name:    "malformed_signature",
			secret:  "secret",
			header:  "t=1,s=zz",
			body:    body,
			now:     testNow,
			wantErr: "malformed signature",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Verify(tc.secret, tc.header, tc.body, tc.now, tc.tolerance)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Error(diff)
			}
			if err != nil && !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Verify() error got %v, want ErrInvalidSignature", err)
			}
		})
	}
}
