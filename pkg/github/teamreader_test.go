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

package github

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/go-github/v61/github"
	"google.golang.org/protobuf/proto"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/testutil"
)

func testGitHubData() *GitHubData {
	return &GitHubData{
		orgs: map[string]*github.Organization{
			"acme": {ID: proto.Int64(123), Login: proto.String("acme")},
		},
		teams: map[string][]*github.Team{
			"acme": {
				{ID: proto.Int64(1), Slug: proto.String("team-1")},
				{ID: proto.Int64(2), Slug: proto.String("team-2")},
				{ID: proto.Int64(3), Slug: proto.String("team-3")},
			},
		},
		teamMembers: map[string][]*github.User{
			"123:1": {
				{ID: proto.Int64(11), Login: proto.String("user-1")},
				{ID: proto.Int64(12), Login: proto.String("user-2")},
				{ID: proto.Int64(13), Login: proto.String("user-3")},
			},
			"123:2": {},
		},
		orgTokens: map[string]string{
			"acme": "acme-token",
		},
	}
}

func TestAdapter_Groups(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		directory   *dirsync.Directory
		tokenSource OrgTokenSource
		want        []string
		wantErr     string
	}{
		{
			name:        "success_multiple_pages",
			directory:   &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "acme"}},
			tokenSource: NewStaticTokenSource("acme-token"),
			want:        []string{"123:1/team-1", "123:2/team-2", "123:3/team-3"},
		},
		{
			name:        "missing_org_config",
			directory:   &dirsync.Directory{ID: "d1"},
			tokenSource: NewStaticTokenSource("acme-token"),
			wantErr:     `directory d1: config "org" is required`,
		},
		{
			name:        "unknown_org",
			directory:   &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "other"}},
			tokenSource: NewStaticTokenSource("acme-token"),
			wantErr:     "failed to get org other",
		},
		{
			name:        "bad_token",
			directory:   &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "acme"}},
			tokenSource: NewStaticTokenSource("wrong-token"),
			wantErr:     "401",
		},
		{
			name:      "token_source_error",
			directory: &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "acme"}},
			tokenSource: &fakeTokenSource{
				errs: map[string]error{"acme": fmt.Errorf("no installation")},
			},
			wantErr: "failed to get github token: no installation",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := fakeGitHub(testGitHubData())
			defer server.Close()

			adapter := NewAdapter(githubClient(server), tc.tokenSource)
			groups, err := adapter.Groups(t.Context(), tc.directory)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}

			var got []string
			for _, g := range groups {
				got = append(got, g.ID+"/"+g.Name)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Groups() unexpected result (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestAdapter_GroupMembers(t *testing.T) {
	t.Parallel()

	directory := &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "acme"}}

	cases := []struct {
		name    string
		groupID string
		want    []string
		wantErr string
	}{
		{
			name:    "success_multiple_pages",
			groupID: "123:1",
			want:    []string{"user-1", "user-2", "user-3"},
		},
		{
			name:    "empty_team",
			groupID: "123:2",
			want:    []string{},
		},
		{
			name:    "unknown_team",
			groupID: "123:9",
			wantErr: "failed to list members of team 9",
		},
		{
			name:    "malformed_id",
			groupID: "team-1",
			wantErr: "could not parse group ID team-1",
		},
		{
			name:    "malformed_team_id",
			groupID: "123:abc",
			wantErr: `invalid team ID "abc"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := fakeGitHub(testGitHubData())
			defer server.Close()

			adapter := NewAdapter(githubClient(server), NewStaticTokenSource("acme-token"))
			members, err := adapter.GroupMembers(t.Context(), directory, &dirsync.Group{ID: tc.groupID})
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if err != nil {
				return
			}

			got := make([]string, 0, len(members))
			for _, m := range members {
				got = append(got, m.ID)
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("GroupMembers() unexpected result (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestAdapter_OrgIDCached(t *testing.T) {
	t.Parallel()

	data := testGitHubData()
	server := fakeGitHub(data)
	defer server.Close()

	directory := &dirsync.Directory{ID: "d1", Config: map[string]string{ConfigOrg: "acme"}}
	adapter := NewAdapter(githubClient(server), NewStaticTokenSource("acme-token"))

	for range 3 {
		if _, err := adapter.Groups(t.Context(), directory); err != nil {
			t.Fatalf("Groups() unexpected error: %v", err)
		}
	}
	if got, want := data.orgGets.Load(), int64(1); got != want {
		t.Errorf("org lookups got %d, want %d", got, want)
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		id         string
		wantOrgID  int64
		wantTeamID int64
		wantErr    string
	}{
		{
			name:       "valid",
			id:         encode(123, 456),
			wantOrgID:  123,
			wantTeamID: 456,
		},
		{
			name:    "missing_separator",
			id:      "123",
			wantErr: "invalid group ID",
		},
		{
			name:    "bad_org_id",
			id:      "abc:1",
			wantErr: `invalid org ID "abc"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			orgID, teamID, err := parseID(tc.id)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if orgID != tc.wantOrgID || teamID != tc.wantTeamID {
				t.Errorf("parseID(%q) = (%d, %d), want (%d, %d)", tc.id, orgID, teamID, tc.wantOrgID, tc.wantTeamID)
			}
		})
	}
}
