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

package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/abcxyz/pkg/testutil"
)

// fakeSCIMServer serves a single group with two members.
func fakeSCIMServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /scim/v2/Groups", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalResults":1,"startIndex":1,"itemsPerPage":1,"Resources":[{"id":"g1","displayName":"Engineering"}]}`)
	})
	mux.HandleFunc("GET /scim/v2/Groups/g1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "g1",
			"members": []map[string]string{
				{"value": "u1"},
				{"value": "u2"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testManifest(scimURL string) string {
	return fmt.Sprintf(`
directories:
  - id: d1
    tenant: acme
    product: portal
    type: scim
    secret: api-secret
    config:
      base_url: %[1]s/scim/v2
  - id: d2
    tenant: globex
    product: portal
    type: scim
    secret: other-secret
    config:
      base_url: %[1]s/scim/v2
`, scimURL)
}

func TestSyncRunCommand(t *testing.T) {
	t.Parallel()

	srv := fakeSCIMServer(t)

	cases := []struct {
		name    string
		args    []string
		files   map[string]string
		wantOut string
		wantErr string
	}{
		{
			name:    "once",
			args:    []string{"-manifest", "/etc/dirsync/directories.yaml", "-once"},
			files:   map[string]string{"/etc/dirsync/directories.yaml": testManifest(srv.URL)},
			wantOut: "reconciled 2 directories",
		},
		{
			name:    "scoped_to_tenant",
			args:    []string{"-manifest", "/etc/dirsync/directories.yaml", "-tenant", "acme", "-once"},
			files:   map[string]string{"/etc/dirsync/directories.yaml": testManifest(srv.URL)},
			wantOut: "reconciled 1 directories",
		},
		{
			name:    "scoped_to_unknown_product",
			args:    []string{"-manifest", "/etc/dirsync/directories.yaml", "-product", "billing", "-once"},
			files:   map[string]string{"/etc/dirsync/directories.yaml": testManifest(srv.URL)},
			wantOut: "reconciled 0 directories",
		},
		{
			name:    "missing_manifest_flag",
			args:    []string{"-once"},
			wantErr: "-manifest is required",
		},
		{
			name:    "manifest_not_found",
			args:    []string{"-manifest", "/nope.yaml", "-once"},
			wantErr: "failed to read manifest",
		},
		{
			name:    "scim_handler_without_url",
			args:    []string{"-manifest", "/m.yaml", "-handler", "scim", "-once"},
			wantErr: "-scim-forward-url is required",
		},
		{
			name:    "unexpected_args",
			args:    []string{"-manifest", "/m.yaml", "extra"},
			wantErr: `unexpected arguments: ["extra"]`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			for path, content := range tc.files {
				if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			cmd := &SyncRunCommand{testFS: fs}
			_, stdout, _ := cmd.Pipe()

			err := cmd.Run(t.Context(), tc.args)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if got := strings.TrimSpace(stdout.String()); got != tc.wantOut {
				t.Errorf("output got %q, want %q", got, tc.wantOut)
			}
		})
	}
}

func TestSyncDirectoryCommand(t *testing.T) {
	t.Parallel()

	srv := fakeSCIMServer(t)

	cases := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{
			name:    "success",
			args:    []string{"-manifest", "/m.yaml", "-id", "d1"},
			wantOut: "reconciled directory d1",
		},
		{
			name:    "unknown_directory",
			args:    []string{"-manifest", "/m.yaml", "-id", "d9"},
			wantErr: "failed to get directory d9",
		},
		{
			name:    "outside_scope",
			args:    []string{"-manifest", "/m.yaml", "-tenant", "acme", "-id", "d2"},
			wantErr: "failed to get directory d2",
		},
		{
			name:    "missing_id",
			args:    []string{"-manifest", "/m.yaml"},
			wantErr: "-id is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/m.yaml", []byte(testManifest(srv.URL)), 0o600); err != nil {
				t.Fatal(err)
			}

			cmd := &SyncDirectoryCommand{testFS: fs}
			_, stdout, _ := cmd.Pipe()

			err := cmd.Run(t.Context(), tc.args)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if got := strings.TrimSpace(stdout.String()); got != tc.wantOut {
				t.Errorf("output got %q, want %q", got, tc.wantOut)
			}
		})
	}
}

func TestConnectionsValidateCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		files   map[string]string
		wantOut string
		wantErr string
	}{
		{
			name: "valid",
			files: map[string]string{
				"/conns/a.yaml": "tenant: acme\nproduct: portal\n",
				"/conns/a.xml":  "<EntityDescriptor/>",
			},
			wantOut: "/conns/a.yaml\tsaml\tacme/portal",
		},
		{
			name: "missing_metadata",
			files: map[string]string{
				"/conns/a.yaml": "tenant: acme\nproduct: portal\n",
				"/conns/b.yaml": "tenant: acme\nproduct: portal\noidcDiscoveryUrl: https://idp.example.com\n",
			},
			wantOut: "/conns/b.yaml\toidc\tacme/portal",
			wantErr: "missing raw metadata file /conns/a.xml",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			for path, content := range tc.files {
				if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			cmd := &ConnectionsValidateCommand{testFS: fs}
			_, stdout, _ := cmd.Pipe()

			err := cmd.Run(t.Context(), []string{"-dir", "/conns"})
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if got := strings.TrimSpace(stdout.String()); got != tc.wantOut {
				t.Errorf("output got %q, want %q", got, tc.wantOut)
			}
		})
	}
}
