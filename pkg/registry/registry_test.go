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

package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/testutil"
)

func testDirectory(id, tenant, product string) *dirsync.Directory {
	return &dirsync.Directory{ID: id, Tenant: tenant, Product: product, Type: "google", Secret: "s"}
}

func TestNew(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		directories []*dirsync.Directory
		wantIDs     []string
		wantErr     string
	}{
		{
			name: "success",
			directories: []*dirsync.Directory{
				testDirectory("d2", "t1", "p1"),
				testDirectory("d1", "t1", "p1"),
			},
			wantIDs: []string{"d2", "d1"},
		},
		{
			name: "duplicate_id",
			directories: []*dirsync.Directory{
				testDirectory("d1", "t1", "p1"),
				testDirectory("d1", "t2", "p1"),
			},
			wantErr: `duplicate directory id "d1"`,
		},
		{
			name:        "invalid_directory",
			directories: []*dirsync.Directory{{ID: "d1", Tenant: "t1", Product: "p1", Type: "google"}},
			wantErr:     "secret is required",
		},
		{
			name:        "nil_directory",
			directories: []*dirsync.Directory{nil},
			wantErr:     "directory 0 is empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := New(tc.directories)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if err != nil {
				return
			}
			dirs, err := r.Directories(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			gotIDs := make([]string, 0, len(dirs))
			for _, d := range dirs {
				gotIDs = append(gotIDs, d.ID)
			}
			if diff := cmp.Diff(tc.wantIDs, gotIDs); diff != "" {
				t.Errorf("directories (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestStaticRegistry_DirectoryAndScope(t *testing.T) {
	t.Parallel()

	r, err := New([]*dirsync.Directory{
		testDirectory("d1", "t1", "p1"),
		testDirectory("d2", "t1", "p2"),
		testDirectory("d3", "t2", "p1"),
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := r.Directory(t.Context(), "d2")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := d.ID, "d2"; got != want {
		t.Errorf("Directory got %q, want %q", got, want)
	}
	if _, err := r.Directory(t.Context(), "d9"); !errors.Is(err, dirsync.ErrNotFound) {
		t.Errorf("got error %v, want %v", err, dirsync.ErrNotFound)
	}

	cases := []struct {
		name    string
		tenant  string
		product string
		wantIDs []string
	}{
		{name: "tenant_and_product", tenant: "t1", product: "p2", wantIDs: []string{"d2"}},
		{name: "tenant_only", tenant: "t1", wantIDs: []string{"d1", "d2"}},
		{name: "product_only", product: "p1", wantIDs: []string{"d1", "d3"}},
		{name: "no_match", tenant: "t9", wantIDs: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			scoped := r.Scope(tc.tenant, tc.product)
			dirs, err := scoped.Directories(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			gotIDs := make([]string, 0, len(dirs))
			for _, d := range dirs {
				gotIDs = append(gotIDs, d.ID)
			}
			if diff := cmp.Diff(tc.wantIDs, gotIDs); diff != "" {
				t.Errorf("scoped directories (-want, +got):\n%s", diff)
			}
			// Lookups outside the scope are not found.
			if _, err := scoped.Directory(t.Context(), "d3"); tc.tenant == "t1" && !errors.Is(err, dirsync.ErrNotFound) {
				t.Errorf("got error %v, want %v", err, dirsync.ErrNotFound)
			}
		})
	}
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	manifest := `
directories:
- id: d1
  name: Acme Google
  tenant: acme
  product: portal
  type: google
  secret: ${D1_SECRET}
  webhook_endpoint: https://example.com/hook
  webhook_secret: $HOOK_SECRET
  config:
    customer: my_customer
    subject: ${ADMIN}
`
	env := map[string]string{
		"D1_SECRET":   "s3cr3t",
		"HOOK_SECRET": "h00k",
		"ADMIN":       "admin@example.com",
	}
	getenv := func(k string) string { return env[k] }

	got, err := ParseManifest([]byte(manifest), getenv)
	if err != nil {
		t.Fatal(err)
	}
	want := []*dirsync.Directory{{
		ID:              "d1",
		Name:            "Acme Google",
		Tenant:          "acme",
		Product:         "portal",
		Type:            "google",
		Secret:          "s3cr3t",
		WebhookEndpoint: "https://example.com/hook",
		WebhookSecret:   "h00k",
		Config: map[string]string{
			"customer": "my_customer",
			"subject":  "admin@example.com",
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseManifest (-want, +got):\n%s", diff)
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/dsync/directories.yaml", []byte(`
directories:
- id: d1
  tenant: acme
  product: portal
  type: gitlab
  secret: plain
`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/etc/dsync/broken.yaml", []byte("directories: [:"), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadManifest(fs, "/etc/dsync/directories.yaml")
	if err != nil {
		t.Fatal(err)
	}
	d, err := r.Directory(t.Context(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := d.Type, "gitlab"; got != want {
		t.Errorf("type got %q, want %q", got, want)
	}

	_, err = LoadManifest(fs, "/etc/dsync/broken.yaml")
	if diff := testutil.DiffErrString(err, "failed to unmarshal manifest"); diff != "" {
		t.Error(diff)
	}
	_, err = LoadManifest(fs, "/etc/dsync/missing.yaml")
	if diff := testutil.DiffErrString(err, "failed to read manifest"); diff != "" {
		t.Error(diff)
	}
}
