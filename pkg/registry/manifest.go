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
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

// Manifest is the on-disk list of configured directories.
//
//	directories:
//	- id: dir_123
//	  tenant: acme
//	  product: portal
//	  type: google
//	  secret: ${DIR_123_SECRET}
//	  config:
//	    customer: my_customer
type Manifest struct {
	Directories []*dirsync.Directory `yaml:"directories"`
}

// LoadManifest reads the manifest at path and builds a registry from it.
// References of the form ${VAR} in secrets and config values are expanded
// from the process environment.
func LoadManifest(fs afero.Fs, path string) (*StaticRegistry, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	directories, err := ParseManifest(b, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return New(directories)
}

// ParseManifest unmarshals a manifest and expands ${VAR} references in secrets
// and config values with getenv.
func ParseManifest(b []byte, getenv func(string) string) ([]*dirsync.Directory, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	for _, d := range m.Directories {
		if d == nil {
			continue
		}
		d.Secret = os.Expand(d.Secret, getenv)
		d.WebhookSecret = os.Expand(d.WebhookSecret, getenv)
		for k, v := range d.Config {
			d.Config[k] = os.Expand(v, getenv)
		}
	}
	return m.Directories, nil
}
