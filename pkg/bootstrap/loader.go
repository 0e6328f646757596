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

// Package bootstrap loads statically defined SSO connections from a directory.
package bootstrap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrMissingMetadata is returned for a SAML connection definition without its
// raw metadata side file.
var ErrMissingMetadata = errors.New("missing raw metadata file")

// Connection is one statically defined SSO connection. A definition without an
// OIDC discovery URL is a SAML connection; its metadata comes from the side
// file <base name>.xml next to the definition.
type Connection struct {
	Name               string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description        string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tenant             string   `yaml:"tenant" json:"tenant"`
	Product            string   `yaml:"product" json:"product"`
	DefaultRedirectURL string   `yaml:"defaultRedirectUrl,omitempty" json:"defaultRedirectUrl,omitempty"`
	RedirectURL        []string `yaml:"redirectUrl,omitempty" json:"redirectUrl,omitempty"`

	OIDCDiscoveryURL string `yaml:"oidcDiscoveryUrl,omitempty" json:"oidcDiscoveryUrl,omitempty"`
	OIDCClientID     string `yaml:"oidcClientId,omitempty" json:"oidcClientId,omitempty"`
	OIDCClientSecret string `yaml:"oidcClientSecret,omitempty" json:"-"`

	// EncodedRawMetadata is the base64 encoded content of the side file.
	EncodedRawMetadata string `yaml:"encodedRawMetadata,omitempty" json:"encodedRawMetadata,omitempty"`

	// Source is the path of the definition file.
	Source string `yaml:"-" json:"-"`
}

// IsOIDC reports whether the connection is an OIDC connection.
func (c *Connection) IsOIDC() bool {
	return c.OIDCDiscoveryURL != ""
}

// Loader reads connection definitions from a file system.
type Loader struct {
	Fs afero.Fs
	// Getwd resolves paths starting with "./". Defaults to os.Getwd.
	Getwd func() (string, error)
}

// NewLoader creates a Loader reading from the OS file system.
func NewLoader() *Loader {
	return &Loader{Fs: afero.NewOsFs(), Getwd: os.Getwd}
}

// Load reads every *.yaml and *.yml definition in dir, in name order. Each
// invalid definition contributes one error to the joined result and is left
// out; the valid ones are returned regardless.
func (l *Loader) Load(dir string) ([]*Connection, error) {
	dir, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(l.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read connections directory %s: %w", dir, err)
	}

	var merr error
	connections := make([]*Connection, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isDefinition(entry.Name()) {
			continue
		}
		conn, err := l.loadOne(filepath.Join(dir, entry.Name()))
		if err != nil {
			merr = errors.Join(merr, err)
			continue
		}
		connections = append(connections, conn)
	}
	return connections, merr
}

func (l *Loader) loadOne(path string) (*Connection, error) {
	b, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection %s: %w", path, err)
	}

	var conn Connection
	if err := yaml.Unmarshal(b, &conn); err != nil {
		return nil, fmt.Errorf("failed to parse connection %s: %w", path, err)
	}
	conn.Source = path

	if conn.Tenant == "" || conn.Product == "" {
		return nil, fmt.Errorf("connection %s: tenant and product are required", path)
	}
	if conn.IsOIDC() {
		return &conn, nil
	}

	metadataPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".xml"
	metadata, err := afero.ReadFile(l.Fs, metadataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("connection %s: %w %s", path, ErrMissingMetadata, metadataPath)
		}
		return nil, fmt.Errorf("failed to read metadata of connection %s: %w", path, err)
	}
	conn.EncodedRawMetadata = base64.StdEncoding.EncodeToString(metadata)
	return &conn, nil
}

func (l *Loader) resolve(dir string) (string, error) {
	if !strings.HasPrefix(dir, "./") {
		return dir, nil
	}
	getwd := l.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	wd, err := getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

func isDefinition(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
