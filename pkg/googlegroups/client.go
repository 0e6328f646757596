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

package googlegroups

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/cli"
)

// ConfigSubject is the directory config key naming the Workspace admin the
// service account impersonates.
const ConfigSubject = "subject"

// readonlyScopes are the Admin SDK scopes needed to read groups and members.
var readonlyScopes = []string{
	admin.AdminDirectoryGroupReadonlyScope,
	admin.AdminDirectoryGroupMemberReadonlyScope,
}

// NewAdapterWithDefaultApplicationToken creates an Adapter that authenticates
// with application default credentials. The token is read from the file named
// by the GOOGLE_APPLICATION_CREDENTIALS environment variable.
// See:
// https://cloud.google.com/docs/authentication/application-default-credentials
func NewAdapterWithDefaultApplicationToken() *Adapter {
	return NewAdapter(func(ctx context.Context, directory *dirsync.Directory) (*admin.Service, error) {
		svc, err := admin.NewService(ctx, option.WithScopes(readonlyScopes...))
		if err != nil {
			return nil, fmt.Errorf("failed to create admin service: %w", err)
		}
		return svc, nil
	})
}

// NewAdapterWithServiceAccount creates an Adapter that authenticates with the
// given service account key. Each directory impersonates the admin named by
// its "subject" config value, so one key can serve several Workspace
// customers.
func NewAdapterWithServiceAccount(credentialsJSON []byte) *Adapter {
	return NewAdapter(func(ctx context.Context, directory *dirsync.Directory) (*admin.Service, error) {
		params := google.CredentialsParams{
			Scopes:  readonlyScopes,
			Subject: directory.ConfigValue(ConfigSubject, ""),
		}
		creds, err := google.CredentialsFromJSONWithParams(ctx, credentialsJSON, params)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
		}
		svc, err := admin.NewService(ctx, option.WithCredentials(creds))
		if err != nil {
			return nil, fmt.Errorf("failed to create admin service: %w", err)
		}
		return svc, nil
	})
}

// ClientConfig is the config for the Admin SDK client.
type ClientConfig struct {
	CredentialsPath string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("GOOGLE OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "google-credentials-path",
		EnvVar: "GOOGLE_SERVICE_ACCOUNT_KEY_PATH",
		Target: &c.CredentialsPath,
		Usage: `Path to a service account key with domain-wide delegation. ` +
			`Application default credentials are used when empty.`,
	})
}

// NewAdapterFromConfig creates an Adapter authenticating with the configured
// service account key, or with application default credentials otherwise.
func NewAdapterFromConfig(fs afero.Fs, c *ClientConfig) (*Adapter, error) {
	if c.CredentialsPath == "" {
		return NewAdapterWithDefaultApplicationToken(), nil
	}
	b, err := afero.ReadFile(fs, c.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	return NewAdapterWithServiceAccount(b), nil
}
