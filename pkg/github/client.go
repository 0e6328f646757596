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
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v61/github"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"

	"github.com/abcxyz/pkg/cli"
)

const DefaultGitHubServerEndpoint = "https://github.com"

// ClientConfig is the config for github client.
type ClientConfig struct {
	Endpoint       string
	Token          string
	AppID          string
	PrivateKeyPath string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("GITHUB OPTIONS")

	// The priority for parsing the flags are as follows.
	// 1. Read from input flags.
	// 2. Read from Envvars.
	// 3. Use default value.
	f.StringVar(&cli.StringVar{
		Name:    "github-server-endpoint",
		EnvVar:  "GITHUB_SERVER_URL",
		Target:  &c.Endpoint,
		Default: DefaultGitHubServerEndpoint,
		Usage:   `URL for github endpoint, example: "https://github.com"`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-token",
		EnvVar: "GITHUB_TOKEN",
		Target: &c.Token,
		Usage:  `Token to read teams and members with. Ignored when a GitHub App is configured.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-app-id",
		EnvVar: "GITHUB_APP_ID",
		Target: &c.AppID,
		Usage:  `ID of the GitHub App installed on the polled orgs.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-app-private-key-path",
		EnvVar: "GITHUB_APP_PRIVATE_KEY_PATH",
		Target: &c.PrivateKeyPath,
		Usage:  `Path to the PEM encoded private key of the GitHub App.`,
	})

	set.AfterParse(func(merr error) error {
		// In case user export GITHUB_SERVER_URL to empty string.
		if c.Endpoint == "" {
			c.Endpoint = DefaultGitHubServerEndpoint
		}
		if c.AppID != "" && c.PrivateKeyPath == "" {
			return fmt.Errorf("-github-app-private-key-path is required with -github-app-id")
		}
		return nil
	})
}

// Enabled reports whether any GitHub credentials are configured.
func (c *ClientConfig) Enabled() bool {
	return c.Token != "" || c.AppID != ""
}

// NewGitHubClient creates an unauthenticated github.Client for the configured
// endpoint. Tokens are attached per org by the Adapter.
func NewGitHubClient(c *ClientConfig, httpClient *http.Client) (*github.Client, error) {
	ghc := github.NewClient(httpClient)
	if c.Endpoint != DefaultGitHubServerEndpoint {
		var err error
		if ghc, err = ghc.WithEnterpriseURLs(c.Endpoint, c.Endpoint); err != nil {
			return nil, fmt.Errorf("failed to create github client with enterprise endpoint %s: %w", c.Endpoint, err)
		}
	}
	return ghc, nil
}

// NewAdapterFromConfig creates an Adapter authenticating as the configured
// GitHub App, or with the static token otherwise.
func NewAdapterFromConfig(ctx context.Context, c *ClientConfig, opts ...Opt) (*Adapter, error) {
	var tokens OrgTokenSource
	if c.AppID != "" {
		tokens = NewAppTokenSource(&FileKeyProvider{Fs: afero.NewOsFs(), Path: c.PrivateKeyPath}, c.AppID)
	} else {
		tokens = NewStaticTokenSource(c.Token)
	}

	var httpClient *http.Client
	if c.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token}))
	}
	ghc, err := NewGitHubClient(c, httpClient)
	if err != nil {
		return nil, err
	}
	return NewAdapter(ghc, tokens, opts...), nil
}
