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

package gitlab

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/afero"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/abcxyz/directory-sync/pkg/github"
	"github.com/abcxyz/pkg/cli"
)

const DefaultInstanceURL = "https://gitlab.com"

// ClientConfig is the config for the GitLab client.
type ClientConfig struct {
	InstanceURL string
	Token       string
	TokenPath   string
}

func (c *ClientConfig) RegisterFlags(set *cli.FlagSet) {
	f := set.NewSection("GITLAB OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "gitlab-instance-url",
		EnvVar:  "GITLAB_INSTANCE_URL",
		Target:  &c.InstanceURL,
		Default: DefaultInstanceURL,
		Usage:   `URL of the GitLab instance, example: "https://gitlab.com"`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-token",
		EnvVar: "GITLAB_TOKEN",
		Target: &c.Token,
		Usage:  `Personal or group access token with the read_api scope.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-token-path",
		EnvVar: "GITLAB_TOKEN_PATH",
		Target: &c.TokenPath,
		Usage:  `Path to a file holding the access token. The file is read on every client creation.`,
	})

	set.AfterParse(func(merr error) error {
		if c.InstanceURL == "" {
			c.InstanceURL = DefaultInstanceURL
		}
		if c.Token != "" && c.TokenPath != "" {
			return fmt.Errorf("only one of -gitlab-token and -gitlab-token-path may be set")
		}
		return nil
	})
}

// Enabled reports whether a GitLab token is configured.
func (c *ClientConfig) Enabled() bool {
	return c.Token != "" || c.TokenPath != ""
}

// StaticKey provides a fixed token.
type StaticKey string

// Key implements github.KeyProvider.
func (k StaticKey) Key(ctx context.Context) ([]byte, error) {
	return []byte(k), nil
}

// ClientProvider provides a GitLab client.
type ClientProvider struct {
	httpClient  *http.Client
	instanceURL string
	keyProvider github.KeyProvider
}

// NewGitLabClientProvider creates a new GitLabClientProvider.
func NewGitLabClientProvider(httpClient *http.Client, instanceURL string, keyProvider github.KeyProvider) *ClientProvider {
	return &ClientProvider{
		httpClient:  httpClient,
		instanceURL: instanceURL,
		keyProvider: keyProvider,
	}
}

// Client returns a GitLab client authenticated with the provided token.
func (g *ClientProvider) Client(ctx context.Context) (*gitlab.Client, error) {
	token, err := g.keyProvider.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GitLab token: %w", err)
	}
	opts := []gitlab.ClientOptionFunc{gitlab.WithBaseURL(g.instanceURL)}
	if g.httpClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(g.httpClient))
	}
	gitlabClient, err := gitlab.NewClient(string(token), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return gitlabClient, nil
}

// NewAdapterFromConfig creates an Adapter for the configured instance.
func NewAdapterFromConfig(c *ClientConfig, opts ...Opt) *Adapter {
	var key github.KeyProvider = StaticKey(c.Token)
	if c.TokenPath != "" {
		key = &github.FileKeyProvider{Fs: afero.NewOsFs(), Path: c.TokenPath}
	}
	return NewAdapter(NewGitLabClientProvider(nil, c.InstanceURL, key), opts...)
}
