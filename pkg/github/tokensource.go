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
	"time"

	"github.com/spf13/afero"

	"github.com/abcxyz/pkg/cache"
	"github.com/abcxyz/pkg/githubauth"
)

// installationTokenTTL is shorter than the one hour lifetime of GitHub App
// installation tokens.
const installationTokenTTL = 45 * time.Minute

// OrgTokenSource provides tokens scoped to one organization.
type OrgTokenSource interface {
	// TokenForOrg returns a token that grants read access to the given org's
	// teams and members.
	TokenForOrg(ctx context.Context, org string) (string, error)
}

// KeyProvider provides a private key.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// FileKeyProvider reads the key from a file on every call.
type FileKeyProvider struct {
	Fs   afero.Fs
	Path string
}

// Key implements KeyProvider.
func (p *FileKeyProvider) Key(ctx context.Context) ([]byte, error) {
	b, err := afero.ReadFile(p.Fs, p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return b, nil
}

// StaticTokenSource returns the same token for every org.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a StaticTokenSource.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// TokenForOrg implements OrgTokenSource.
func (s *StaticTokenSource) TokenForOrg(ctx context.Context, org string) (string, error) {
	return s.token, nil
}

// AppTokenSource mints installation tokens of a GitHub App. Tokens are cached
// per org.
type AppTokenSource struct {
	keyProvider KeyProvider
	appID       string
	opts        []githubauth.Option
	tokens      *cache.Cache[string]
}

// NewAppTokenSource creates an AppTokenSource.
func NewAppTokenSource(keyProvider KeyProvider, appID string, opts ...githubauth.Option) *AppTokenSource {
	return &AppTokenSource{
		keyProvider: keyProvider,
		appID:       appID,
		opts:        opts,
		tokens:      cache.New[string](installationTokenTTL),
	}
}

// TokenForOrg implements OrgTokenSource.
func (s *AppTokenSource) TokenForOrg(ctx context.Context, org string) (string, error) {
	token, err := s.tokens.WriteThruLookup(org, func() (string, error) {
		privateKey, err := s.keyProvider.Key(ctx)
		if err != nil {
			return "", fmt.Errorf("unable to get GitHub app private key: %w", err)
		}
		signer, err := githubauth.NewPrivateKeySigner(privateKey)
		if err != nil {
			return "", fmt.Errorf("unable to create GitHub app: %w", err)
		}
		app, err := githubauth.NewApp(s.appID, signer, s.opts...)
		if err != nil {
			return "", fmt.Errorf("unable to create GitHub app: %w", err)
		}
		installation, err := app.InstallationForOrg(ctx, org)
		if err != nil {
			return "", fmt.Errorf("failed to get installation for org %s: %w", org, err)
		}
		token, err := installation.AccessTokenAllRepos(ctx, &githubauth.TokenRequestAllRepos{
			Permissions: map[string]string{
				"members": "read",
			},
		})
		if err != nil {
			return "", fmt.Errorf("failed to get access token for org %s: %w", org, err)
		}
		return token, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to lookup token: %w", err)
	}
	return token, nil
}
