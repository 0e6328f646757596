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

// Package github polls GitHub organization teams.
package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v61/github"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/directory-sync/pkg/paging"
	"github.com/abcxyz/pkg/cache"
	"github.com/abcxyz/pkg/logging"
)

const (
	IDSep = ":"

	// DirectoryType is the Directory.Type served by this adapter.
	DirectoryType = "github"

	// ConfigOrg is the directory config key holding the org login.
	ConfigOrg = "org"

	// "all" used in queries to get users with all roles.
	RoleAll = "all"

	// DefaultCacheDuration is the default time to live for cached org IDs.
	// Org IDs never change, so the value only bounds memory.
	DefaultCacheDuration = time.Hour * 24
)

// Ensure we conform to the interface.
var _ dirsync.ProviderAdapter = (*Adapter)(nil)

type Config struct {
	cacheDuration time.Duration
}

type Opt func(config *Config)

// WithCacheDuration sets the time to live for the org ID cache entries.
func WithCacheDuration(duration time.Duration) Opt {
	return func(config *Config) {
		config.cacheDuration = duration
	}
}

// Adapter reads the teams of a GitHub org and their direct members. Group IDs
// have the form 'orgID:teamID' and member IDs are user logins.
type Adapter struct {
	client         *github.Client
	orgTokenSource OrgTokenSource
	orgIDCache     *cache.Cache[int64]
}

// NewAdapter creates a new Adapter.
func NewAdapter(client *github.Client, orgTokenSource OrgTokenSource, opts ...Opt) *Adapter {
	config := &Config{
		cacheDuration: DefaultCacheDuration,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Adapter{
		client:         client,
		orgTokenSource: orgTokenSource,
		orgIDCache:     cache.New[int64](config.cacheDuration),
	}
}

// Groups retrieves every team of the directory's org.
func (a *Adapter) Groups(ctx context.Context, directory *dirsync.Directory) ([]*dirsync.Group, error) {
	org, err := orgLogin(directory)
	if err != nil {
		return nil, err
	}
	client, err := a.githubClientForOrg(ctx, org)
	if err != nil {
		return nil, err
	}
	orgID, err := a.orgID(ctx, client, org)
	if err != nil {
		return nil, err
	}

	teams, err := paging.Paginate(ctx, newPageRequest(),
		func(ctx context.Context, req paging.PageRequest[*github.ListOptions]) (paging.Page[*github.Team], error) {
			teams, resp, err := client.Teams.ListTeams(ctx, org, req.Opt())
			if err != nil {
				return nil, fmt.Errorf("failed to list teams of org %s: %w", org, err)
			}
			return &gitHubPage[*github.Team]{content: teams, resp: resp}, nil
		})
	if err != nil {
		return nil, fmt.Errorf("could not get teams: %w", err)
	}

	groups := make([]*dirsync.Group, 0, len(teams))
	for _, team := range teams {
		groups = append(groups, &dirsync.Group{
			ID:         encode(orgID, team.GetID()),
			Name:       team.GetSlug(),
			Attributes: team,
		})
	}
	return groups, nil
}

// GroupMembers retrieves the direct user members of a team, regardless of
// their team role. Members of child teams are not included.
func (a *Adapter) GroupMembers(ctx context.Context, directory *dirsync.Directory, group *dirsync.Group) ([]*dirsync.Member, error) {
	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "fetching members for team", "team_id", group.ID)

	org, err := orgLogin(directory)
	if err != nil {
		return nil, err
	}
	orgID, teamID, err := parseID(group.ID)
	if err != nil {
		return nil, fmt.Errorf("could not parse group ID %s: %w", group.ID, err)
	}
	client, err := a.githubClientForOrg(ctx, org)
	if err != nil {
		return nil, err
	}

	users, err := paging.Paginate(ctx, newPageRequest(),
		func(ctx context.Context, req paging.PageRequest[*github.ListOptions]) (paging.Page[*github.User], error) {
			opts := &github.TeamListTeamMembersOptions{
				Role:        RoleAll,
				ListOptions: *req.Opt(),
			}
			users, resp, err := client.Teams.ListTeamMembersByID(ctx, orgID, teamID, opts)
			if err != nil {
				return nil, fmt.Errorf("failed to list members of team %d: %w", teamID, err)
			}
			return &gitHubPage[*github.User]{content: users, resp: resp}, nil
		})
	if err != nil {
		return nil, fmt.Errorf("could not get team members: %w", err)
	}

	members := make([]*dirsync.Member, 0, len(users))
	for _, user := range users {
		members = append(members, &dirsync.Member{ID: user.GetLogin(), Attributes: user})
	}
	return members, nil
}

func (a *Adapter) orgID(ctx context.Context, client *github.Client, org string) (int64, error) {
	id, err := a.orgIDCache.WriteThruLookup(org, func() (int64, error) {
		o, _, err := client.Organizations.Get(ctx, org)
		if err != nil {
			return 0, fmt.Errorf("failed to get org %s: %w", org, err)
		}
		return o.GetID(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to lookup org id: %w", err)
	}
	return id, nil
}

func (a *Adapter) githubClientForOrg(ctx context.Context, org string) (*github.Client, error) {
	token, err := a.orgTokenSource.TokenForOrg(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to get github token: %w", err)
	}
	return a.client.WithAuthToken(token), nil
}

func orgLogin(directory *dirsync.Directory) (string, error) {
	org := directory.ConfigValue(ConfigOrg, "")
	if org == "" {
		return "", fmt.Errorf("directory %s: config %q is required", directory.ID, ConfigOrg)
	}
	return org, nil
}

func encode(orgID, teamID int64) string {
	return fmt.Sprintf("%d%s%d", orgID, IDSep, teamID)
}

func parseID(groupID string) (int64, int64, error) {
	orgIDStr, teamIDStr, ok := strings.Cut(groupID, IDSep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid group ID %q, want 'orgID%steamID'", groupID, IDSep)
	}
	orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid org ID %q: %w", orgIDStr, err)
	}
	teamID, err := strconv.ParseInt(teamIDStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid team ID %q: %w", teamIDStr, err)
	}
	return orgID, teamID, nil
}
