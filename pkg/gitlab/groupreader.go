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

// Package gitlab polls GitLab groups and their members.
package gitlab

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
	"github.com/abcxyz/pkg/cache"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/pointer"
)

const (
	// DirectoryType is the Directory.Type served by this adapter.
	DirectoryType = "gitlab"

	// ConfigParentGroup limits a directory to a group and its descendants.
	// The value is the group's integer ID or full path.
	ConfigParentGroup = "parent_group"
	// ConfigMinAccessLevel drops groups and members below the given role,
	// e.g. "developer".
	ConfigMinAccessLevel = "min_access_level"
	// ConfigInheritedMembers includes members inherited from ancestor groups
	// when set to "true".
	ConfigInheritedMembers = "inherited_members"

	// DefaultCacheDuration is the default time to live for the parent group
	// cache. Group IDs don't change when a group is renamed or moved.
	DefaultCacheDuration = time.Hour * 24

	stateBlocked = "blocked"
)

var _ dirsync.ProviderAdapter = (*Adapter)(nil)

type Config struct {
	cacheDuration time.Duration
}

type Opt func(config *Config)

// WithCacheDuration set the time to live for the parent group cache entries.
func WithCacheDuration(duration time.Duration) Opt {
	return func(config *Config) {
		config.cacheDuration = duration
	}
}

// Adapter reads GitLab groups and their user members. Group IDs are GitLab's
// integer group IDs and member IDs are usernames.
type Adapter struct {
	clientProvider *ClientProvider
	groupCache     *cache.Cache[*gitlab.Group]
}

func NewAdapter(clientProvider *ClientProvider, opts ...Opt) *Adapter {
	config := &Config{
		cacheDuration: DefaultCacheDuration,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &Adapter{
		clientProvider: clientProvider,
		groupCache:     cache.New[*gitlab.Group](config.cacheDuration),
	}
}

// Groups lists the groups visible to the token, or the parent group and all
// of its descendants when the directory names one.
func (a *Adapter) Groups(ctx context.Context, directory *dirsync.Directory) ([]*dirsync.Group, error) {
	minLevel, err := parseAccessLevel(directory.ConfigValue(ConfigMinAccessLevel, ""))
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", directory.ID, err)
	}
	client, err := a.clientProvider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gitlab client: %w", err)
	}

	var minAccessLevel *gitlab.AccessLevelValue
	if minLevel != gitlab.NoPermissions {
		minAccessLevel = pointer.To(minLevel)
	}

	var groups []*gitlab.Group
	parent := directory.ConfigValue(ConfigParentGroup, "")
	if parent == "" {
		if err := paginate(ctx, func(listOpts *gitlab.ListOptions) (*gitlab.Response, error) {
			page, resp, err := client.Groups.ListGroups(&gitlab.ListGroupsOptions{
				ListOptions:    *listOpts,
				MinAccessLevel: minAccessLevel,
			}, gitlab.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("failed to list groups: %w", err)
			}
			groups = append(groups, page...)
			return resp, nil
		}); err != nil {
			return nil, fmt.Errorf("could not get groups: %w", err)
		}
	} else {
		parentGroup, err := a.parentGroup(ctx, client, parent)
		if err != nil {
			return nil, err
		}
		groups = append(groups, parentGroup)
		if err := paginate(ctx, func(listOpts *gitlab.ListOptions) (*gitlab.Response, error) {
			page, resp, err := client.Groups.ListDescendantGroups(parentGroup.ID, &gitlab.ListDescendantGroupsOptions{
				ListOptions:    *listOpts,
				MinAccessLevel: minAccessLevel,
			}, gitlab.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("failed to list descendants of group %d: %w", parentGroup.ID, err)
			}
			groups = append(groups, page...)
			return resp, nil
		}); err != nil {
			return nil, fmt.Errorf("could not get groups: %w", err)
		}
	}

	out := make([]*dirsync.Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, &dirsync.Group{
			ID:         strconv.Itoa(g.ID),
			Name:       g.FullPath,
			Attributes: g,
		})
	}
	return out, nil
}

// GroupMembers retrieves the user members of the group with the given ID.
// Blocked users and users below the configured access level are left out.
func (a *Adapter) GroupMembers(ctx context.Context, directory *dirsync.Directory, group *dirsync.Group) ([]*dirsync.Member, error) {
	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "fetching members for group", "group_id", group.ID)

	minLevel, err := parseAccessLevel(directory.ConfigValue(ConfigMinAccessLevel, ""))
	if err != nil {
		return nil, fmt.Errorf("directory %s: %w", directory.ID, err)
	}
	inherited, err := strconv.ParseBool(directory.ConfigValue(ConfigInheritedMembers, "false"))
	if err != nil {
		return nil, fmt.Errorf("directory %s: invalid %s: %w", directory.ID, ConfigInheritedMembers, err)
	}
	client, err := a.clientProvider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gitlab client: %w", err)
	}

	list := client.Groups.ListGroupMembers
	if inherited {
		list = client.Groups.ListAllGroupMembers
	}

	users := make(map[string]*gitlab.GroupMember, 32)
	if err := paginate(ctx, func(listOpts *gitlab.ListOptions) (*gitlab.Response, error) {
		userMembers, resp, err := list(group.ID, &gitlab.ListGroupMembersOptions{ListOptions: *listOpts}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch group members for %s: %w", group.ID, err)
		}
		for _, m := range userMembers {
			if m.State == stateBlocked || m.AccessLevel < minLevel {
				continue
			}
			users[m.Username] = m
		}
		return resp, nil
	}); err != nil {
		return nil, fmt.Errorf("could not get group members: %w", err)
	}

	members := make([]*dirsync.Member, 0, len(users))
	for _, user := range users {
		members = append(members, &dirsync.Member{ID: user.Username, Attributes: user})
	}
	return members, nil
}

func (a *Adapter) parentGroup(ctx context.Context, client *gitlab.Client, groupID string) (*gitlab.Group, error) {
	group, err := a.groupCache.WriteThruLookup(groupID, func() (*gitlab.Group, error) {
		logger := logging.FromContext(ctx)
		logger.InfoContext(ctx, "fetching group", "group_id", groupID)
		group, _, err := client.Groups.GetGroup(groupID, &gitlab.GetGroupOptions{
			WithProjects: pointer.To(false),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch group %s: %w", groupID, err)
		}
		return group, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lookup gitlab group: %w", err)
	}
	return group, nil
}
