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
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

var accessLevels = map[string]gitlab.AccessLevelValue{
	"guest":      gitlab.GuestPermissions,
	"reporter":   gitlab.ReporterPermissions,
	"developer":  gitlab.DeveloperPermissions,
	"maintainer": gitlab.MaintainerPermissions,
	"owner":      gitlab.OwnerPermissions,
}

// parseAccessLevel maps a role name, e.g. "developer", to its access level.
// The empty string maps to no access, which admits every member.
func parseAccessLevel(name string) (gitlab.AccessLevelValue, error) {
	if name == "" {
		return gitlab.NoPermissions, nil
	}
	level, ok := accessLevels[strings.ToLower(name)]
	if !ok {
		return gitlab.NoPermissions, fmt.Errorf("unknown access level %q", name)
	}
	return level, nil
}
