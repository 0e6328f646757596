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

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const defaultPageSize = 100

// paginate invokes f for every page of a GitLab list endpoint, following the
// NextPage of each response. f captures the values it needs; paginate does
// not accumulate responses.
func paginate(ctx context.Context, f func(opts *gitlab.ListOptions) (*gitlab.Response, error)) error {
	opts := &gitlab.ListOptions{
		PerPage: defaultPageSize,
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("paging stopped: %w", err)
		}
		resp, err := f(opts)
		if err != nil {
			return fmt.Errorf("failed to paginate: %w", err)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nil
}
