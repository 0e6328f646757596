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

// Package paging defines a generic paging pattern.
package paging

import (
	"context"
	"fmt"
)

// MaxPages bounds a single Paginate call so a server that never reports the
// last page cannot loop forever.
const MaxPages = 10_000

type PageRequest[O any] interface {
	Opt() O
	Next() PageRequest[O]
}

type Page[T any] interface {
	Content() []T
	HasNext() bool
}

type Pager[T, O any] func(ctx context.Context, request PageRequest[O]) (Page[T], error)

// Paginate requests pages starting at pageRequest until the last page and
// returns the items of all of them in order.
func Paginate[T, O any](ctx context.Context, pageRequest PageRequest[O], pager Pager[T, O]) ([]T, error) {
	items := make([]T, 0)
	for i := 0; ; i++ {
		if i >= MaxPages {
			return nil, fmt.Errorf("exceeded %d pages", MaxPages)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("paging stopped: %w", err)
		}
		page, err := pager(ctx, pageRequest)
		if err != nil {
			return nil, fmt.Errorf("failed to get page: %w", err)
		}
		items = append(items, page.Content()...)
		if !page.HasNext() {
			break
		}
		pageRequest = pageRequest.Next()
	}

	return items, nil
}
