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

package dirsync

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/time/rate"
)

// AdapterRegistry holds one ProviderAdapter per directory type.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

// NewAdapterRegistry creates an empty AdapterRegistry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]ProviderAdapter)}
}

// Register binds adapter to directoryType, replacing any previous binding.
func (r *AdapterRegistry) Register(directoryType string, adapter ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[directoryType] = adapter
}

// Lookup returns the adapter bound to directoryType. It fails with an error
// wrapping ErrNotFound when no adapter is bound.
func (r *AdapterRegistry) Lookup(directoryType string) (ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[directoryType]
	if !ok {
		return nil, fmt.Errorf("provider adapter for directory type %q: %w", directoryType, ErrNotFound)
	}
	return adapter, nil
}

// Types returns the registered directory types in sorted order.
func (r *AdapterRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.adapters))
}

// RateLimitedAdapter waits on a rate.Limiter before every provider call.
type RateLimitedAdapter struct {
	adapter ProviderAdapter
	limiter *rate.Limiter
}

// NewRateLimitedAdapter wraps adapter so that calls are admitted at most at
// rps per second with the given burst. A non-positive rps disables limiting.
func NewRateLimitedAdapter(adapter ProviderAdapter, rps float64, burst int) ProviderAdapter {
	if rps <= 0 {
		return adapter
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedAdapter{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Groups implements ProviderAdapter.
func (a *RateLimitedAdapter) Groups(ctx context.Context, directory *Directory) ([]*Group, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return a.adapter.Groups(ctx, directory) //nolint:wrapcheck // Want passthrough
}

// GroupMembers implements ProviderAdapter.
func (a *RateLimitedAdapter) GroupMembers(ctx context.Context, directory *Directory, group *Group) ([]*Member, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return a.adapter.GroupMembers(ctx, directory, group) //nolint:wrapcheck // Want passthrough
}
