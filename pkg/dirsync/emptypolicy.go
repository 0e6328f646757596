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

import "sync"

// EmptyPolicy decides when an empty provider result is trusted.
//
// An empty group list for a directory, or an empty member list for a group
// with stored members, cannot be told apart from a transient provider outage.
// The policy only honors such a result after Threshold consecutive passes
// observed it for the same key. A Threshold of zero or less never honors an
// empty result, so stored state is never cleared by the engine.
type EmptyPolicy struct {
	threshold int

	mu      sync.Mutex
	streaks map[string]int
}

// NewEmptyPolicy creates an EmptyPolicy with the given threshold.
func NewEmptyPolicy(threshold int) *EmptyPolicy {
	return &EmptyPolicy{
		threshold: threshold,
		streaks:   make(map[string]int),
	}
}

// Threshold returns the number of consecutive empty results required.
func (p *EmptyPolicy) Threshold() int {
	return p.threshold
}

// Observe records an empty result for key and reports whether it should now
// be honored, along with the current streak.
func (p *EmptyPolicy) Observe(key string) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streaks[key]++
	streak := p.streaks[key]
	return p.threshold > 0 && streak >= p.threshold, streak
}

// Reset clears the streak of key after a non-empty result.
func (p *EmptyPolicy) Reset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.streaks, key)
}
