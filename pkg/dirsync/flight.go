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
	"strconv"
	"sync"
)

// flightGuard admits at most one holder per key. A second caller for a held
// key is turned away rather than queued.
type flightGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newFlightGuard() *flightGuard {
	return &flightGuard{inFlight: make(map[string]struct{})}
}

// tryAcquire reserves key. It returns a release func and true, or nil and
// false when the key is already held.
func (g *flightGuard) tryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.inFlight[key]; ok {
		return nil, false
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.inFlight, key)
		})
	}, true
}

// directoryKey and groupKey quote the IDs, so no directory key equals a group
// key and no two (directory, group) pairs share one.
func directoryKey(directoryID string) string {
	return "directory:" + strconv.Quote(directoryID)
}

func groupKey(directoryID, groupID string) string {
	return "group:" + strconv.Quote(directoryID) + "/" + strconv.Quote(groupID)
}
