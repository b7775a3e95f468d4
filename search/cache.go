// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poiesic/groundwork/core"
)

// DefaultPassageCacheSize is the number of passages kept by default.
const DefaultPassageCacheSize = 4096

// PassageCache is a read-mostly cache of passages and of the full corpus
// snapshot used by the lexical scan.
//
// Readers take the read lock. Fills and Invalidate take the write lock, so
// there is a single writer at a time. Every fill carries the generation
// observed before the corpus was read; a fill from an older generation is
// discarded, so a load racing with Invalidate never resurrects stale data.
// Invalidation is wholesale.
type PassageCache struct {
	mu          sync.RWMutex
	passages    *lru.Cache[core.ID, *core.Passage]
	snapshot    []*core.Passage
	hasSnapshot bool
	generation  uint64
}

// NewPassageCache creates a cache holding up to size passages.
func NewPassageCache(size int) (*PassageCache, error) {
	passages, err := lru.New[core.ID, *core.Passage](size)
	if err != nil {
		return nil, fmt.Errorf("%w: passage cache: %w", ErrInvalidOption, err)
	}
	return &PassageCache{passages: passages}, nil
}

// Generation returns the current cache generation.
func (c *PassageCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Get returns a cached passage.
func (c *PassageCache) Get(id core.ID) (*core.Passage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.passages.Get(id)
}

// Add caches passages read at generation gen.
func (c *PassageCache) Add(gen uint64, passages ...*core.Passage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	for _, p := range passages {
		c.passages.Add(p.Id, p)
	}
}

// Snapshot returns the cached corpus, if any.
func (c *PassageCache) Snapshot() ([]*core.Passage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

// SetSnapshot caches the full corpus read at generation gen.
func (c *PassageCache) SetSnapshot(gen uint64, passages []*core.Passage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.snapshot = passages
	c.hasSnapshot = true
}

// Len returns the number of cached passages.
func (c *PassageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.passages.Len()
}

// Invalidate drops everything and starts a new generation.
func (c *PassageCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.passages.Purge()
	c.snapshot = nil
	c.hasSnapshot = false
}
