// Copyright 2026 NetShield Authors
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

package policy

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/netshield/enforcer/pkg/model"
)

// DefaultCacheTTL is the resolved-rule cache lifetime absent explicit
// invalidation.
const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	rules     []model.ResolvedRule
	expiresAt time.Time
}

// cache is a small sharded TTL cache keyed by phoneId, with an explicit
// invalidate hook. It uses the same shard-lock idiom as the Session
// Index rather than a generic cache library: the eviction need here is
// a single TTL plus an explicit invalidate, which doesn't justify a new
// dependency.
type cache struct {
	shards []*cacheShard
	mask   uint32
	ttl    time.Duration
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newCache(numShards int, ttl time.Duration) *cache {
	n := 1
	for n < numShards {
		n <<= 1
	}
	shards := make([]*cacheShard, n)
	for i := range shards {
		shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return &cache{shards: shards, mask: uint32(n - 1), ttl: ttl}
}

func (c *cache) shardFor(phoneID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phoneID))
	return c.shards[h.Sum32()&c.mask]
}

func (c *cache) get(phoneID string, now time.Time) ([]model.ResolvedRule, bool) {
	s := c.shardFor(phoneID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[phoneID]
	if !ok || now.After(entry.expiresAt) {
		return nil, false
	}
	return entry.rules, true
}

func (c *cache) set(phoneID string, rules []model.ResolvedRule, now time.Time) {
	s := c.shardFor(phoneID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phoneID] = cacheEntry{rules: rules, expiresAt: now.Add(c.ttl)}
}

// invalidate evicts phoneId's cached entry, if any. Exposed on Resolver
// as Invalidate for explicit cache-busting callers (e.g. an operator
// tool or a future policy-change hook); no CDC consumer drives this
// automatically.
func (c *cache) invalidate(phoneID string) {
	s := c.shardFor(phoneID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phoneID)
}
