// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const ruleCacheTTL = 1 * time.Minute

// ruleCache is the engine's pluggable rule-evaluation cache (spec §5:
// "rule-cache has its own lock and a 1-minute sweep"), keyed on a hash of
// the analysis and the strategy name. A miss always falls through to
// local rule evaluation — the cache is a performance optimization, never
// a coordination point (spec §1 non-goal: "distributed coordination
// across instances").
type ruleCache interface {
	Get(key string) (map[string]float64, bool)
	Set(key string, fired map[string]float64)
	Close()
}

// cacheKey hashes the rule-relevant subset of an analysis plus the
// strategy name into a short cache key.
func cacheKey(analysis analysisInput, strategyName string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%t|%t|%t|%t|%.4f|%s",
		strategyName, analysis.TokenCount, analysis.HasToolCalls, analysis.HasImages,
		analysis.HasFunctionCalls, analysis.RequiresStreaming, analysis.ComplexityScore, analysis.Priority)
	return fmt.Sprintf("%x", h.Sum64())
}

type cacheEntry struct {
	fired     map[string]float64
	expiresAt time.Time
}

// memoryRuleCache is the default backend: a mutex-guarded map with a
// background sweep goroutine evicting expired entries every
// ruleCacheTTL, matching spec §5's "its own lock and a 1-minute sweep"
// exactly (a sync.Map would not give us the atomic sweep-and-evict pass).
type memoryRuleCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	stop    chan struct{}
}

func newMemoryRuleCache() *memoryRuleCache {
	c := &memoryRuleCache{entries: make(map[string]cacheEntry), stop: make(chan struct{})}
	go c.sweepLoop()
	return c
}

func (c *memoryRuleCache) Get(key string) (map[string]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.fired, true
}

func (c *memoryRuleCache) Set(key string, fired map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{fired: fired, expiresAt: time.Now().Add(ruleCacheTTL)}
}

func (c *memoryRuleCache) sweepLoop() {
	ticker := time.NewTicker(ruleCacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryRuleCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *memoryRuleCache) Close() {
	close(c.stop)
}

// RedisRuleCache is an alternate backend sharing rule-evaluation results
// across gateway processes (spec §5's cache note, see SPEC_FULL domain
// stack). A cache entry is a JSON-encoded map[string]float64 with a TTL
// matching ruleCacheTTL; Redis itself owns expiry, so no sweep goroutine
// is needed here.
type RedisRuleCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisRuleCache wraps an existing *redis.Client (e.g. one pointed at
// a real server or, in tests, at miniredis).
func NewRedisRuleCache(client *redis.Client) *RedisRuleCache {
	return &RedisRuleCache{client: client, ctx: context.Background()}
}

func (c *RedisRuleCache) Get(key string) (map[string]float64, bool) {
	raw, err := c.client.Get(c.ctx, "routingcore:rulecache:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var fired map[string]float64
	if err := json.Unmarshal(raw, &fired); err != nil {
		return nil, false
	}
	return fired, true
}

func (c *RedisRuleCache) Set(key string, fired map[string]float64) {
	raw, err := json.Marshal(fired)
	if err != nil {
		return
	}
	c.client.Set(c.ctx, "routingcore:rulecache:"+key, raw, ruleCacheTTL)
}

func (c *RedisRuleCache) Close() {}
