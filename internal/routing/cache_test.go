// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestMemoryRuleCache_SetThenGet(t *testing.T) {
	c := newMemoryRuleCache()
	defer c.Close()

	key := "k1"
	fired := map[string]float64{"vision_request": 0.2}
	c.Set(key, fired)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected a cache hit after Set")
	}
	if got["vision_request"] != 0.2 {
		t.Errorf("expected cached weight 0.2, got %v", got["vision_request"])
	}
}

func TestMemoryRuleCache_MissOnUnknownKey(t *testing.T) {
	c := newMemoryRuleCache()
	defer c.Close()
	if _, ok := c.Get("missing"); ok {
		t.Error("expected a miss for an unset key")
	}
}

func TestCacheKey_StableForIdenticalAnalysis(t *testing.T) {
	a := chatAnalysis()
	b := chatAnalysis()
	if cacheKey(a, "balanced") != cacheKey(b, "balanced") {
		t.Error("expected identical analyses to hash to the same cache key")
	}
}

func TestCacheKey_DiffersAcrossStrategies(t *testing.T) {
	a := chatAnalysis()
	if cacheKey(a, "balanced") == cacheKey(a, "cost") {
		t.Error("expected different strategy names to change the cache key")
	}
}

func TestRedisRuleCache_SetThenGet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisRuleCache(client)
	fired := map[string]float64{"large_token_request": 0.25}
	cache.Set("k1", fired)

	got, ok := cache.Get("k1")
	require.True(t, ok)
	require.Equal(t, 0.25, got["large_token_request"])
}

func TestRedisRuleCache_MissOnUnknownKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisRuleCache(client)
	_, ok := cache.Get("missing")
	require.False(t, ok)
}

func TestEngine_WithRuleCache_SwapsToRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	e := NewEngine()
	e.WithRuleCache(NewRedisRuleCache(client))
	defer e.Close()

	e.RegisterPool("default", textOnlyCaps())
	decision, err := e.Decide(chatAnalysis(), "balanced")
	require.NoError(t, err)
	require.Equal(t, "default", decision.SelectedPoolID)
}
