// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"time"

	"github.com/axonflow/routingcore/internal/pipeline"
	"github.com/axonflow/routingcore/internal/provider"
	"github.com/axonflow/routingcore/internal/routing"
)

// HotReload diffs the incoming pool set against the live one by routing
// ID and applies the minimal change (spec §4.5): new routing classes are
// added, removed ones are torn down and unregistered from the engine,
// and kept ones have their pipelines and capabilities replaced in place
// so in-flight requests holding the old *Pipeline and the pool's running
// metrics survive the reload untouched.
func (m *Manager) HotReload(next map[string]*pipeline.Pool) {
	m.mu.Lock()
	for routingID, newPool := range next {
		existing, ok := m.pools[routingID]
		if !ok {
			m.pools[routingID] = newPool
			continue
		}
		for _, pl := range newPool.Pipelines() {
			existing.Replace(pl)
		}
		existing.SetCapabilities(newPool.Capabilities)
	}
	removed := make([]string, 0)
	for routingID := range m.pools {
		if _, ok := next[routingID]; !ok {
			removed = append(removed, routingID)
		}
	}
	for _, routingID := range removed {
		delete(m.pools, routingID)
	}
	m.mu.Unlock()

	if m.engineEnabled {
		for _, routingID := range removed {
			m.engine.UnregisterPool(routingID)
		}
	}
	m.registerCapabilities()
}

// MetricsSnapshot is one pool's execution counters at a point in time.
type MetricsSnapshot struct {
	RoutingID      string
	Total          int64
	Successful     int64
	Failed         int64
	AvgLatency     time.Duration
	Health         provider.HealthStatus
	LastHealthedAt time.Time
}

// GetMetrics returns a snapshot of every pool's counters plus the
// routing engine's decision stats (spec §4.5's getMetrics()).
func (m *Manager) GetMetrics() ([]MetricsSnapshot, routing.Stats) {
	m.mu.RLock()
	pools := make(map[string]*pipeline.Pool, len(m.pools))
	for id, p := range m.pools {
		pools[id] = p
	}
	m.mu.RUnlock()

	out := make([]MetricsSnapshot, 0, len(pools))
	for routingID, p := range pools {
		total, successful, failed, avg := p.Metrics.Snapshot()
		health, lastChecked := p.Health()
		out = append(out, MetricsSnapshot{
			RoutingID:      routingID,
			Total:          total,
			Successful:     successful,
			Failed:         failed,
			AvgLatency:     avg,
			Health:         health,
			LastHealthedAt: lastChecked,
		})
	}

	var stats routing.Stats
	if m.engineEnabled {
		stats = m.engine.StatsSnapshot()
	}
	return out, stats
}

// PoolSnapshot describes one routing class's current shape, used for
// inspection and debugging (spec §4.5's getPoolSnapshot()).
type PoolSnapshot struct {
	RoutingID   string
	Health      provider.HealthStatus
	LastChecked time.Time
	Active      string
	PipelineIDs []string
	Empty       bool
}

// GetPoolSnapshot returns the current shape of one routing class, or
// false if routingID isn't registered.
func (m *Manager) GetPoolSnapshot(routingID string) (PoolSnapshot, bool) {
	m.mu.RLock()
	pool, ok := m.pools[routingID]
	m.mu.RUnlock()
	if !ok {
		return PoolSnapshot{}, false
	}

	health, lastChecked := pool.Health()
	pls := pool.Pipelines()
	ids := make([]string, 0, len(pls))
	for _, pl := range pls {
		ids = append(ids, pl.ID)
	}
	activeID := ""
	if active := pool.Active(); active != nil {
		activeID = active.ID
	}
	return PoolSnapshot{
		RoutingID:   routingID,
		Health:      health,
		LastChecked: lastChecked,
		Active:      activeID,
		PipelineIDs: ids,
		Empty:       pool.Empty(),
	}, true
}
