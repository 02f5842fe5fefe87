// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"time"

	"github.com/axonflow/routingcore/internal/pipeline"
)

// armHealthLoop starts the periodic health-check sweep: for every pool's
// active pipeline, call provider.healthCheck() with a short timeout and
// record the result (spec §4.5's health check loop). Failures are
// recorded into pool state, never propagated to callers.
func (m *Manager) armHealthLoop() {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.healthCancel = cancel
	m.healthDone = make(chan struct{})
	done := m.healthDone
	interval := m.healthCheckInterval
	m.mu.Unlock()

	go m.healthLoop(ctx, interval, done)
}

func (m *Manager) healthLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepHealth(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweepHealth checks every pool's active pipeline once. A pool with no
// active pipeline (never assembled, or hot-reloaded down to empty) is
// skipped rather than reported unhealthy.
func (m *Manager) sweepHealth(ctx context.Context) {
	m.mu.RLock()
	pools := make(map[string]*pipeline.Pool, len(m.pools))
	for routingID, p := range m.pools {
		pools[routingID] = p
	}
	m.mu.RUnlock()

	for routingID, pool := range pools {
		active := pool.Active()
		if active == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, defaultHealthCheckTimeout)
		status := active.HealthCheck(checkCtx)
		cancel()
		pool.SetHealth(status)
		m.recordPoolHealth(routingID, status)
	}
}
