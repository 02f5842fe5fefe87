// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axonflow/routingcore/internal/provider"
)

// Target is one provider+model+credential entry owned by a Pipeline
// (spec §3's Target: {providerHandle, providerId, modelId, keyIndex,
// weight, enabled, healthStatus, lastHealthCheck, requestCount,
// errorCount}). Per-target counters are atomics per spec §5's
// concurrency model; healthStatus transitions are driven by
// consecutiveErrors.
type Target struct {
	Handle     provider.Provider
	ProviderID string
	ModelID    string
	KeyIndex   int
	Weight     float64
	Enabled    bool

	requestCount      atomic.Int64
	errorCount        atomic.Int64
	consecutiveErrors atomic.Int32
	inFlight          atomic.Int64
	health            atomic.Value // provider.HealthStatus

	mu              sync.Mutex
	lastHealthCheck time.Time
}

// NewTarget constructs a Target in the healthy state.
func NewTarget(handle provider.Provider, providerID, modelID string, keyIndex int, weight float64, enabled bool) *Target {
	t := &Target{
		Handle:     handle,
		ProviderID: providerID,
		ModelID:    modelID,
		KeyIndex:   keyIndex,
		Weight:     weight,
		Enabled:    enabled,
	}
	t.health.Store(provider.HealthHealthy)
	return t
}

// ID is the lexically-ordered target identifier used for tie-breaking
// during target selection.
func (t *Target) ID() string {
	return fmt.Sprintf("%s:%s:%d", t.ProviderID, t.ModelID, t.KeyIndex)
}

// Health reports the target's current health status.
func (t *Target) Health() provider.HealthStatus {
	return t.health.Load().(provider.HealthStatus)
}

// Selectable reports whether the target can currently be chosen: enabled
// and not unhealthy. Degraded/unknown targets remain eligible.
func (t *Target) Selectable() bool {
	return t.Enabled && t.Health() != provider.HealthUnhealthy
}

func (t *Target) InFlight() int64 { return t.inFlight.Load() }

func (t *Target) RequestCount() int64 { return t.requestCount.Load() }
func (t *Target) ErrorCount() int64   { return t.errorCount.Load() }

func (t *Target) LastHealthCheck() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHealthCheck
}

// beginAttempt increments request/in-flight counters before dispatch.
func (t *Target) beginAttempt() {
	t.requestCount.Add(1)
	t.inFlight.Add(1)
}

// endAttempt records the outcome of a dispatch: success demotes the
// consecutive-error counter to zero and heals an unhealthy target;
// failure increments both the lifetime error count and the consecutive
// run, demoting to unhealthy at three in a row (spec §4.2 state machine).
func (t *Target) endAttempt(success bool) {
	t.inFlight.Add(-1)
	if success {
		t.consecutiveErrors.Store(0)
		t.health.Store(provider.HealthHealthy)
		return
	}
	t.errorCount.Add(1)
	if t.consecutiveErrors.Add(1) >= 3 {
		t.health.Store(provider.HealthUnhealthy)
	}
}

// recordHealthCheck applies the outcome of an active health check: a
// successful check heals the target immediately (spec §4.2: "unhealthy
// -> healthy after one successful active health check").
func (t *Target) recordHealthCheck(result *provider.HealthCheckResult) {
	t.mu.Lock()
	t.lastHealthCheck = time.Now()
	t.mu.Unlock()

	if result != nil && result.Status == provider.HealthHealthy {
		t.consecutiveErrors.Store(0)
		t.health.Store(provider.HealthHealthy)
		return
	}
	if t.consecutiveErrors.Add(1) >= 3 {
		t.health.Store(provider.HealthUnhealthy)
	}
}
