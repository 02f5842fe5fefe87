// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"sync"
	"time"

	"github.com/axonflow/routingcore/internal/provider"
)

// Capabilities mirrors spec §3's RoutingCapabilities, declared per pool
// and consulted per request by the routing engine.
type Capabilities struct {
	SupportedModels     []string
	MaxTokens           int // 0 means "unlimited"
	Streaming           bool
	Tools               bool
	Images              bool
	FunctionCalling     bool
	Multimodal          bool
	SupportedModalities []string
	Priority            int
	Availability        float64
	LoadWeight          float64
	CostScore           float64
	PerformanceScore    float64
	RoutingTags         []string
	RegionRestrictions  []string
	UsagePerMinuteLimit int
}

// Metrics is a PipelinePool's running execution counters (spec §3).
type Metrics struct {
	mu         sync.Mutex
	Total      int64
	Successful int64
	Failed     int64
	avgLatency time.Duration
}

// Record folds one execution outcome into the pool's counters and
// updates the moving-average latency with
// avg' = ((n-1)*avg + duration) / n (spec §4.5).
func (m *Metrics) Record(success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Total++
	if success {
		m.Successful++
	} else {
		m.Failed++
	}
	n := time.Duration(m.Total)
	m.avgLatency = ((n-1)*m.avgLatency + duration) / n
}

// Snapshot returns a consistent copy of the metrics.
func (m *Metrics) Snapshot() (total, successful, failed int64, avgLatency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Total, m.Successful, m.Failed, m.avgLatency
}

// Pool is a group of Pipelines serving one routing class (spec §3/§4.3).
// It is a passive holder: the Scheduler drives execute/health paths, the
// Assembler drives hot-reload.
type Pool struct {
	RoutingID    string
	Capabilities Capabilities
	Metrics      *Metrics

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	active    *Pipeline
	health    provider.HealthStatus
	lastCheck time.Time
}

// NewPool constructs an empty Pool for routingID. The Assembler inserts
// pipelines via Add; the first one inserted becomes active and stays
// active for the pool's lifetime (spec §4.3: "active is the first
// pipeline inserted, stable").
func NewPool(routingID string, caps Capabilities) *Pool {
	return &Pool{
		RoutingID:    routingID,
		Capabilities: caps,
		Metrics:      &Metrics{},
		pipelines:    make(map[string]*Pipeline),
		health:       provider.HealthUnknown,
	}
}

// Add inserts a pipeline into the pool. The first call also sets active.
func (p *Pool) Add(pl *Pipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipelines[pl.ID] = pl
	if p.active == nil {
		p.active = pl
	}
}

// Replace swaps the pipeline stored under id in place, used by hot-reload
// to refresh a kept routing class's targets without disturbing in-flight
// requests that already captured the old *Pipeline value (spec §4.5).
func (p *Pool) Replace(pl *Pipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasActive := p.active != nil && p.pipelines[p.active.ID] == p.active && p.active.ID == pl.ID
	p.pipelines[pl.ID] = pl
	if wasActive || p.active == nil {
		p.active = pl
	}
}

// SetCapabilities updates the pool's declared capabilities in place,
// used by hot-reload to refresh synthesized or declared values without
// disturbing the pool's pipeline identity or metrics.
func (p *Pool) SetCapabilities(caps Capabilities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Capabilities = caps
}

// Active returns the pool's active pipeline, or nil if the pool is empty.
func (p *Pool) Active() *Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Empty reports whether the pool holds no pipelines (spec §4.3: recorded
// as a warning at assembly time, but the pool is kept).
func (p *Pool) Empty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pipelines) == 0
}

// Pipelines returns a snapshot slice of the pool's pipelines.
func (p *Pool) Pipelines() []*Pipeline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Pipeline, 0, len(p.pipelines))
	for _, pl := range p.pipelines {
		out = append(out, pl)
	}
	return out
}

// SetHealth records the outcome of the pool's last health sweep.
func (p *Pool) SetHealth(status provider.HealthStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = status
	p.lastCheck = time.Now()
}

// Health returns the pool's last recorded health status and check time.
func (p *Pool) Health() (provider.HealthStatus, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health, p.lastCheck
}
