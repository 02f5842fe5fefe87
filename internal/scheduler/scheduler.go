// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package scheduler implements the SchedulerManager (spec §4.5): the
// central fixture owning all pools, driving the analyser and routing
// engine, executing decisions, tracking metrics, and running the
// periodic health-check sweep. Grounded on the teacher's
// orchestrator.Router (platform/orchestrator/llm/router.go)
// generalized from "pick one provider, call it" into "decide a pool,
// execute its active pipeline, fold the outcome back into pool and
// engine state".
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/axonflow/routingcore/internal/analyzer"
	"github.com/axonflow/routingcore/internal/errs"
	"github.com/axonflow/routingcore/internal/observability"
	"github.com/axonflow/routingcore/internal/pipeline"
	"github.com/axonflow/routingcore/internal/provider"
	"github.com/axonflow/routingcore/internal/routing"
)

const defaultHealthCheckInterval = 30 * time.Second
const defaultHealthCheckTimeout = 5 * time.Second

// Opts carries per-call tuning for Execute/ExecuteStreaming (spec §4.5).
type Opts struct {
	Timeout  time.Duration
	Priority string
	Metadata map[string]any
}

// Manager is the SchedulerManager. All public entry points are
// goroutine-safe (spec §5: "all public entry points are thread-safe").
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*pipeline.Pool

	analyzerCfg      analyzer.Config
	engine           *routing.Engine
	engineEnabled    bool
	defaultRoutingID string

	observer observability.Observer
	metrics  *observability.Metrics
	log      observability.Logger

	healthCheckInterval time.Duration
	healthCancel        context.CancelFunc
	healthDone          chan struct{}

	initialized atomic.Bool
}

// New constructs a Manager bound to engine. A nil observer/metrics/log
// installs the corresponding no-op default.
func New(engine *routing.Engine, observer observability.Observer, metrics *observability.Metrics, log observability.Logger) *Manager {
	if observer == nil {
		observer = observability.NopObserver
	}
	if log == nil {
		log = observability.NopLogger
	}
	return &Manager{
		pools:               make(map[string]*pipeline.Pool),
		analyzerCfg:         analyzer.DefaultConfig(),
		engine:              engine,
		engineEnabled:       engine != nil,
		defaultRoutingID:    "default",
		observer:            observer,
		metrics:             metrics,
		log:                 log,
		healthCheckInterval: defaultHealthCheckInterval,
	}
}

// Initialize installs pools, registers each pool's capabilities with the
// engine, and arms the health-check timer (spec §4.5). Idempotent:
// reinvocation stops any running health loop and replaces the pool set.
func (m *Manager) Initialize(pools map[string]*pipeline.Pool, healthCheckInterval time.Duration) error {
	m.stopHealthLoop()

	m.mu.Lock()
	if healthCheckInterval <= 0 {
		healthCheckInterval = defaultHealthCheckInterval
	}
	m.pools = make(map[string]*pipeline.Pool, len(pools))
	for id, p := range pools {
		m.pools[id] = p
	}
	m.healthCheckInterval = healthCheckInterval
	m.mu.Unlock()

	m.registerCapabilities()
	m.armHealthLoop()
	m.initialized.Store(true)
	return nil
}

// stopHealthLoop cancels any running health loop and waits for it to
// exit, without holding m.mu across the wait — sweepHealth takes a read
// lock mid-sweep and must be able to finish its current tick.
func (m *Manager) stopHealthLoop() {
	m.mu.Lock()
	cancel := m.healthCancel
	done := m.healthDone
	m.healthCancel = nil
	m.healthDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (m *Manager) registerCapabilities() {
	if !m.engineEnabled {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, p := range m.pools {
		m.engine.RegisterPool(id, p.Capabilities)
	}
}

// Handle implements spec §4.5's handle(): analyse, decide (or fall back),
// translate to an operation, execute. handler is nil for a plain
// request/response call; pass a non-nil handler to receive a streaming
// request's chunks (spec §4.5 step 2: "request.stream → streamChat").
func (m *Manager) Handle(ctx context.Context, req provider.CompletionRequest, userCtx *analyzer.UserContext, strategyName string, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	if !m.initialized.Load() {
		return nil, errs.Uninitialised()
	}

	requestID := uuid.NewString()
	analysis := analyzer.Analyze(m.analyzerCfg, req, userCtx)
	m.emit(requestID, observability.StageAnalyzed, "", "", "", nil)

	routingID, decisionMeta, err := m.route(analysis, strategyName)
	if err != nil {
		m.emit(requestID, observability.StageFailed, routingID, "", "routing decision failed", err)
		return nil, err
	}
	m.emit(requestID, observability.StageDecided, routingID, "", decisionMeta, nil)

	operation := deriveOperation(req)
	opts := Opts{Priority: string(analysis.Priority), Metadata: req.Metadata}
	if operation == pipeline.OperationStreamChat && handler != nil {
		return m.ExecuteStreaming(ctx, routingID, req, opts, handler, requestID)
	}
	return m.Execute(ctx, routingID, req, operation, opts, requestID)
}

func (m *Manager) route(analysis analyzer.Result, strategyName string) (routingID string, reason string, err error) {
	if m.engineEnabled {
		decision, decideErr := m.engine.Decide(analysis, strategyName)
		if decideErr != nil {
			return "", "", decideErr
		}
		if m.metrics != nil {
			m.metrics.DecisionDuration.Observe(decision.RoutingTime.Seconds())
			if decision.FallbackUsed {
				m.metrics.FallbackDecisions.Inc()
			}
		}
		return decision.TargetRoutingID, decision.DecisionReason, nil
	}
	return m.fallbackRoutingID(), "engine disabled: default-if-present-else-first", nil
}

// fallbackRoutingID implements the engine-disabled fallback: "pick the
// pool identified by a simple default-if-present-else-first rule"
// (spec §4.5).
func (m *Manager) fallbackRoutingID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.pools[m.defaultRoutingID]; ok {
		return m.defaultRoutingID
	}
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return m.defaultRoutingID
	}
	return ids[0]
}

// deriveOperation translates request fields into the operation spec
// §4.5 names: request.stream → streamChat, a health-check marker →
// healthCheck, else chat.
func deriveOperation(req provider.CompletionRequest) pipeline.Operation {
	if req.Metadata != nil {
		if t, ok := req.Metadata["requestType"].(string); ok && t == "health_check" {
			return pipeline.OperationHealthCheck
		}
	}
	if req.Stream {
		return pipeline.OperationStreamChat
	}
	return pipeline.OperationChat
}

// Execute implements spec §4.5's execute(): look up pool, dispatch to
// its active pipeline, fold the outcome into pool and engine metrics.
func (m *Manager) Execute(ctx context.Context, routingID string, req provider.CompletionRequest, operation pipeline.Operation, opts Opts, requestID string) (*provider.CompletionResponse, error) {
	pool, active, err := m.resolveActive(routingID)
	if err != nil {
		m.emit(requestID, observability.StageFailed, routingID, "", "", err)
		return nil, err
	}

	m.emit(requestID, observability.StageExecuting, routingID, pool.RoutingID, string(operation), nil)
	start := time.Now()

	if operation == pipeline.OperationHealthCheck {
		status := active.HealthCheck(ctx)
		pool.SetHealth(status)
		m.recordPoolHealth(routingID, status)
		resp := &provider.CompletionResponse{Metadata: map[string]any{"status": string(status)}}
		m.emit(requestID, observability.StageCompleted, routingID, pool.RoutingID, string(status), nil)
		return resp, nil
	}

	resp, err := active.Execute(ctx, req, opts.Timeout)
	duration := time.Since(start)
	pool.Metrics.Record(err == nil, duration)
	m.recordRequestMetrics(routingID, err == nil, duration)

	if err != nil {
		m.emit(requestID, observability.StageFailed, routingID, pool.RoutingID, "", err)
		return nil, err
	}
	m.emit(requestID, observability.StageCompleted, routingID, pool.RoutingID, "", nil)
	return resp, nil
}

// ExecuteStreaming is Execute's lazy-sequence counterpart: the handler is
// invoked per chunk and pool metrics are updated once the stream ends or
// fails (spec §4.5).
func (m *Manager) ExecuteStreaming(ctx context.Context, routingID string, req provider.CompletionRequest, opts Opts, handler provider.StreamHandler, requestID string) (*provider.CompletionResponse, error) {
	pool, active, err := m.resolveActive(routingID)
	if err != nil {
		m.emit(requestID, observability.StageFailed, routingID, "", "", err)
		return nil, err
	}

	m.emit(requestID, observability.StageExecuting, routingID, pool.RoutingID, "streamChat", nil)
	start := time.Now()
	resp, err := active.ExecuteStreaming(ctx, req, handler, opts.Timeout)
	duration := time.Since(start)
	pool.Metrics.Record(err == nil, duration)
	m.recordRequestMetrics(routingID, err == nil, duration)

	if err != nil {
		m.emit(requestID, observability.StageFailed, routingID, pool.RoutingID, "", err)
		return nil, err
	}
	m.emit(requestID, observability.StageCompleted, routingID, pool.RoutingID, "", nil)
	return resp, nil
}

func (m *Manager) resolveActive(routingID string) (*pipeline.Pool, *pipeline.Pipeline, error) {
	m.mu.RLock()
	pool, ok := m.pools[routingID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, errs.RoutingNotFound(routingID)
	}
	active := pool.Active()
	if active == nil {
		return nil, nil, errs.NoActivePipeline(routingID)
	}
	return pool, active, nil
}

func (m *Manager) emit(requestID string, stage observability.Stage, routingID, poolID, detail string, err error) {
	m.observer.Observe(observability.StageEvent{
		RequestID: requestID,
		Stage:     stage,
		RoutingID: routingID,
		PoolID:    poolID,
		At:        time.Now(),
		Detail:    detail,
		Err:       err,
	})
}

func (m *Manager) recordRequestMetrics(routingID string, success bool, duration time.Duration) {
	if m.metrics == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.metrics.RequestsTotal.WithLabelValues(routingID, outcome).Inc()
	m.metrics.RequestDuration.WithLabelValues(routingID).Observe(duration.Seconds())
}

func (m *Manager) recordPoolHealth(routingID string, status provider.HealthStatus) {
	if m.metrics == nil {
		return
	}
	value := 0.0
	if status == provider.HealthHealthy {
		value = 1.0
	}
	m.metrics.PoolHealth.WithLabelValues(routingID).Set(value)
}

// Destroy stops the health loop, releases the routing engine's
// background resources, and clears all pools (spec §4.5: "stop timer;
// destroy routing engine; destroy every pool; clear maps;
// initialised=false").
func (m *Manager) Destroy() {
	m.stopHealthLoop()

	m.mu.Lock()
	m.pools = make(map[string]*pipeline.Pool)
	m.mu.Unlock()

	if m.engineEnabled {
		m.engine.Close()
	}
	m.initialized.Store(false)
}
