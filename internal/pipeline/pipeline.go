// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package pipeline implements the Pipeline and PipelinePool types: an
// ordered chain of provider+model+credential Targets with pluggable
// target-selection, per-target retries, and a health-check sweep (spec
// §4.2/§4.3), grounded on the teacher's llm.ProviderSelector
// (platform/orchestrator/llm/routing_strategy.go) generalized from
// provider-name selection to target-index selection.
package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axonflow/routingcore/internal/errs"
	"github.com/axonflow/routingcore/internal/provider"
)

// LoadBalancing is a Pipeline's target-selection algorithm (spec §3).
type LoadBalancing string

const (
	LoadBalancingRoundRobin      LoadBalancing = "round_robin"
	LoadBalancingWeighted        LoadBalancing = "weighted"
	LoadBalancingRandom          LoadBalancing = "random"
	LoadBalancingLeastConnection LoadBalancing = "least_connections"
)

// Operation selects which provider verb a Pipeline.Execute call invokes.
type Operation string

const (
	OperationChat        Operation = "chat"
	OperationStreamChat  Operation = "streamChat"
	OperationHealthCheck Operation = "healthCheck"
)

// ExecuteOpts carries the per-call deadline and caller metadata (spec §5:
// "every execute carries a deadline, default 30s").
type ExecuteOpts struct {
	Timeout  time.Duration
	Metadata map[string]any
}

const defaultTimeout = 30 * time.Second
const defaultHealthCheckTimeout = 5 * time.Second

// Pipeline owns an ordered list of Targets and selects one per request
// under its declared load-balancing algorithm (spec §3/§4.2).
type Pipeline struct {
	ID                  string
	Targets             []*Target
	LoadBalancing       LoadBalancing
	HealthCheckInterval time.Duration
	MaxRetries          int
	Timeout             time.Duration
	Metadata            map[string]any

	roundRobinIndex atomic.Uint64
	randMu          sync.Mutex
	rng             *rand.Rand
}

// New constructs a Pipeline. maxRetries of zero means "try once, no
// retry across targets".
func New(id string, targets []*Target, lb LoadBalancing, healthCheckInterval, timeout time.Duration, maxRetries int, metadata map[string]any) *Pipeline {
	return &Pipeline{
		ID:                  id,
		Targets:             targets,
		LoadBalancing:       lb,
		HealthCheckInterval: healthCheckInterval,
		MaxRetries:          maxRetries,
		Timeout:             timeout,
		Metadata:            metadata,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// selectable returns the pipeline's enabled, non-unhealthy targets minus
// any already-tried ids, sorted by Target.ID for deterministic
// tie-breaking (spec §4.2: "tie-break by lexical target id").
func (p *Pipeline) selectable(exclude map[string]bool) []*Target {
	out := make([]*Target, 0, len(p.Targets))
	for _, t := range p.Targets {
		if !t.Selectable() {
			continue
		}
		if exclude[t.ID()] {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// selectTarget picks one target from candidates under the pipeline's
// load-balancing algorithm (spec §4.2).
func (p *Pipeline) selectTarget(candidates []*Target) *Target {
	if len(candidates) == 0 {
		return nil
	}
	switch p.LoadBalancing {
	case LoadBalancingRoundRobin:
		idx := p.roundRobinIndex.Add(1) - 1
		return candidates[int(idx)%len(candidates)]
	case LoadBalancingWeighted:
		return p.selectWeighted(candidates)
	case LoadBalancingLeastConnection:
		return p.selectLeastConnections(candidates)
	case LoadBalancingRandom:
		fallthrough
	default:
		p.randMu.Lock()
		defer p.randMu.Unlock()
		return candidates[p.rng.Intn(len(candidates))]
	}
}

// selectWeighted draws uniformly in [0, sum(weight)) and walks the
// cumulative weight, the teacher's selectWeighted inverse-CDF pattern
// generalized from provider names to Target pointers.
func (p *Pipeline) selectWeighted(candidates []*Target) *Target {
	p.randMu.Lock()
	defer p.randMu.Unlock()

	total := 0.0
	for _, t := range candidates {
		w := t.Weight
		if w <= 0 {
			w = 1.0
		}
		total += w
	}
	if total <= 0 {
		return candidates[p.rng.Intn(len(candidates))]
	}
	r := p.rng.Float64() * total
	for _, t := range candidates {
		w := t.Weight
		if w <= 0 {
			w = 1.0
		}
		r -= w
		if r <= 0 {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

func (p *Pipeline) selectLeastConnections(candidates []*Target) *Target {
	best := candidates[0]
	for _, t := range candidates[1:] {
		if t.InFlight() < best.InFlight() {
			best = t
		}
	}
	return best
}

// Execute selects a target and invokes its provider; on a retryable
// provider error or timeout it retries on the next target up to
// MaxRetries, excluding targets already attempted this call (spec
// §4.2). timeout overrides the pipeline's own Timeout for this call
// when positive; zero means "use Pipeline.Timeout" (spec §5: "every
// execute carries a deadline, default 30s, override via opts").
func (p *Pipeline) Execute(ctx context.Context, req provider.CompletionRequest, timeout time.Duration) (*provider.CompletionResponse, error) {
	return p.run(ctx, req, nil, timeout)
}

// ExecuteStreaming applies the same target-selection and retry logic
// until the first chunk is emitted to handler; once a chunk has been
// emitted, failures propagate without failover (spec §4.2).
func (p *Pipeline) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler, timeout time.Duration) (*provider.CompletionResponse, error) {
	return p.run(ctx, req, handler, timeout)
}

func (p *Pipeline) run(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler, timeout time.Duration) (*provider.CompletionResponse, error) {
	if timeout <= 0 {
		timeout = p.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tried := make(map[string]bool, p.MaxRetries+1)
	var lastErr error

	// chunkEmitted latches once handler has received at least one chunk
	// for this call, across attempts: the "retry until first chunk"
	// boundary applies to the whole request, not to a single target
	// attempt (spec §4.2/§8 scenario 3).
	var chunkEmitted bool
	wrapped := handler
	if handler != nil {
		wrapped = func(chunk provider.StreamChunk) error {
			chunkEmitted = true
			return handler(chunk)
		}
	}

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		candidates := p.selectable(tried)
		if len(candidates) == 0 {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, errs.NoActivePipeline(p.ID)
		}
		target := p.selectTarget(candidates)
		tried[target.ID()] = true

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := p.invoke(attemptCtx, target, req, wrapped)
		cancel()

		if err == nil {
			return resp, nil
		}

		classified := classify(target.ProviderID, attempt, err)
		lastErr = classified
		if chunkEmitted {
			// A stream that has already begun emitting chunks must not
			// fail over silently; the caller's handler having seen a
			// partial stream makes a later failure terminal here.
			return nil, classified
		}
		if !errs.IsRetryable(classified) {
			return nil, classified
		}
	}
	return nil, lastErr
}

func (p *Pipeline) invoke(ctx context.Context, target *Target, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	target.beginAttempt()
	var resp *provider.CompletionResponse
	var err error
	if handler != nil {
		resp, err = target.Handle.ExecuteStreaming(ctx, req, handler)
	} else {
		resp, err = target.Handle.Execute(ctx, req)
	}
	target.endAttempt(err == nil)
	return resp, err
}

func classify(providerID string, attempt int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Timeout(providerID, attempt, err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.Cancelled(providerID, attempt, err)
	}
	var unsupported *provider.UnsupportedError
	if errors.As(err, &unsupported) {
		return errs.Provider(providerID, attempt, false, err)
	}
	return errs.Provider(providerID, attempt, true, err)
}

// HealthCheck delegates to every target's provider.HealthCheck with a
// short timeout and reports the aggregated pipeline status: healthy iff
// at least one target is healthy (spec §4.2).
func (p *Pipeline) HealthCheck(ctx context.Context) provider.HealthStatus {
	if len(p.Targets) == 0 {
		return provider.HealthUnknown
	}
	anyHealthy := false
	for _, t := range p.Targets {
		checkCtx, cancel := context.WithTimeout(ctx, defaultHealthCheckTimeout)
		result, err := t.Handle.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			result = &provider.HealthCheckResult{Status: provider.HealthUnhealthy, Message: err.Error()}
		}
		t.recordHealthCheck(result)
		if t.Health() != provider.HealthUnhealthy {
			anyHealthy = true
		}
	}
	if anyHealthy {
		return provider.HealthHealthy
	}
	return provider.HealthUnhealthy
}
