// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package observability

import "time"

// Stage identifies a point in the request lifecycle an Observer can react to.
type Stage string

const (
	StageAnalyzed Stage = "analyzed"
	StageDecided  Stage = "decided"
	StageExecuting Stage = "executing"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// StageEvent is emitted by the Scheduler at each stage of a request's
// lifecycle. It replaces the teacher's implicit log-line-per-stage pattern
// with an explicit, structured event per spec §9 ("replace global event
// subscription with an explicit channel").
type StageEvent struct {
	RequestID string
	Stage     Stage
	RoutingID string
	PoolID    string
	At        time.Time
	Detail    string
	Err       error
}

// Observer is the capability sink for request context / stage events
// (the spec's "Tracker"). Debug-centre persistence, tracing, and logging
// integrations are external collaborators that implement this interface;
// the core never imports them directly.
type Observer interface {
	// Observe is called once per StageEvent. Implementations must not block
	// the caller for long; do expensive work asynchronously.
	Observe(evt StageEvent)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(StageEvent)

func (f ObserverFunc) Observe(evt StageEvent) { f(evt) }

// nopObserver discards every event.
type nopObserver struct{}

// NopObserver is the default Observer: every method is a no-op so callers
// never need to guard calls with a nil check.
var NopObserver Observer = nopObserver{}

func (nopObserver) Observe(StageEvent) {}
