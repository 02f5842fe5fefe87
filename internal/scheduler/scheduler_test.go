// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/axonflow/routingcore/internal/errs"
	"github.com/axonflow/routingcore/internal/observability"
	"github.com/axonflow/routingcore/internal/pipeline"
	"github.com/axonflow/routingcore/internal/provider"
	"github.com/axonflow/routingcore/internal/routing"
)

// fakeProvider is a minimal provider.Provider stand-in for scheduler tests.
type fakeProvider struct {
	mu            sync.Mutex
	executeFn     func(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error)
	healthCheckFn func(ctx context.Context) (*provider.HealthCheckResult, error)
	calls         int
}

func (f *fakeProvider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.executeFn(ctx, req)
}

func (f *fakeProvider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	resp, err := f.executeFn(ctx, req)
	if err != nil {
		return nil, err
	}
	if herr := handler(provider.StreamChunk{Content: resp.Content, Done: true}); herr != nil {
		return nil, herr
	}
	return resp, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	if f.healthCheckFn != nil {
		return f.healthCheckFn(ctx)
	}
	return &provider.HealthCheckResult{Status: provider.HealthHealthy}, nil
}

func (f *fakeProvider) Info() provider.Info { return provider.Info{Name: "fake"} }

func (f *fakeProvider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityChat}
}

func (f *fakeProvider) SupportsStreaming() bool { return true }

func okProvider(content string) *fakeProvider {
	return &fakeProvider{executeFn: func(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
		return &provider.CompletionResponse{Content: content}, nil
	}}
}

func failProvider(err error) *fakeProvider {
	return &fakeProvider{executeFn: func(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
		return nil, err
	}}
}

func singlePool(routingID, content string, caps pipeline.Capabilities) *pipeline.Pool {
	target := pipeline.NewTarget(okProvider(content), "p1", "m1", 0, 1, true)
	pl := pipeline.New(routingID+"-pl1", []*pipeline.Target{target}, pipeline.LoadBalancingRoundRobin, time.Minute, time.Second, 0, nil)
	pool := pipeline.NewPool(routingID, caps)
	pool.Add(pl)
	return pool
}

func chatCaps() pipeline.Capabilities {
	return pipeline.Capabilities{
		SupportedModels: []string{"m1"},
		Streaming:       true,
		Availability:    1,
		Priority:        50,
		LoadWeight:      1,
	}
}

func TestHandle_ReturnsUninitialisedBeforeInitialize(t *testing.T) {
	m := New(routing.NewEngine(), nil, nil, nil)
	_, err := m.Handle(context.Background(), provider.CompletionRequest{Prompt: "hi"}, nil, "", nil)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindUninitialised {
		t.Fatalf("expected uninitialised error, got %v", err)
	}
}

func TestHandle_RoutesPlainChatThroughActivePipeline(t *testing.T) {
	engine := routing.NewEngine()
	m := New(engine, nil, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{"default": singlePool("default", "hello", chatCaps())}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	resp, err := m.Handle(context.Background(), provider.CompletionRequest{Prompt: "hi"}, nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected response from the only registered pool, got %q", resp.Content)
	}
}

func TestHandle_StreamingDispatchesThroughHandler(t *testing.T) {
	engine := routing.NewEngine()
	m := New(engine, nil, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{"default": singlePool("default", "chunked", chatCaps())}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var received []string
	handler := func(chunk provider.StreamChunk) error {
		received = append(received, chunk.Content)
		return nil
	}
	_, err := m.Handle(context.Background(), provider.CompletionRequest{Prompt: "hi", Stream: true}, nil, "", handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received) != 1 || received[0] != "chunked" {
		t.Errorf("expected one chunk 'chunked', got %v", received)
	}
}

func TestHandle_HealthCheckMarkerShortCircuitsToHealthCheck(t *testing.T) {
	engine := routing.NewEngine()
	m := New(engine, nil, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{"default": singlePool("default", "hello", chatCaps())}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	req := provider.CompletionRequest{Metadata: map[string]any{"requestType": "health_check"}}
	resp, err := m.Handle(context.Background(), req, nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Metadata["status"] != string(provider.HealthHealthy) {
		t.Errorf("expected healthy status in response metadata, got %v", resp.Metadata)
	}
}

func TestExecute_UnknownRoutingIDReturnsRoutingNotFound(t *testing.T) {
	m := New(nil, nil, nil, nil)
	defer m.Destroy()
	if err := m.Initialize(map[string]*pipeline.Pool{}, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := m.Execute(context.Background(), "missing", provider.CompletionRequest{}, pipeline.OperationChat, Opts{}, "req-1")
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindRoutingNotFound {
		t.Fatalf("expected routing-not-found error, got %v", err)
	}
}

func TestExecute_PropagatesProviderFailureAndRecordsPoolMetrics(t *testing.T) {
	m := New(nil, nil, nil, nil)
	defer m.Destroy()

	target := pipeline.NewTarget(failProvider(errors.New("boom")), "p1", "m1", 0, 1, true)
	pl := pipeline.New("pl1", []*pipeline.Target{target}, pipeline.LoadBalancingRoundRobin, time.Minute, time.Second, 0, nil)
	pool := pipeline.NewPool("default", chatCaps())
	pool.Add(pl)

	if err := m.Initialize(map[string]*pipeline.Pool{"default": pool}, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	_, err := m.Execute(context.Background(), "default", provider.CompletionRequest{}, pipeline.OperationChat, Opts{}, "req-1")
	if err == nil {
		t.Fatal("expected the provider failure to propagate")
	}
	total, _, failed, _ := pool.Metrics.Snapshot()
	if total != 1 || failed != 1 {
		t.Errorf("expected one failed attempt recorded, got total=%d failed=%d", total, failed)
	}
}

func TestObserver_ReceivesStageEventsInOrder(t *testing.T) {
	var stages []observability.Stage
	var mu sync.Mutex
	observer := observability.ObserverFunc(func(evt observability.StageEvent) {
		mu.Lock()
		stages = append(stages, evt.Stage)
		mu.Unlock()
	})

	m := New(routing.NewEngine(), observer, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{"default": singlePool("default", "hello", chatCaps())}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := m.Handle(context.Background(), provider.CompletionRequest{Prompt: "hi"}, nil, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []observability.Stage{observability.StageAnalyzed, observability.StageDecided, observability.StageExecuting, observability.StageCompleted}
	if len(stages) != len(want) {
		t.Fatalf("expected %d stage events, got %d: %v", len(want), len(stages), stages)
	}
	for i, s := range want {
		if stages[i] != s {
			t.Errorf("stage %d: expected %s, got %s", i, s, stages[i])
		}
	}
}

func TestHotReload_KeepsMetricsAndActivePipelineIdentityForKeptPool(t *testing.T) {
	m := New(nil, nil, nil, nil)
	defer m.Destroy()

	initial := singlePool("default", "v1", chatCaps())
	if err := m.Initialize(map[string]*pipeline.Pool{"default": initial}, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := m.Execute(context.Background(), "default", provider.CompletionRequest{}, pipeline.OperationChat, Opts{}, "req-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replacement := singlePool("default", "v2", chatCaps())
	m.HotReload(map[string]*pipeline.Pool{"default": replacement})

	snap, ok := m.GetPoolSnapshot("default")
	if !ok {
		t.Fatal("expected the kept routing class to still be registered")
	}
	if snap.Active != "default-pl1" {
		t.Errorf("expected the replacement pipeline's id to be installed, got %q", snap.Active)
	}

	total, _, _, _ := initial.Metrics.Snapshot()
	if total != 1 {
		t.Errorf("expected the original pool's metrics to survive the reload, got total=%d", total)
	}

	resp, err := m.Execute(context.Background(), "default", provider.CompletionRequest{}, pipeline.OperationChat, Opts{}, "req-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "v2" {
		t.Errorf("expected the replacement pipeline to serve the next call, got %q", resp.Content)
	}
}

func TestHotReload_RemovesDroppedRoutingClass(t *testing.T) {
	m := New(routing.NewEngine(), nil, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{
		"default": singlePool("default", "a", chatCaps()),
		"legacy":  singlePool("legacy", "b", chatCaps()),
	}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	m.HotReload(map[string]*pipeline.Pool{"default": pools["default"]})

	if _, ok := m.GetPoolSnapshot("legacy"); ok {
		t.Error("expected the dropped routing class to be removed")
	}
	if _, ok := m.GetPoolSnapshot("default"); !ok {
		t.Error("expected the kept routing class to remain")
	}
}

func TestGetMetrics_AggregatesPoolsAndEngineStats(t *testing.T) {
	m := New(routing.NewEngine(), nil, nil, nil)
	defer m.Destroy()

	pools := map[string]*pipeline.Pool{"default": singlePool("default", "hi", chatCaps())}
	if err := m.Initialize(pools, time.Hour); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := m.Handle(context.Background(), provider.CompletionRequest{Prompt: "hi"}, nil, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snaps, stats := m.GetMetrics()
	if len(snaps) != 1 || snaps[0].Total != 1 {
		t.Errorf("expected one pool snapshot with one recorded call, got %+v", snaps)
	}
	if stats.TotalDecisions != 1 {
		t.Errorf("expected the engine to have recorded one decision, got %d", stats.TotalDecisions)
	}
}

func TestArmHealthLoop_SweepsActivePipelineAndRecordsHealth(t *testing.T) {
	m := New(nil, nil, nil, nil)
	defer m.Destroy()

	pool := singlePool("default", "hi", chatCaps())
	if err := m.Initialize(map[string]*pipeline.Pool{"default": pool}, 10*time.Millisecond); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if status, _ := pool.Health(); status == provider.HealthHealthy {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the health loop to mark the pool healthy within the deadline")
}

func TestDestroy_StopsHealthLoopAndClearsPools(t *testing.T) {
	m := New(routing.NewEngine(), nil, nil, nil)
	pools := map[string]*pipeline.Pool{"default": singlePool("default", "hi", chatCaps())}
	if err := m.Initialize(pools, 10*time.Millisecond); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	m.Destroy()

	if _, ok := m.GetPoolSnapshot("default"); ok {
		t.Error("expected pools to be cleared after destroy")
	}
	_, err := m.Handle(context.Background(), provider.CompletionRequest{}, nil, "", nil)
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.KindUninitialised {
		t.Errorf("expected uninitialised error after destroy, got %v", err)
	}
}
