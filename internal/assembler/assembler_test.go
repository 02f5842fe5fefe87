// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package assembler

import (
	"context"
	"testing"

	"github.com/axonflow/routingcore/internal/config"
	"github.com/axonflow/routingcore/internal/provider"
)

// stubProvider is a minimal Cloneable provider.Provider for assembler tests.
type stubProvider struct {
	id    string
	model string
}

func (s *stubProvider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return &provider.CompletionResponse{Content: "ok", Model: s.model}, nil
}

func (s *stubProvider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	return s.Execute(ctx, req)
}

func (s *stubProvider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	return &provider.HealthCheckResult{Status: provider.HealthHealthy}, nil
}

func (s *stubProvider) Info() provider.Info {
	return provider.Info{Name: s.id, DefaultModel: s.model}
}

func (s *stubProvider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityChat}
}

func (s *stubProvider) SupportsStreaming() bool { return true }

func (s *stubProvider) Clone(modelID string, keyIndex int) (provider.Provider, error) {
	return &stubProvider{id: s.id, model: modelID}, nil
}

func TestAssemble_EmptyRegistryIsFatal(t *testing.T) {
	a := New(provider.NewRegistry(), nil)
	_, err := a.Assemble(config.GatewayConfig{})
	if err == nil {
		t.Fatal("expected empty registry to be a fatal assembly error")
	}
}

func TestAssemble_BuildsOnePoolPerRoutingClass(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register("openai-primary", &stubProvider{id: "openai-primary", model: "gpt-4o"})

	a := New(registry, nil)
	cfg := config.GatewayConfig{
		PipelineTable: []config.RoutingClassConfig{
			{
				RoutingID: "default",
				Entries: []config.PipelineEntry{
					{RoutingID: "default", ProviderID: "openai-primary", ModelID: "gpt-4o-mini", KeyIndex: 0, Enabled: true, Weight: 1},
				},
			},
		},
	}

	result, err := a.Assemble(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, ok := result.Pools["default"]
	if !ok {
		t.Fatal("expected a pool for routing class 'default'")
	}
	if pool.Empty() {
		t.Fatal("expected pool to have at least one pipeline")
	}
	if pool.Active() == nil {
		t.Fatal("expected pool to have an active pipeline")
	}
}

func TestAssemble_MissingProviderIsWarningNotFatal(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register("known", &stubProvider{id: "known", model: "gpt-4o"})

	a := New(registry, nil)
	cfg := config.GatewayConfig{
		PipelineTable: []config.RoutingClassConfig{
			{
				RoutingID: "broken",
				Entries: []config.PipelineEntry{
					{RoutingID: "broken", ProviderID: "unknown-provider", ModelID: "m1", KeyIndex: 0, Enabled: true},
				},
			},
			{
				RoutingID: "default",
				Entries: []config.PipelineEntry{
					{RoutingID: "default", ProviderID: "known", ModelID: "gpt-4o", KeyIndex: 0, Enabled: true},
				},
			},
		},
	}

	result, err := a.Assemble(cfg)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(result.Errors) == 0 {
		t.Error("expected a per-class error for the broken routing class")
	}
	if _, ok := result.Pools["default"]; !ok {
		t.Error("expected the sibling routing class to still assemble")
	}
	if _, ok := result.Pools["broken"]; ok {
		t.Error("did not expect a pool for a routing class with no usable targets")
	}
}

func TestAssemble_EmptyRoutingClassGetsFallbackPipeline(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register("known", &stubProvider{id: "known", model: "gpt-4o"})

	a := New(registry, nil)
	cfg := config.GatewayConfig{
		PipelineTable: []config.RoutingClassConfig{
			{RoutingID: "empty-class", Entries: nil},
		},
	}

	result, err := a.Assemble(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, ok := result.Pools["empty-class"]
	if !ok {
		t.Fatal("expected a pool to be kept for an entry-less routing class")
	}
	if pool.Active() == nil {
		t.Error("expected a synthesized fallback pipeline to be active")
	}
}

func TestAssemble_SynthesizesVisionCapabilityFromModelName(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register("openai-primary", &stubProvider{id: "openai-primary", model: "gpt-4o"})

	a := New(registry, nil)
	cfg := config.GatewayConfig{
		PipelineTable: []config.RoutingClassConfig{
			{
				RoutingID: "vision",
				Entries: []config.PipelineEntry{
					{RoutingID: "vision", ProviderID: "openai-primary", ModelID: "gpt-4o", KeyIndex: 0, Enabled: true},
				},
			},
		},
	}

	result, err := a.Assemble(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool := result.Pools["vision"]
	if !pool.Capabilities.Images || !pool.Capabilities.Multimodal {
		t.Errorf("expected synthesized capabilities to mark gpt-4o as image-capable, got %+v", pool.Capabilities)
	}
}
