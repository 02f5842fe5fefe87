// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Command routingcore wires the RequestAnalyzer, PipelineAssembler,
// RoutingRulesEngine and SchedulerManager together against an in-memory
// configuration and runs one request through the stack. It is a wiring
// demonstration, not a server: a real deployment drives scheduler.Manager
// from an HTTP/gRPC front door the caller supplies.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/axonflow/routingcore/internal/assembler"
	"github.com/axonflow/routingcore/internal/config"
	"github.com/axonflow/routingcore/internal/observability"
	"github.com/axonflow/routingcore/internal/provider"
	_ "github.com/axonflow/routingcore/internal/provider/anthropic"
	_ "github.com/axonflow/routingcore/internal/provider/openai"
	"github.com/axonflow/routingcore/internal/routing"
	"github.com/axonflow/routingcore/internal/scheduler"
)

func main() {
	log := observability.NewLogger("routingcore")

	registry := provider.NewRegistry()
	openaiHandle, err := provider.NewProvider(provider.TypeOpenAI, provider.Config{
		Name:            "openai-primary",
		Endpoint:        "https://api.openai.com/v1",
		APIKey:          "sk-demo",
		SupportedModels: []string{"gpt-4o", "gpt-4o-mini"},
		DefaultModel:    "gpt-4o",
	})
	if err != nil {
		log.Errorf("construct openai provider: %v", err)
		return
	}
	registry.Register("openai-primary", openaiHandle)

	anthropicHandle, err := provider.NewProvider(provider.TypeAnthropic, provider.Config{
		Name:            "anthropic-primary",
		Endpoint:        "https://api.anthropic.com",
		APIKey:          "sk-ant-demo",
		SupportedModels: []string{"claude-sonnet-4", "claude-3-haiku"},
		DefaultModel:    "claude-sonnet-4",
	})
	if err != nil {
		log.Errorf("construct anthropic provider: %v", err)
		return
	}
	registry.Register("anthropic-primary", anthropicHandle)

	cfg := config.GatewayConfig{
		PipelineTable: []config.RoutingClassConfig{
			{
				RoutingID: "default",
				Entries: []config.PipelineEntry{
					{RoutingID: "default", ProviderID: "openai-primary", ModelID: "gpt-4o-mini", Enabled: true, Weight: 1},
					{RoutingID: "default", ProviderID: "anthropic-primary", ModelID: "claude-3-haiku", Enabled: true, Weight: 1},
				},
				LoadBalancing: "weighted",
			},
			{
				RoutingID: "vision",
				Entries: []config.PipelineEntry{
					{RoutingID: "vision", ProviderID: "openai-primary", ModelID: "gpt-4o", Enabled: true, Weight: 1},
				},
				Capabilities: &config.CapabilitiesConfig{
					SupportedModels:     []string{"gpt-4o"},
					Streaming:           true,
					Images:              true,
					Multimodal:          true,
					SupportedModalities: []string{"text", "vision"},
					Availability:        1,
					LoadWeight:          1,
					PerformanceScore:    0.8,
				},
			},
		},
	}

	asm := assembler.New(registry, log)
	result, err := asm.Assemble(cfg)
	if err != nil {
		log.Errorf("assembly failed: %v", err)
		return
	}
	for _, w := range result.Warnings {
		log.Warnf("%s", w)
	}

	engine := routing.NewEngine()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	observer := observability.ObserverFunc(func(evt observability.StageEvent) {
		log.Debugf("stage=%s routingId=%s poolId=%s detail=%s", evt.Stage, evt.RoutingID, evt.PoolID, evt.Detail)
	})

	mgr := scheduler.New(engine, observer, metrics, log)
	if err := mgr.Initialize(result.Pools, 30*time.Second); err != nil {
		log.Errorf("initialize: %v", err)
		return
	}
	defer mgr.Destroy()

	req := provider.CompletionRequest{
		Messages: []provider.Message{{Role: "user", Content: "summarize the Q3 incident review"}},
	}
	resp, err := mgr.Handle(context.Background(), req, nil, "", nil)
	if err != nil {
		log.Errorf("handle: %v", err)
		return
	}
	fmt.Printf("routed response: %s\n", resp.Content)
}
