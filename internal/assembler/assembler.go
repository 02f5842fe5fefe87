// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package assembler implements the PipelineAssembler (spec §4.4): it
// resolves a declarative pipeline table against a provider registry and
// emits one PipelinePool per routing class, grounded on the teacher's
// BootstrapFromEnv (platform/orchestrator/llm/bootstrap.go) generalized
// from "one provider per env var" to "one pipeline per routing class
// from a declarative table".
package assembler

import (
	"fmt"
	"strings"
	"time"

	"github.com/axonflow/routingcore/internal/config"
	"github.com/axonflow/routingcore/internal/errs"
	"github.com/axonflow/routingcore/internal/observability"
	"github.com/axonflow/routingcore/internal/pipeline"
	"github.com/axonflow/routingcore/internal/provider"
)

const (
	defaultHealthCheckInterval = 30 * time.Second
	defaultPipelineTimeout     = 30 * time.Second
)

// AssemblyResult is the Assembler's output (spec §4.4): the built pools
// plus any per-routing-class errors and warnings.
type AssemblyResult struct {
	Pools    map[string]*pipeline.Pool
	Errors   []string
	Warnings []string
}

// Assembler builds PipelinePools from a provider registry and a
// declarative GatewayConfig.
type Assembler struct {
	registry *provider.Registry
	log      observability.Logger
}

// New constructs an Assembler bound to registry. A nil logger installs
// observability.NopLogger.
func New(registry *provider.Registry, log observability.Logger) *Assembler {
	if log == nil {
		log = observability.NopLogger
	}
	return &Assembler{registry: registry, log: log}
}

// Assemble implements spec §4.4's algorithm: for every pipeline-table
// entry, resolve and clone a provider, group by routingId, build one
// Pipeline per group and a Pool to hold it, synthesizing capabilities
// when a routing class declares none. An empty registry is fatal, and so
// is a table from which no routing class yields a pool; any other failure
// is scoped to its routing class and recorded in Errors. Entry-less
// classes and entries whose provider is missing are recorded in Warnings.
func (a *Assembler) Assemble(cfg config.GatewayConfig) (*AssemblyResult, error) {
	if a.registry.Len() == 0 {
		return nil, errs.AssemblyFailed("provider registry is empty")
	}

	result := &AssemblyResult{Pools: make(map[string]*pipeline.Pool)}

	for _, class := range cfg.PipelineTable {
		if len(class.Entries) == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: routing class has no pipeline entries", class.RoutingID))
		}
		for _, entry := range class.Entries {
			if _, ok := a.registry.Get(entry.ProviderID); !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: provider %q not found in registry, skipping entry for model %q", class.RoutingID, entry.ProviderID, entry.ModelID))
			}
		}
		pool, err := a.assembleClass(class)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", class.RoutingID, err))
			a.log.Warnf("assembler: routing class %q failed: %v", class.RoutingID, err)
			continue
		}
		result.Pools[class.RoutingID] = pool
	}

	if len(result.Pools) == 0 {
		return result, errs.AssemblyFailed("no routing class produced a usable pool")
	}
	return result, nil
}

func (a *Assembler) assembleClass(class config.RoutingClassConfig) (*pipeline.Pool, error) {
	if len(class.Entries) == 0 {
		// Spec §4.4 step 5: synthesize a fallback pipeline so the
		// Scheduler can later yield a descriptive error instead of a
		// missing-routingId lookup failure.
		pool := pipeline.NewPool(class.RoutingID, capabilitiesFrom(class.Capabilities, nil))
		fallback := a.fallbackPipeline(class.RoutingID)
		if fallback != nil {
			pool.Add(fallback)
		}
		return pool, nil
	}

	targets := make([]*pipeline.Target, 0, len(class.Entries))
	var modelIDs []string
	var anyWarning error

	for _, entry := range class.Entries {
		base, ok := a.registry.Get(entry.ProviderID)
		if !ok {
			anyWarning = fmt.Errorf("provider %q not found in registry, skipping entry for model %q", entry.ProviderID, entry.ModelID)
			a.log.Warnf("assembler: %v", anyWarning)
			continue
		}

		cloned, err := a.clone(base, entry)
		if err != nil {
			a.log.Warnf("assembler: failed to clone provider %q for model %q: %v", entry.ProviderID, entry.ModelID, err)
			continue
		}

		targets = append(targets, pipeline.NewTarget(cloned, entry.ProviderID, entry.ModelID, entry.KeyIndex, weightOf(entry), entry.Enabled))
		modelIDs = append(modelIDs, entry.ModelID)
	}

	if len(targets) == 0 {
		if anyWarning != nil {
			return nil, anyWarning
		}
		return nil, fmt.Errorf("no usable targets for routing class %q", class.RoutingID)
	}

	pl := pipeline.New(
		class.RoutingID,
		targets,
		lbFrom(class.LoadBalancing),
		durationOrDefault(class.HealthCheckInterval, defaultHealthCheckInterval),
		durationOrDefault(class.Timeout, defaultPipelineTimeout),
		class.MaxRetries,
		map[string]any{"routingId": class.RoutingID},
	)

	caps := capabilitiesFrom(class.Capabilities, modelIDs)
	pool := pipeline.NewPool(class.RoutingID, caps)
	pool.Add(pl)
	return pool, nil
}

// clone turns a base provider handle into a configured target provider
// for one (model, key) combination (spec §4.4 step 2). Providers that
// don't implement Cloneable are reused as-is and can only back a single
// target.
func (a *Assembler) clone(base provider.Provider, entry config.PipelineEntry) (provider.Provider, error) {
	cloneable, ok := base.(provider.Cloneable)
	if !ok {
		return base, nil
	}
	return cloneable.Clone(entry.ModelID, entry.KeyIndex)
}

// fallbackPipeline synthesizes a single-target pipeline from the first
// provider in the registry, used only so an execute against an
// entry-less routing class yields a descriptive error rather than a
// bare lookup miss.
func (a *Assembler) fallbackPipeline(routingID string) *pipeline.Pipeline {
	ids := a.registry.IDs()
	if len(ids) == 0 {
		return nil
	}
	base, ok := a.registry.Get(ids[0])
	if !ok {
		return nil
	}
	target := pipeline.NewTarget(base, ids[0], base.Info().DefaultModel, 0, 1, true)
	return pipeline.New(routingID, []*pipeline.Target{target}, pipeline.LoadBalancingRoundRobin, 0, 0, 0, map[string]any{"fallback": true})
}

func weightOf(entry config.PipelineEntry) float64 {
	if entry.Weight > 0 {
		return entry.Weight
	}
	return 1.0
}

func lbFrom(s string) pipeline.LoadBalancing {
	switch pipeline.LoadBalancing(s) {
	case pipeline.LoadBalancingWeighted, pipeline.LoadBalancingRandom, pipeline.LoadBalancingLeastConnection:
		return pipeline.LoadBalancing(s)
	default:
		return pipeline.LoadBalancingRoundRobin
	}
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// capabilitiesFrom prefers declared capabilities; absent a declaration,
// it synthesizes one from the routing class's model ids (spec §4.4
// step 4 / §4.6), grounded on the capability vocabulary the teacher's
// provider.Capability constants define.
func capabilitiesFrom(declared *config.CapabilitiesConfig, modelIDs []string) pipeline.Capabilities {
	if declared != nil {
		return pipeline.Capabilities{
			SupportedModels:     declared.SupportedModels,
			MaxTokens:           declared.MaxTokens,
			Streaming:           declared.Streaming,
			Tools:               declared.Tools,
			Images:              declared.Images,
			FunctionCalling:     declared.FunctionCalling,
			Multimodal:          declared.Multimodal,
			SupportedModalities: orDefaultModalities(declared.SupportedModalities),
			Priority:            declared.Priority,
			Availability:        orDefault(declared.Availability, 1.0),
			LoadWeight:          orDefault(declared.LoadWeight, 1.0),
			CostScore:           declared.CostScore,
			PerformanceScore:    orDefault(declared.PerformanceScore, 0.5),
			RoutingTags:         declared.RoutingTags,
			RegionRestrictions:  declared.RegionRestrictions,
			UsagePerMinuteLimit: declared.UsagePerMinuteLimit,
		}
	}
	return synthesizeFromModelNames(modelIDs)
}

// synthesizeFromModelNames infers RoutingCapabilities from model-id
// substrings when a routing class declares none: vision-capable model
// families advertise images/multimodal, opus/gpt-4/sonnet ids raise
// maxTokens to 200000, and haiku/mini/nano ids lower the cost score.
// Streaming and function-calling start on for every class and an
// embedding model id turns both off; the flags do not depend on the
// backing adapter (the Bedrock adapter does not stream).
func synthesizeFromModelNames(modelIDs []string) pipeline.Capabilities {
	caps := pipeline.Capabilities{
		SupportedModels:     append([]string(nil), modelIDs...),
		MaxTokens:           4096,
		Streaming:           true,
		FunctionCalling:     true,
		SupportedModalities: []string{"text"},
		Priority:            50,
		Availability:        1.0,
		LoadWeight:          1.0,
		PerformanceScore:    0.5,
	}
	for _, id := range modelIDs {
		lower := strings.ToLower(id)
		if strings.Contains(lower, "vision") || strings.Contains(lower, "gpt-4o") || strings.Contains(lower, "claude-3") || strings.Contains(lower, "claude-sonnet-4") || strings.Contains(lower, "gemini") {
			caps.Images = true
			caps.Multimodal = true
			if !containsStr(caps.SupportedModalities, "vision") {
				caps.SupportedModalities = append(caps.SupportedModalities, "vision")
			}
		}
		if strings.Contains(lower, "embedding") {
			caps.SupportedModalities = []string{"text"}
			caps.Streaming = false
			caps.FunctionCalling = false
		}
		if strings.Contains(lower, "opus") || strings.Contains(lower, "gpt-4") || strings.Contains(lower, "sonnet") {
			caps.MaxTokens = 200000
			caps.PerformanceScore = 0.8
		}
		if strings.Contains(lower, "haiku") || strings.Contains(lower, "mini") || strings.Contains(lower, "nano") {
			caps.CostScore = 0.2
			caps.PerformanceScore = 0.6
		}
	}
	return caps
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultModalities(m []string) []string {
	if len(m) == 0 {
		return []string{"text"}
	}
	return m
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
