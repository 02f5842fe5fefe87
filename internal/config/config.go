// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package config defines the plain, already-parsed configuration structs
// consumed by the Assembler and RoutingRulesEngine (spec §6): a
// providers map, a pipeline table, and optional rule/strategy overlays.
// No file or environment I/O happens here — the teacher's ProviderConfig
// (platform/orchestrator/llm/provider.go) is a plain json-tagged struct
// fed by an external bootstrap layer, and this module follows the same
// split, additionally carrying yaml tags since ops overlays for
// strategies/rules are naturally authored as YAML.
package config

import "time"

// ProviderEntry describes one provider registration: {type, endpoint,
// models, auth, name?} per spec §6.
type ProviderEntry struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type            string         `json:"type" yaml:"type"`
	Endpoint        string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SupportedModels []string       `json:"models,omitempty" yaml:"models,omitempty"`
	DefaultModel    string         `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
	MaxTokens       int            `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Auth            AuthConfig     `json:"auth,omitempty" yaml:"auth,omitempty"`
	Timeout         time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AuthConfig holds the key material for a provider entry. keys[0] is key
// index 0, etc — matching the pipeline table's keyIndex reference.
type AuthConfig struct {
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// PipelineEntry is one row of the declarative pipeline table (spec §4.4):
// {routingId, providerId, modelId, keyIndex, priority, enabled, weight?, strategy?}.
type PipelineEntry struct {
	RoutingID  string  `json:"routingId" yaml:"routingId"`
	ProviderID string  `json:"providerId" yaml:"providerId"`
	ModelID    string  `json:"modelId" yaml:"modelId"`
	KeyIndex   int     `json:"keyIndex" yaml:"keyIndex"`
	Priority   int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Weight     float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Strategy   string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// RoutingClassConfig bundles a routing class's pipeline-table entries
// with optional declared capabilities and per-class pipeline tuning
// (load-balancing algorithm, retries, timeouts).
type RoutingClassConfig struct {
	RoutingID           string              `json:"routingId" yaml:"routingId"`
	Entries             []PipelineEntry     `json:"entries" yaml:"entries"`
	Capabilities        *CapabilitiesConfig `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	LoadBalancing       string              `json:"loadBalancing,omitempty" yaml:"loadBalancing,omitempty"`
	HealthCheckInterval time.Duration       `json:"healthCheckInterval,omitempty" yaml:"healthCheckInterval,omitempty"`
	MaxRetries          int                 `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Timeout             time.Duration       `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CapabilitiesConfig is the declared form of spec §3's RoutingCapabilities.
type CapabilitiesConfig struct {
	SupportedModels     []string `json:"supportedModels,omitempty" yaml:"supportedModels,omitempty"`
	MaxTokens           int      `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Streaming           bool     `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Tools               bool     `json:"tools,omitempty" yaml:"tools,omitempty"`
	Images              bool     `json:"images,omitempty" yaml:"images,omitempty"`
	FunctionCalling     bool     `json:"functionCalling,omitempty" yaml:"functionCalling,omitempty"`
	Multimodal          bool     `json:"multimodal,omitempty" yaml:"multimodal,omitempty"`
	SupportedModalities []string `json:"supportedModalities,omitempty" yaml:"supportedModalities,omitempty"`
	Priority            int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	Availability        float64  `json:"availability,omitempty" yaml:"availability,omitempty"`
	LoadWeight          float64  `json:"loadWeight,omitempty" yaml:"loadWeight,omitempty"`
	CostScore           float64  `json:"costScore,omitempty" yaml:"costScore,omitempty"`
	PerformanceScore    float64  `json:"performanceScore,omitempty" yaml:"performanceScore,omitempty"`
	RoutingTags         []string `json:"routingTags,omitempty" yaml:"routingTags,omitempty"`
	RegionRestrictions  []string `json:"regionRestrictions,omitempty" yaml:"regionRestrictions,omitempty"`
	UsagePerMinuteLimit int      `json:"usagePerMinuteLimit,omitempty" yaml:"usagePerMinuteLimit,omitempty"`
}

// RuleCondition is one condition of a RoutingRule (spec §3): a dot-path
// field lookup against an operator and value.
type RuleCondition struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

// RuleConfig is the declarative form of a RoutingRule.
type RuleConfig struct {
	Name       string          `json:"name" yaml:"name"`
	Enabled    bool            `json:"enabled" yaml:"enabled"`
	Priority   int             `json:"priority,omitempty" yaml:"priority,omitempty"`
	Conditions []RuleCondition `json:"conditions" yaml:"conditions"`
	Weight     float64         `json:"weight,omitempty" yaml:"weight,omitempty"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// StrategyWeights are the scoring weights a StrategyConfig declares; spec
// §3 requires they sum to at most 1.
type StrategyWeights struct {
	Capability   float64 `json:"capability" yaml:"capability"`
	Performance  float64 `json:"performance" yaml:"performance"`
	Cost         float64 `json:"cost" yaml:"cost"`
	Availability float64 `json:"availability" yaml:"availability"`
	Priority     float64 `json:"priority" yaml:"priority"`
}

// StrategyThresholds are the score thresholds a StrategyConfig declares.
type StrategyThresholds struct {
	MinimumMatch    float64 `json:"minimumMatch" yaml:"minimumMatch"`
	HighAvailability float64 `json:"highAvailability" yaml:"highAvailability"`
	LoadBalance     float64 `json:"loadBalance" yaml:"loadBalance"`
}

// LoadBalancingConfig configures the load-balancer leg of a strategy.
type LoadBalancingConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
}

// StrategyConfig is the declarative form of a RoutingStrategy.
type StrategyConfig struct {
	Name              string              `json:"name" yaml:"name"`
	IsDefault         bool                `json:"isDefault" yaml:"isDefault"`
	Enabled           bool                `json:"enabled" yaml:"enabled"`
	MatchingAlgorithm string              `json:"matchingAlgorithm" yaml:"matchingAlgorithm"`
	Weights           StrategyWeights     `json:"weights" yaml:"weights"`
	Thresholds        StrategyThresholds  `json:"thresholds" yaml:"thresholds"`
	LoadBalancing     LoadBalancingConfig `json:"loadBalancing" yaml:"loadBalancing"`
}

// GatewayConfig is the top-level configuration consumed by the Assembler
// and RoutingRulesEngine: providers, the pipeline table grouped by
// routing class, and optional overlays of rules/strategies (spec §6).
type GatewayConfig struct {
	Providers     []ProviderEntry      `json:"providers" yaml:"providers"`
	PipelineTable []RoutingClassConfig `json:"pipelineTable" yaml:"pipelineTable"`
	RoutingRules  []RuleConfig         `json:"routingRules,omitempty" yaml:"routingRules,omitempty"`
	Strategies    []StrategyConfig     `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}
