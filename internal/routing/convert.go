// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"github.com/axonflow/routingcore/internal/config"
	"github.com/axonflow/routingcore/internal/pipeline"
)

// RuleFromConfig converts a declarative RuleConfig into an engine Rule.
func RuleFromConfig(c config.RuleConfig) Rule {
	conditions := make([]Condition, 0, len(c.Conditions))
	for _, cond := range c.Conditions {
		conditions = append(conditions, Condition{Field: cond.Field, Operator: Operator(cond.Operator), Value: cond.Value})
	}
	return Rule{
		Name:       c.Name,
		Enabled:    c.Enabled,
		Priority:   c.Priority,
		Conditions: conditions,
		Weight:     c.Weight,
		ExpiresAt:  c.ExpiresAt,
	}
}

// StrategyFromConfig converts a declarative StrategyConfig into an engine
// Strategy. EnableFallback and MaxAlternatives aren't named in spec §3's
// field list but are required by §4.6 steps 5/7; StrategyConfig has no
// field for them, so every converted strategy gets EnableFallback=true
// and MaxAlternatives=3.
func StrategyFromConfig(c config.StrategyConfig) Strategy {
	return Strategy{
		Name:              c.Name,
		IsDefault:         c.IsDefault,
		Enabled:           c.Enabled,
		MatchingAlgorithm: MatchingAlgorithm(c.MatchingAlgorithm),
		Weights: Weights{
			Capability:   c.Weights.Capability,
			Performance:  c.Weights.Performance,
			Cost:         c.Weights.Cost,
			Availability: c.Weights.Availability,
			Priority:     c.Weights.Priority,
		},
		Thresholds: Thresholds{
			MinimumMatch:     c.Thresholds.MinimumMatch,
			HighAvailability: c.Thresholds.HighAvailability,
			LoadBalance:      c.Thresholds.LoadBalance,
		},
		LoadBalancing: LoadBalancingConfig{
			Enabled:   c.LoadBalancing.Enabled,
			Algorithm: pipeline.LoadBalancing(c.LoadBalancing.Algorithm),
		},
		EnableFallback:  true,
		MaxAlternatives: 3,
	}
}

// ApplyOverlay installs every rule and strategy from cfg into e,
// overriding baseline defaults of the same name (spec §4.6: "these are
// user-overridable").
func ApplyOverlay(e *Engine, cfg config.GatewayConfig) {
	for _, r := range cfg.RoutingRules {
		e.PutRule(RuleFromConfig(r))
	}
	for _, s := range cfg.Strategies {
		e.PutStrategy(StrategyFromConfig(s))
	}
}
