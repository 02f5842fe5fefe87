// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"
)

func TestParseRulesOverlay_DecodesYAML(t *testing.T) {
	doc := []byte(`
routingRules:
  - name: prefer-fast-model
    enabled: true
    priority: 10
    conditions:
      - field: request.priority
        operator: eq
        value: high
    weight: 0.5
`)
	overlay, err := ParseRulesOverlay(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overlay.RoutingRules) != 1 {
		t.Fatalf("expected one rule, got %d", len(overlay.RoutingRules))
	}
	rule := overlay.RoutingRules[0]
	if rule.Name != "prefer-fast-model" || !rule.Enabled || rule.Priority != 10 {
		t.Errorf("unexpected rule fields: %+v", rule)
	}
	if len(rule.Conditions) != 1 || rule.Conditions[0].Field != "request.priority" {
		t.Errorf("unexpected conditions: %+v", rule.Conditions)
	}
}

func TestParseStrategiesOverlay_DecodesYAML(t *testing.T) {
	doc := []byte(`
strategies:
  - name: cost-aware
    isDefault: false
    enabled: true
    matchingAlgorithm: weighted
    weights:
      capability: 0.4
      performance: 0.2
      cost: 0.3
      availability: 0.1
      priority: 0
    thresholds:
      minimumMatch: 0.5
      highAvailability: 0.9
      loadBalance: 0.6
    loadBalancing:
      enabled: true
      algorithm: round_robin
`)
	overlay, err := ParseStrategiesOverlay(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overlay.Strategies) != 1 {
		t.Fatalf("expected one strategy, got %d", len(overlay.Strategies))
	}
	strategy := overlay.Strategies[0]
	if strategy.Name != "cost-aware" || strategy.Weights.Cost != 0.3 {
		t.Errorf("unexpected strategy fields: %+v", strategy)
	}
}

func TestApplyRulesOverlay_ReplacesRulesWhenPresent(t *testing.T) {
	cfg := GatewayConfig{RoutingRules: []RuleConfig{{Name: "old"}}}
	overlay := RulesOverlay{RoutingRules: []RuleConfig{{Name: "new"}}}

	updated := ApplyRulesOverlay(cfg, overlay)
	if len(updated.RoutingRules) != 1 || updated.RoutingRules[0].Name != "new" {
		t.Errorf("expected overlay rules to replace config rules, got %+v", updated.RoutingRules)
	}

	untouched := ApplyRulesOverlay(cfg, RulesOverlay{})
	if len(untouched.RoutingRules) != 1 || untouched.RoutingRules[0].Name != "old" {
		t.Errorf("expected empty overlay to leave config untouched, got %+v", untouched.RoutingRules)
	}
}

func TestMarshalYAML_RoundTripsThroughParse(t *testing.T) {
	cfg := GatewayConfig{
		Providers: []ProviderEntry{{ID: "p1", Type: "openai"}},
		RoutingRules: []RuleConfig{{
			Name:    "r1",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: "request.tokens", Operator: "gt", Value: 100},
			},
		}},
	}

	data, err := MarshalYAML(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overlay, err := ParseRulesOverlay(data)
	if err != nil {
		t.Fatalf("unexpected error re-parsing marshaled config: %v", err)
	}
	if len(overlay.RoutingRules) != 1 || overlay.RoutingRules[0].Name != "r1" {
		t.Errorf("expected the marshaled rule to round-trip, got %+v", overlay.RoutingRules)
	}
}
