// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"testing"

	"github.com/axonflow/routingcore/internal/config"
)

func TestApplyOverlay_InstallsRulesAndStrategies(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	cfg := config.GatewayConfig{
		RoutingRules: []config.RuleConfig{
			{Name: "custom_rule", Enabled: true, Weight: 0.1, Conditions: []config.RuleCondition{
				{Field: "hasImages", Operator: "equals", Value: true},
			}},
		},
		Strategies: []config.StrategyConfig{
			{
				Name: "custom", Enabled: true, IsDefault: true,
				Weights:    config.StrategyWeights{Availability: 1},
				Thresholds: config.StrategyThresholds{MinimumMatch: 0.1},
			},
		},
	}
	ApplyOverlay(e, cfg)

	e.RegisterPool("default", textOnlyCaps())
	decision, err := e.Decide(chatAnalysis(), "custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.StrategyUsed != "custom" {
		t.Errorf("expected the overlay strategy to be used, got %q", decision.StrategyUsed)
	}
}
