// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RulesOverlay and StrategiesOverlay are the ops-authored YAML documents
// that replace a GatewayConfig's routing rules / strategies without
// touching the providers or pipeline table (spec §6: config values arrive
// already-parsed; this module still owns turning overlay bytes into Go
// values — no file or environment I/O happens here, the caller supplies
// the bytes however it reads them).
type RulesOverlay struct {
	RoutingRules []RuleConfig `yaml:"routingRules"`
}

type StrategiesOverlay struct {
	Strategies []StrategyConfig `yaml:"strategies"`
}

// ParseRulesOverlay decodes a YAML rules overlay document.
func ParseRulesOverlay(data []byte) (RulesOverlay, error) {
	var overlay RulesOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return RulesOverlay{}, fmt.Errorf("config: parse rules overlay: %w", err)
	}
	return overlay, nil
}

// ParseStrategiesOverlay decodes a YAML strategies overlay document.
func ParseStrategiesOverlay(data []byte) (StrategiesOverlay, error) {
	var overlay StrategiesOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return StrategiesOverlay{}, fmt.Errorf("config: parse strategies overlay: %w", err)
	}
	return overlay, nil
}

// ApplyRulesOverlay returns a copy of cfg with RoutingRules replaced by
// overlay's rules, when the overlay declares any; an empty overlay leaves
// cfg untouched.
func ApplyRulesOverlay(cfg GatewayConfig, overlay RulesOverlay) GatewayConfig {
	if len(overlay.RoutingRules) == 0 {
		return cfg
	}
	cfg.RoutingRules = overlay.RoutingRules
	return cfg
}

// ApplyStrategiesOverlay returns a copy of cfg with Strategies replaced by
// overlay's strategies, when the overlay declares any.
func ApplyStrategiesOverlay(cfg GatewayConfig, overlay StrategiesOverlay) GatewayConfig {
	if len(overlay.Strategies) == 0 {
		return cfg
	}
	cfg.Strategies = overlay.Strategies
	return cfg
}

// MarshalYAML serializes cfg using the same yaml tags ParseRulesOverlay/
// ParseStrategiesOverlay read, so a GatewayConfig round-trips through YAML
// for operators who prefer it over the spec's JSON wire format.
func MarshalYAML(cfg GatewayConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal gateway config: %w", err)
	}
	return data, nil
}
