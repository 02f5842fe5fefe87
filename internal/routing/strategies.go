// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import "github.com/axonflow/routingcore/internal/pipeline"

// defaultStrategies installs the three baseline strategies spec §4.6
// names: balanced (default), performance, cost. Each weight profile sums
// to 1, grounded on the teacher's single weighted ProviderSelector
// defaults generalized into three named profiles.
func defaultStrategies() map[string]Strategy {
	strategies := []Strategy{
		{
			Name:              "balanced",
			IsDefault:         true,
			Enabled:           true,
			MatchingAlgorithm: AlgorithmScoreBased,
			Weights:           Weights{Capability: 0.3, Performance: 0.25, Cost: 0.15, Availability: 0.2, Priority: 0.1},
			Thresholds:        Thresholds{MinimumMatch: 0.4, HighAvailability: 0.8, LoadBalance: 0.6},
			LoadBalancing:     LoadBalancingConfig{Enabled: true, Algorithm: pipeline.LoadBalancingWeighted},
			EnableFallback:    true,
			MaxAlternatives:   3,
		},
		{
			Name:              "performance",
			IsDefault:         false,
			Enabled:           true,
			MatchingAlgorithm: AlgorithmScoreBased,
			Weights:           Weights{Capability: 0.2, Performance: 0.5, Cost: 0.05, Availability: 0.15, Priority: 0.1},
			Thresholds:        Thresholds{MinimumMatch: 0.4, HighAvailability: 0.8, LoadBalance: 0.6},
			LoadBalancing:     LoadBalancingConfig{Enabled: true, Algorithm: pipeline.LoadBalancingRoundRobin},
			EnableFallback:    true,
			MaxAlternatives:   3,
		},
		{
			Name:              "cost",
			IsDefault:         false,
			Enabled:           true,
			MatchingAlgorithm: AlgorithmScoreBased,
			Weights:           Weights{Capability: 0.2, Performance: 0.15, Cost: 0.45, Availability: 0.1, Priority: 0.1},
			Thresholds:        Thresholds{MinimumMatch: 0.4, HighAvailability: 0.8, LoadBalance: 0.6},
			LoadBalancing:     LoadBalancingConfig{Enabled: true, Algorithm: pipeline.LoadBalancingLeastConnection},
			EnableFallback:    true,
			MaxAlternatives:   3,
		},
	}
	out := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		out[s.Name] = s
	}
	return out
}
