// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"math"

	"github.com/axonflow/routingcore/internal/pipeline"
)

// scorePool implements spec §4.6's hard checks and soft scores for one
// pool. firedRules carries the weight of every rule that fired on this
// decision, already resolved once per decide() call.
func scorePool(poolID string, caps pipeline.Capabilities, analysis analysisInput, weights Weights, firedRules map[string]float64, firedNames []string) MatchResult {
	hardPass := modelSupport(caps) &&
		streamingSupport(caps, analysis) &&
		toolsSupport(caps, analysis) &&
		imagesSupport(caps, analysis) &&
		multimodalSupport(caps, analysis) &&
		modalitySupport(caps, analysis) &&
		availabilitySupport(caps)

	capabilityScore := capabilityComponent(caps, analysis)
	performanceScore := caps.PerformanceScore
	costScore := 1 - caps.CostScore
	availabilityScore := caps.Availability
	priorityScore := float64(caps.Priority) / 100

	overall := weights.Capability*capabilityScore +
		weights.Performance*performanceScore +
		weights.Cost*costScore +
		weights.Availability*availabilityScore +
		weights.Priority*priorityScore

	ruleBonus := ruleBonusFor(firedRules)
	overall = clamp01(overall + ruleBonus)

	return MatchResult{
		PoolID:       poolID,
		IsMatch:      hardPass,
		MatchScore:   overall,
		RuleBonus:    ruleBonus,
		FiredRules:   firedNames,
		Capability:   capabilityScore,
		Performance:  performanceScore,
		Cost:         costScore,
		Availability: availabilityScore,
		Priority:     priorityScore,
	}
}

func modelSupport(caps pipeline.Capabilities) bool {
	return len(caps.SupportedModels) > 0
}

func streamingSupport(caps pipeline.Capabilities, analysis analysisInput) bool {
	return !analysis.RequiresStreaming || caps.Streaming
}

func toolsSupport(caps pipeline.Capabilities, analysis analysisInput) bool {
	return !analysis.HasToolCalls || caps.Tools
}

func imagesSupport(caps pipeline.Capabilities, analysis analysisInput) bool {
	return !analysis.HasImages || caps.Images
}

func multimodalSupport(caps pipeline.Capabilities, analysis analysisInput) bool {
	return !analysis.SpecialRequirements.NeedsMultimodal || caps.Multimodal
}

// modalitySupport reports whether analysis.Modalities is a subset of
// caps.SupportedModalities (spec §4.6: "analysis.modalities ⊆
// capabilities.supportedModalities").
func modalitySupport(caps pipeline.Capabilities, analysis analysisInput) bool {
	return modalityCoverage(caps, analysis) >= 1
}

func availabilitySupport(caps pipeline.Capabilities) bool {
	return caps.Availability > 0.1
}

// capabilityComponent implements spec §4.6's capabilityScore: a weighted
// sum (the spec's "avg" over terms whose coefficients already sum to 1)
// of a saturated token-headroom measure, modality coverage, required-
// function match, and complexity-vs-priority affinity.
func capabilityComponent(caps pipeline.Capabilities, analysis analysisInput) float64 {
	token := tokenComponent(caps, analysis)
	modality := modalityCoverage(caps, analysis)
	function := functionMatch(caps, analysis)
	affinity := math.Min(analysis.ComplexityScore, float64(caps.Priority)/100)
	return 0.3*token + 0.25*modality + 0.25*function + 0.2*affinity
}

// tokenComponent measures how comfortably caps.MaxTokens covers the
// request's tokenCount, saturating at 1. maxTokens==0 means unlimited.
func tokenComponent(caps pipeline.Capabilities, analysis analysisInput) float64 {
	if caps.MaxTokens == 0 {
		return 1
	}
	want := analysis.TokenCount
	if want < 1 {
		want = 1
	}
	return math.Min(float64(caps.MaxTokens)/float64(want), 1)
}

func modalityCoverage(caps pipeline.Capabilities, analysis analysisInput) float64 {
	if len(analysis.Modalities) == 0 {
		return 1
	}
	covered := 0
	for _, m := range analysis.Modalities {
		if containsModality(caps.SupportedModalities, m) {
			covered++
		}
	}
	return float64(covered) / float64(len(analysis.Modalities))
}

func containsModality(supported []string, m string) bool {
	for _, s := range supported {
		if s == m {
			return true
		}
	}
	return false
}

// functionMatch is the fraction of required-function booleans the pool
// satisfies (spec §4.6). A request with no special requirements trivially
// matches in full.
func functionMatch(caps pipeline.Capabilities, analysis analysisInput) float64 {
	required := 0
	satisfied := 0
	if analysis.HasToolCalls {
		required++
		if caps.Tools {
			satisfied++
		}
	}
	if analysis.HasImages {
		required++
		if caps.Images {
			satisfied++
		}
	}
	if analysis.HasFunctionCalls {
		required++
		if caps.FunctionCalling {
			satisfied++
		}
	}
	if required == 0 {
		return 1
	}
	return float64(satisfied) / float64(required)
}

// ruleBonusFor implements spec §4.6: min(Σ rule.weight·0.1, 0.2).
func ruleBonusFor(fired map[string]float64) float64 {
	sum := 0.0
	for _, w := range fired {
		sum += w * 0.1
	}
	return math.Min(sum, 0.2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
