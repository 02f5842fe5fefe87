// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"testing"

	"github.com/axonflow/routingcore/internal/analyzer"
)

func TestScorePool_MatchScoreAlwaysInUnitRange(t *testing.T) {
	weights := Weights{Capability: 0.3, Performance: 0.25, Cost: 0.15, Availability: 0.2, Priority: 0.1}
	analysis := analyzer.Result{
		TokenCount:      5_000_000,
		HasToolCalls:    true,
		HasImages:       true,
		Modalities:      []string{"text", "vision", "code"},
		ComplexityScore: 1,
		Priority:        analyzer.PriorityCritical,
	}
	fired := map[string]float64{"a": 1, "b": 1, "c": 1}

	result := scorePool("p", visionCaps(), analysis, weights, fired, []string{"a", "b", "c"})
	if result.MatchScore < 0 || result.MatchScore > 1 {
		t.Errorf("matchScore out of [0,1]: %v", result.MatchScore)
	}
}

func TestScorePool_HardChecksFailExcludesPool(t *testing.T) {
	weights := Weights{Capability: 1}
	analysis := analyzer.Result{HasImages: true, Modalities: []string{"text", "vision"}}
	result := scorePool("text-only", textOnlyCaps(), analysis, weights, nil, nil)
	if result.IsMatch {
		t.Error("expected a text-only pool to fail the image-request hard check")
	}
}

func TestScorePool_StreamingHardCheck(t *testing.T) {
	weights := Weights{Capability: 1}
	nonStreaming := textOnlyCaps()
	nonStreaming.Streaming = false
	analysis := analyzer.Result{RequiresStreaming: true, Modalities: []string{"text"}}

	result := scorePool("p", nonStreaming, analysis, weights, nil, nil)
	if result.IsMatch {
		t.Error("expected a non-streaming pool to fail a streaming-required request")
	}
}

func TestRuleBonusFor_CapsAtPointTwo(t *testing.T) {
	fired := map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1}
	if got := ruleBonusFor(fired); got > 0.2 {
		t.Errorf("expected ruleBonus to cap at 0.2, got %v", got)
	}
}

func TestRuleBonusFor_Empty(t *testing.T) {
	if got := ruleBonusFor(nil); got != 0 {
		t.Errorf("expected zero rule bonus for no fired rules, got %v", got)
	}
}

func TestTokenComponent_UnlimitedAlwaysSaturated(t *testing.T) {
	caps := visionCaps()
	caps.MaxTokens = 0
	analysis := analyzer.Result{TokenCount: 10_000_000}
	if got := tokenComponent(caps, analysis); got != 1 {
		t.Errorf("expected unlimited maxTokens to saturate tokenComponent at 1, got %v", got)
	}
}

func TestModalityCoverage_FullWhenSubset(t *testing.T) {
	caps := visionCaps()
	analysis := analyzer.Result{Modalities: []string{"text"}}
	if got := modalityCoverage(caps, analysis); got != 1 {
		t.Errorf("expected full coverage when request modalities are a subset, got %v", got)
	}
}
