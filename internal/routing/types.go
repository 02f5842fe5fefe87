// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package routing implements the RoutingRulesEngine (spec §4.6): rules,
// strategies, pool scoring, candidate selection, fallback and
// load-balanced reselection. Grounded on the teacher's
// llm.RoutingConfig/ProviderSelector (platform/orchestrator/llm/routing_strategy.go),
// generalized from a single weighted-strategy model into the richer
// multi-factor scoring model spec.md specifies.
package routing

import (
	"time"

	"github.com/axonflow/routingcore/internal/analyzer"
	"github.com/axonflow/routingcore/internal/pipeline"
)

// Operator is a RoutingRule condition's comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpRegex       Operator = "regex"
)

// Condition is one clause of a RoutingRule: a dot-path field lookup
// against an operator and value (spec §3).
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Rule is spec §3's RoutingRule: fires when every condition holds, and
// contributes its weight to a candidate's rule-bonus.
type Rule struct {
	Name       string
	Enabled    bool
	Priority   int
	Conditions []Condition
	Weight     float64
	ExpiresAt  *time.Time
}

// MatchingAlgorithm names a RoutingStrategy's candidate-selection style
// (spec §3). The engine does not read it: every algorithm value is
// accepted for config compatibility and all strategies use the same
// weighted-sum scoring path.
type MatchingAlgorithm string

const (
	AlgorithmExact         MatchingAlgorithm = "exact"
	AlgorithmScoreBased    MatchingAlgorithm = "score_based"
	AlgorithmWeighted      MatchingAlgorithm = "weighted"
	AlgorithmPriorityBased MatchingAlgorithm = "priority_based"
	AlgorithmHybrid        MatchingAlgorithm = "hybrid"
)

// Weights are a strategy's scoring weights; spec §3 requires they sum to
// at most 1.
type Weights struct {
	Capability   float64
	Performance  float64
	Cost         float64
	Availability float64
	Priority     float64
}

// Thresholds are a strategy's score gates (spec §3/§4.6).
type Thresholds struct {
	MinimumMatch     float64
	HighAvailability float64
	LoadBalance      float64
}

// LoadBalancingConfig configures the load-balancer leg of a strategy.
type LoadBalancingConfig struct {
	Enabled   bool
	Algorithm pipeline.LoadBalancing
}

// Strategy is spec §3's RoutingStrategy.
type Strategy struct {
	Name              string
	IsDefault         bool
	Enabled           bool
	MatchingAlgorithm MatchingAlgorithm
	Weights           Weights
	Thresholds        Thresholds
	LoadBalancing     LoadBalancingConfig

	// EnableFallback governs step 5 of decide(): fall back to the
	// max-availability pool, or raise NoCandidates, when nothing clears
	// minimumMatch. Not named in spec §3's field list but required by
	// §4.6 step 5 ("if empty and fallback enabled") and §7's error
	// taxonomy; defaulted true for the baseline strategies.
	EnableFallback bool

	// MaxAlternatives bounds the runners-up list on a Decision (spec
	// §4.6 step 7). Defaulted to 3 for the baseline strategies.
	MaxAlternatives int
}

// MatchResult is the per-pool scoring detail produced during decide().
type MatchResult struct {
	PoolID       string
	IsMatch      bool
	MatchScore   float64
	RuleBonus    float64
	FiredRules   []string
	Capability   float64
	Performance  float64
	Cost         float64
	Availability float64
	Priority     float64
}

// Decision is spec §3's RoutingDecision.
type Decision struct {
	TargetRoutingID string
	SelectedPoolID  string
	MatchResult     MatchResult
	Alternatives    []MatchResult
	RoutingTime     time.Duration
	StrategyUsed    string
	DecisionReason  string
	FallbackUsed    bool
	LoadBalanced    bool
}

// Stats is the engine's running decision statistics (spec §4.6).
type Stats struct {
	TotalDecisions     int64
	FallbackDecisions  int64
	LoadBalancedCount  int64
	AvgDecisionTime    time.Duration
	AvgMatchScore      float64
	RoutingUsage       map[string]int64
}

// analysisInput is the subset of analyzer.Result the engine scores
// against; kept as an alias for readability at call sites.
type analysisInput = analyzer.Result
