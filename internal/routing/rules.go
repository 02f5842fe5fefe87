// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// evaluateRule reports whether every condition of r holds against
// analysis (spec §4.6 step 2: "a rule fires iff every condition holds").
// A disabled or expired rule never fires.
func evaluateRule(r Rule, analysis analysisInput, now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return false
	}
	for _, cond := range r.Conditions {
		if !evaluateCondition(cond, analysis) {
			return false
		}
	}
	return true
}

// evaluateCondition resolves cond.Field by dot-path lookup against
// analysis and applies cond.Operator.
func evaluateCondition(cond Condition, analysis analysisInput) bool {
	actual, ok := fieldValue(analysis, cond.Field)
	if !ok {
		return false
	}
	return applyOperator(cond.Operator, actual, cond.Value)
}

// fieldValue resolves a dot-path field reference against an analysis
// result. The analyser's output shape is closed and known, so this is a
// direct field switch rather than general reflection.
func fieldValue(analysis analysisInput, field string) (any, bool) {
	parts := strings.Split(field, ".")
	switch parts[0] {
	case "tokenCount":
		return analysis.TokenCount, true
	case "hasToolCalls":
		return analysis.HasToolCalls, true
	case "hasImages":
		return analysis.HasImages, true
	case "hasFunctionCalls":
		return analysis.HasFunctionCalls, true
	case "modalities":
		return analysis.Modalities, true
	case "requestType":
		return string(analysis.RequestType), true
	case "complexityScore":
		return analysis.ComplexityScore, true
	case "priority":
		return string(analysis.Priority), true
	case "requiresStreaming":
		return analysis.RequiresStreaming, true
	case "specialRequirements":
		if len(parts) < 2 {
			return nil, false
		}
		switch parts[1] {
		case "needsMultimodal":
			return analysis.SpecialRequirements.NeedsMultimodal, true
		case "maxTokensLimit":
			return analysis.SpecialRequirements.MaxTokensLimit, true
		}
		return nil, false
	case "userContext":
		if analysis.UserContext == nil || len(parts) < 3 || parts[1] != "metadata" {
			return nil, false
		}
		v, ok := analysis.UserContext.Metadata[parts[2]]
		return v, ok
	default:
		return nil, false
	}
}

// applyOperator implements spec §3's condition operator set.
func applyOperator(op Operator, actual, expected any) bool {
	switch op {
	case OpEquals:
		return fmt.Sprint(actual) == fmt.Sprint(expected)
	case OpContains:
		switch a := actual.(type) {
		case []string:
			for _, s := range a {
				if s == fmt.Sprint(expected) {
					return true
				}
			}
			return false
		case string:
			return strings.Contains(a, fmt.Sprint(expected))
		default:
			return false
		}
	case OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a < b
	case OpIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		for _, v := range list {
			if fmt.Sprint(v) == fmt.Sprint(actual) {
				return true
			}
		}
		return false
	case OpNotIn:
		return !applyOperator(OpIn, actual, expected)
	case OpRegex:
		pattern, ok := expected.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(fmt.Sprint(actual))
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// defaultRules installs the five baseline rules spec §4.6 names, tuned so
// each fires on exactly the condition its name describes.
func defaultRules() map[string]Rule {
	rules := []Rule{
		{
			Name:       "high_complexity_critical",
			Enabled:    true,
			Priority:   100,
			Weight:     0.3,
			Conditions: []Condition{{Field: "priority", Operator: OpEquals, Value: "critical"}},
		},
		{
			Name:       "vision_request",
			Enabled:    true,
			Priority:   80,
			Weight:     0.2,
			Conditions: []Condition{{Field: "hasImages", Operator: OpEquals, Value: true}},
		},
		{
			Name:       "streaming_request",
			Enabled:    true,
			Priority:   60,
			Weight:     0.15,
			Conditions: []Condition{{Field: "requiresStreaming", Operator: OpEquals, Value: true}},
		},
		{
			Name:       "tool_calling_request",
			Enabled:    true,
			Priority:   70,
			Weight:     0.2,
			Conditions: []Condition{{Field: "hasToolCalls", Operator: OpEquals, Value: true}},
		},
		{
			Name:       "large_token_request",
			Enabled:    true,
			Priority:   50,
			Weight:     0.25,
			Conditions: []Condition{{Field: "tokenCount", Operator: OpGreaterThan, Value: 50000}},
		},
	}
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.Name] = r
	}
	return out
}
