// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package analyzer implements the RequestAnalyzer (spec §4.1): a pure,
// stateless function deriving the feature vector the RoutingRulesEngine
// scores pools against. It is grounded on the teacher's request-shaping
// helpers in platform/orchestrator/llm_router.go (buildPrompt,
// selectModel's content-based heuristics) generalized into a dedicated
// analysis pass, since the teacher inlines feature derivation rather
// than naming it as its own stage.
package analyzer

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/axonflow/routingcore/internal/provider"
)

// Priority is the coarse urgency bucket derived from complexity (spec §3).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// RequestType classifies the shape of a request (spec §3).
type RequestType string

const (
	RequestTypeChat         RequestType = "chat"
	RequestTypeCompletion   RequestType = "completion"
	RequestTypeEmbedding    RequestType = "embedding"
	RequestTypeFunctionCall RequestType = "function_call"
	RequestTypeToolCall     RequestType = "tool_call"
)

// SpecialRequirements is the bag of derived booleans/limits the engine's
// hard checks consult (spec §3: "specialRequirements: bag of booleans +
// optional numeric limits").
type SpecialRequirements struct {
	NeedsMultimodal bool
	MaxTokensLimit  int
}

// UserContext is caller-supplied context the analyser may consult for a
// priority override, but never requires.
type UserContext struct {
	Metadata map[string]any
}

// Result is spec §3's RequestAnalysisResult: the structured feature
// vector consumed by the RoutingRulesEngine.
type Result struct {
	TokenCount          int
	HasToolCalls        bool
	HasImages           bool
	HasFunctionCalls    bool
	Modalities          []string
	RequestType         RequestType
	ComplexityScore     float64
	Priority            Priority
	RequiresStreaming   bool
	SpecialRequirements SpecialRequirements
	UserContext         *UserContext
}

// Config tunes the analyser: DetailedTokenCounting switches between the
// per-message walk and the cheaper JSON-length approximation;
// EstimationFactor is the multiplier applied to either (spec §4.1:
// "default 1.3"); ImageTokenCost is the fixed per-image token charge
// (spec §4.1: "765").
type Config struct {
	DetailedTokenCounting bool
	EstimationFactor      float64
	ImageTokenCost        int
}

// DefaultConfig matches spec §4.1's defaults.
func DefaultConfig() Config {
	return Config{DetailedTokenCounting: true, EstimationFactor: 1.3, ImageTokenCost: 765}
}

var codeFence = regexp.MustCompile("```")
var codeKeyword = regexp.MustCompile(`\b(func|function|class|def|import|package)\b`)

// Analyze implements spec §4.1: deterministic given req and userCtx; any
// sub-analyser error falls back to the approximate token count and never
// propagates (spec §4.1: "on any sub-analyser error ... never throw").
func Analyze(cfg Config, req provider.CompletionRequest, userCtx *UserContext) Result {
	if cfg.EstimationFactor <= 0 {
		cfg.EstimationFactor = 1.3
	}
	if cfg.ImageTokenCost <= 0 {
		cfg.ImageTokenCost = 765
	}

	tokenCount := countTokens(cfg, req)
	hasTools := len(req.Tools) > 0
	hasFunctions := len(req.Functions) > 0
	hasImages := detectImages(req)
	modalities := deriveModalities(req, hasImages)
	requestType := deriveRequestType(req, hasFunctions, hasTools)
	complexity := complexityScore(tokenCount, modalities, hasTools, hasImages, len(req.Messages))
	priority := derivePriority(complexity, req.Metadata)

	result := Result{
		TokenCount:        tokenCount,
		HasToolCalls:      hasTools,
		HasImages:         hasImages,
		HasFunctionCalls:  hasFunctions,
		Modalities:        modalities,
		RequestType:       requestType,
		ComplexityScore:   complexity,
		Priority:          priority,
		RequiresStreaming: req.Stream,
		SpecialRequirements: SpecialRequirements{
			NeedsMultimodal: len(modalities) > 1,
			MaxTokensLimit:  req.MaxTokens,
		},
		UserContext: userCtx,
	}
	return result
}

// countTokens implements spec §4.1's two counting modes.
func countTokens(cfg Config, req provider.CompletionRequest) int {
	if cfg.DetailedTokenCounting {
		if n, ok := detailedTokenCount(cfg, req); ok {
			return n
		}
	}
	return approximateTokenCount(cfg, req)
}

func detailedTokenCount(cfg Config, req provider.CompletionRequest) (int, bool) {
	raw := 0
	for _, m := range req.Messages {
		if m.Content != "" {
			raw += ceilDiv(len(m.Content), 4)
		}
		for _, part := range m.Parts {
			switch part.Type {
			case "image", "image_url":
				raw += cfg.ImageTokenCost
			default:
				raw += ceilDiv(len(part.Text), 4)
			}
		}
	}
	if req.Prompt != "" {
		raw += ceilDiv(len(req.Prompt), 4)
	}
	if req.SystemPrompt != "" {
		raw += ceilDiv(len(req.SystemPrompt), 4)
	}
	for _, tool := range req.Tools {
		b, err := json.Marshal(tool)
		if err != nil {
			return 0, false
		}
		raw += ceilDiv(len(b), 4)
	}
	for _, fn := range req.Functions {
		b, err := json.Marshal(fn)
		if err != nil {
			return 0, false
		}
		raw += ceilDiv(len(b), 4)
	}
	return int(math.Ceil(float64(raw) * cfg.EstimationFactor)), true
}

func approximateTokenCount(cfg Config, req provider.CompletionRequest) int {
	b, err := json.Marshal(req)
	if err != nil {
		return 0
	}
	return int(math.Ceil(float64(len(b)) / 4 * cfg.EstimationFactor))
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

func detectImages(req provider.CompletionRequest) bool {
	for _, m := range req.Messages {
		for _, part := range m.Parts {
			if part.Type == "image" || part.Type == "image_url" {
				return true
			}
		}
	}
	return false
}

func deriveModalities(req provider.CompletionRequest, hasImages bool) []string {
	modalities := []string{"text"}
	if hasImages {
		modalities = append(modalities, "vision")
	}
	for _, m := range req.Messages {
		for _, part := range m.Parts {
			switch part.Type {
			case "audio":
				modalities = appendUnique(modalities, "audio")
			case "video":
				modalities = appendUnique(modalities, "video")
			}
		}
		if m.Content != "" && containsCode(m.Content) {
			modalities = appendUnique(modalities, "code")
		}
	}
	if req.Prompt != "" && containsCode(req.Prompt) {
		modalities = appendUnique(modalities, "code")
	}
	return modalities
}

func containsCode(s string) bool {
	return codeFence.MatchString(s) || codeKeyword.MatchString(s)
}

func appendUnique(modalities []string, m string) []string {
	for _, existing := range modalities {
		if existing == m {
			return modalities
		}
	}
	return append(modalities, m)
}

// deriveRequestType applies spec §4.1's precedence: function_call >
// tool_call > embedding > chat > completion.
func deriveRequestType(req provider.CompletionRequest, hasFunctions, hasTools bool) RequestType {
	switch {
	case hasFunctions:
		return RequestTypeFunctionCall
	case hasTools:
		return RequestTypeToolCall
	case strings.Contains(strings.ToLower(req.Model), "embedding"):
		return RequestTypeEmbedding
	case len(req.Messages) > 0:
		return RequestTypeChat
	default:
		return RequestTypeCompletion
	}
}

// complexityScore implements spec §4.1's formula exactly.
func complexityScore(tokenCount int, modalities []string, hasTools, hasImages bool, messageCount int) float64 {
	tokenComplexity := math.Min(float64(tokenCount)/1_000_000, 1)
	score := tokenComplexity*0.3 +
		0.2*boolFloat(hasTools) +
		0.2*boolFloat(hasImages) +
		0.1*float64(len(modalities)-1) +
		0.1*math.Min(float64(messageCount)/10, 1)
	return clamp01(score)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
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

// derivePriority applies threshold buckets on complexityScore unless
// request.metadata.priority overrides (spec §4.1).
func derivePriority(complexity float64, metadata map[string]any) Priority {
	if metadata != nil {
		if raw, ok := metadata["priority"]; ok {
			if s, ok := raw.(string); ok {
				switch Priority(s) {
				case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
					return Priority(s)
				}
			}
		}
	}
	switch {
	case complexity >= 0.8:
		return PriorityCritical
	case complexity >= 0.5:
		return PriorityHigh
	case complexity >= 0.2:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
