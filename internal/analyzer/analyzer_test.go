// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package analyzer

import (
	"testing"

	"github.com/axonflow/routingcore/internal/provider"
)

func TestAnalyze_RequestTypePrecedence(t *testing.T) {
	tests := []struct {
		name string
		req  provider.CompletionRequest
		want RequestType
	}{
		{"function call wins over everything", provider.CompletionRequest{Functions: []any{"f"}, Tools: []any{"t"}, Model: "embedding-ada"}, RequestTypeFunctionCall},
		{"tool call wins over embedding/chat", provider.CompletionRequest{Tools: []any{"t"}, Model: "text-embedding-3"}, RequestTypeToolCall},
		{"embedding model name", provider.CompletionRequest{Model: "text-embedding-3-large"}, RequestTypeEmbedding},
		{"chat with messages", provider.CompletionRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}}, RequestTypeChat},
		{"bare completion", provider.CompletionRequest{Prompt: "continue this"}, RequestTypeCompletion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(DefaultConfig(), tt.req, nil)
			if got.RequestType != tt.want {
				t.Errorf("RequestType = %v, want %v", got.RequestType, tt.want)
			}
		})
	}
}

func TestAnalyze_HasImagesDetectsImageParts(t *testing.T) {
	req := provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "user", Parts: []provider.Part{{Type: "image_url", ImageURL: "http://x/y.png"}}},
		},
	}
	got := Analyze(DefaultConfig(), req, nil)
	if !got.HasImages {
		t.Error("expected HasImages=true for an image_url part")
	}
	if !containsStr(got.Modalities, "vision") {
		t.Errorf("expected vision modality, got %v", got.Modalities)
	}
}

func TestAnalyze_ComplexityScoreMonotonicInTokenCount(t *testing.T) {
	small := Analyze(DefaultConfig(), provider.CompletionRequest{Prompt: "hi"}, nil)
	large := Analyze(DefaultConfig(), provider.CompletionRequest{Prompt: stringsRepeat("word ", 5000)}, nil)
	if large.ComplexityScore < small.ComplexityScore {
		t.Errorf("expected complexity to be monotonic non-decreasing in token count: small=%v large=%v", small.ComplexityScore, large.ComplexityScore)
	}
}

func TestAnalyze_ComplexityScoreMonotonicInToolsAndImages(t *testing.T) {
	base := Analyze(DefaultConfig(), provider.CompletionRequest{Prompt: "hi"}, nil)
	withTools := Analyze(DefaultConfig(), provider.CompletionRequest{Prompt: "hi", Tools: []any{"t"}}, nil)
	withImages := Analyze(DefaultConfig(), provider.CompletionRequest{Messages: []provider.Message{
		{Role: "user", Content: "hi", Parts: []provider.Part{{Type: "image"}}},
	}}, nil)

	if withTools.ComplexityScore < base.ComplexityScore {
		t.Errorf("expected tool presence to not decrease complexity")
	}
	if withImages.ComplexityScore < base.ComplexityScore {
		t.Errorf("expected image presence to not decrease complexity")
	}
}

func TestAnalyze_ComplexityScoreMonotonicInMessageCount(t *testing.T) {
	one := Analyze(DefaultConfig(), provider.CompletionRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}}, nil)
	var many []provider.Message
	for i := 0; i < 12; i++ {
		many = append(many, provider.Message{Role: "user", Content: "hi"})
	}
	manyResult := Analyze(DefaultConfig(), provider.CompletionRequest{Messages: many}, nil)
	if manyResult.ComplexityScore < one.ComplexityScore {
		t.Errorf("expected complexity to be monotonic non-decreasing in message count")
	}
}

func TestAnalyze_ComplexityScoreAlwaysInUnitRange(t *testing.T) {
	req := provider.CompletionRequest{
		Prompt: stringsRepeat("word ", 2_000_000),
		Tools:  []any{"a", "b", "c"},
		Messages: []provider.Message{
			{Role: "user", Parts: []provider.Part{{Type: "image"}, {Type: "image"}}},
		},
	}
	result := Analyze(DefaultConfig(), req, nil)
	if result.ComplexityScore < 0 || result.ComplexityScore > 1 {
		t.Errorf("complexityScore out of [0,1]: %v", result.ComplexityScore)
	}
}

func TestAnalyze_PriorityOverrideFromMetadata(t *testing.T) {
	req := provider.CompletionRequest{Prompt: "hi", Metadata: map[string]any{"priority": "critical"}}
	result := Analyze(DefaultConfig(), req, nil)
	if result.Priority != PriorityCritical {
		t.Errorf("expected metadata priority override to win, got %v", result.Priority)
	}
}

func TestAnalyze_ModalitiesNeverEmpty(t *testing.T) {
	result := Analyze(DefaultConfig(), provider.CompletionRequest{}, nil)
	if len(result.Modalities) == 0 {
		t.Fatal("modalities must never be empty")
	}
	if result.Modalities[0] != "text" {
		t.Errorf("expected text as the base modality, got %v", result.Modalities)
	}
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
