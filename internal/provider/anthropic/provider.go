// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package anthropic implements the Anthropic Messages API Provider adapter,
// grounded on the teacher's llm/anthropic package and the
// EnhancedAnthropicProvider.QueryStream wrapper in
// platform/orchestrator/llm_router.go.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/axonflow/routingcore/internal/provider"
)

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"

	// ModelClaude35Sonnet is the default general-purpose model.
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	// ModelClaude4Sonnet names the Claude Sonnet 4 model; the adapter does
	// not select it on its own (requests name it via req.Model).
	ModelClaude4Sonnet = "claude-sonnet-4-20250514"
)

func init() {
	provider.RegisterFactory(provider.TypeAnthropic, New)
}

// Provider implements provider.Provider and provider.Cloneable for Anthropic.
type Provider struct {
	cfg    provider.Config
	client *http.Client
}

func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: missing API key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ModelClaude35Sonnet
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Provider{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
}

func (p *Provider) Clone(modelID string, keyIndex int) (provider.Provider, error) {
	return New(p.cfg.WithModel(modelID, keyIndex))
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:            p.cfg.Name,
		Type:            provider.TypeAnthropic,
		SupportedModels: p.cfg.SupportedModels,
		DefaultModel:    p.cfg.DefaultModel,
	}
}

func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{
		provider.CapabilityChat,
		provider.CapabilityStreaming,
		provider.CapabilityVision,
		provider.CapabilityFunctionCalling,
		provider.CapabilityLongContext,
		provider.CapabilityCodeGeneration,
	}
}

func (p *Provider) SupportsStreaming() bool { return true }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildRequest(req provider.CompletionRequest, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	var messages []anthropicMessage
	for _, m := range req.Messages {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 && req.Prompt != "" {
		messages = append(messages, anthropicMessage{Role: "user", Content: req.Prompt})
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	if stream {
		body["stream"] = true
	}
	return body
}

func (p *Provider) do(ctx context.Context, body map[string]any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	return p.client.Do(httpReq)
}

func (p *Provider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("anthropic API error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}

	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	if len(out.Content) > 0 {
		content = out.Content[0].Text
	}

	return &provider.CompletionResponse{
		Content:      content,
		Model:        out.Model,
		FinishReason: out.StopReason,
		Latency:      time.Since(start),
		Usage: provider.UsageStats{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
		Metadata: map[string]any{"provider": "anthropic", "stop_reason": out.StopReason},
	}, nil
}

// ExecuteStreaming reads Anthropic's "content_block_delta" SSE stream.
// Only the attempt up to the first emitted chunk participates in Pipeline
// retry/failover; once streaming starts, failures propagate (spec §4.2).
func (p *Provider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("anthropic API error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}

	var full bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var evt struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if jerr := json.Unmarshal([]byte(payload), &evt); jerr != nil {
			continue
		}
		if evt.Type == "content_block_delta" && evt.Delta.Text != "" {
			full.WriteString(evt.Delta.Text)
			if herr := handler(provider.StreamChunk{Content: evt.Delta.Text}); herr != nil {
				return nil, herr
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := handler(provider.StreamChunk{Done: true}); err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Content:  full.String(),
		Model:    req.Model,
		Latency:  time.Since(start),
		Metadata: map[string]any{"provider": "anthropic", "streamed": true},
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := p.do(ctx, map[string]any{
		"model":      p.cfg.DefaultModel,
		"max_tokens": 1,
		"messages":   []anthropicMessage{{Role: "user", Content: "ping"}},
	})
	if err != nil {
		return &provider.HealthCheckResult{Status: provider.HealthUnhealthy, Message: err.Error(), LastChecked: time.Now()}, nil
	}
	defer resp.Body.Close()

	status := provider.HealthHealthy
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		status = provider.HealthUnhealthy
	}
	return &provider.HealthCheckResult{Status: status, Latency: time.Since(start), LastChecked: time.Now()}, nil
}
