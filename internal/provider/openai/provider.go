// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package openai implements the OpenAI chat-completions Provider adapter,
// grounded on the teacher's llm.OpenAIProvider (platform/orchestrator/llm/
// factories.go) and the legacy OpenAIProvider in llm_router.go.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/axonflow/routingcore/internal/provider"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

func init() {
	provider.RegisterFactory(provider.TypeOpenAI, New)
}

// Provider implements provider.Provider and provider.Cloneable for OpenAI.
type Provider struct {
	cfg    provider.Config
	client *http.Client
}

// New constructs an OpenAI provider from cfg.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: missing API key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
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
		Type:            provider.TypeOpenAI,
		SupportedModels: p.cfg.SupportedModels,
		DefaultModel:    p.cfg.DefaultModel,
	}
}

func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{
		provider.CapabilityChat,
		provider.CapabilityStreaming,
		provider.CapabilityFunctionCalling,
		provider.CapabilityCodeGeneration,
	}
}

func (p *Provider) SupportsStreaming() bool { return true }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildRequest(req provider.CompletionRequest, stream bool) map[string]any {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 && req.Prompt != "" {
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
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
	if stream {
		body["stream"] = true
	}
	return body
}

func (p *Provider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("openai API error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	content, finish := "", ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
		finish = out.Choices[0].FinishReason
	}

	return &provider.CompletionResponse{
		Content:      content,
		Model:        out.Model,
		FinishReason: finish,
		Latency:      time.Since(start),
		Usage: provider.UsageStats{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Metadata: map[string]any{"provider": "openai"},
	}, nil
}

// ExecuteStreaming issues a streaming chat-completions request over SSE.
// Target-selection/retry logic in the Pipeline only covers the attempt up
// to the first emitted chunk; once streaming starts, failures propagate
// (spec §4.2).
func (p *Provider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("openai API error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}

	var full bytes.Buffer
	dec := newSSEDecoder(resp.Body)
	for {
		chunk, done, derr := dec.next()
		if derr != nil {
			return nil, derr
		}
		if done {
			break
		}
		full.WriteString(chunk)
		if herr := handler(provider.StreamChunk{Content: chunk}); herr != nil {
			return nil, herr
		}
	}
	if err := handler(provider.StreamChunk{Done: true}); err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Content:  full.String(),
		Model:    req.Model,
		Latency:  time.Since(start),
		Metadata: map[string]any{"provider": "openai", "streamed": true},
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &provider.HealthCheckResult{Status: provider.HealthUnhealthy, Message: err.Error(), LastChecked: time.Now()}, nil
	}
	defer resp.Body.Close()

	status := provider.HealthHealthy
	if resp.StatusCode != http.StatusOK {
		status = provider.HealthUnhealthy
	}
	return &provider.HealthCheckResult{Status: status, Latency: time.Since(start), LastChecked: time.Now()}, nil
}
