// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package azure implements the Azure OpenAI Provider adapter, grounded on
// the teacher's platform/orchestrator/llm/azure.Provider (endpoint/deployment
// shape, auth-type auto-detection, buildURL). Where the teacher accepts a
// caller-supplied bearer token string for AI-Foundry-style endpoints, this
// adapter additionally wires azidentity.NewDefaultAzureCredential to mint
// that token itself when no static key is configured, since workload
// identity is the common production pattern for *.cognitiveservices.azure.com.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/axonflow/routingcore/internal/provider"
)

const defaultAPIVersion = "2024-08-01-preview"

// authType is the authentication method for an Azure OpenAI endpoint.
type authType string

const (
	authAPIKey authType = "api-key"
	authBearer authType = "bearer"
)

func init() {
	provider.RegisterFactory(provider.TypeAzure, New)
}

// Provider implements provider.Provider and provider.Cloneable for Azure OpenAI.
type Provider struct {
	cfg            provider.Config
	deploymentName string
	apiVersion     string
	auth           authType
	client         *http.Client
	cred           *azidentity.DefaultAzureCredential

	mu      sync.RWMutex
	healthy bool
}

// New constructs an Azure OpenAI provider. cfg.Metadata["deploymentName"]
// selects the deployment; cfg.Metadata["apiVersion"] overrides the API
// version. If cfg.APIKey is empty and the endpoint uses bearer auth,
// azidentity.NewDefaultAzureCredential is used to obtain bearer tokens
// (workload identity / managed identity / az login, in that order); an
// api-key endpoint with an empty APIKey gets no credential.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure: endpoint is required")
	}
	deployment, _ := cfg.Metadata["deploymentName"].(string)
	if deployment == "" {
		deployment = cfg.DefaultModel
	}
	if deployment == "" {
		return nil, fmt.Errorf("azure: deployment name is required")
	}

	apiVersion, _ := cfg.Metadata["apiVersion"].(string)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	auth := detectAuthType(cfg.Endpoint)

	p := &Provider{
		cfg:            cfg,
		deploymentName: deployment,
		apiVersion:     apiVersion,
		auth:           auth,
		healthy:        true,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	p.client = &http.Client{Timeout: timeout}

	if cfg.APIKey == "" && auth == authBearer {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure: default credential: %w", err)
		}
		p.cred = cred
	}

	return p, nil
}

func (p *Provider) Clone(modelID string, keyIndex int) (provider.Provider, error) {
	return New(p.cfg.WithModel(modelID, keyIndex))
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:            p.cfg.Name,
		Type:            provider.TypeAzure,
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
		provider.CapabilityCodeGeneration,
	}
}

func (p *Provider) SupportsStreaming() bool { return true }

// detectAuthType mirrors the teacher's endpoint sniffing: Azure AI Foundry
// (*.cognitiveservices.azure.com) uses bearer tokens, classic Azure OpenAI
// (*.openai.azure.com) uses the api-key header.
func detectAuthType(endpoint string) authType {
	if strings.Contains(strings.ToLower(endpoint), ".cognitiveservices.azure.com") {
		return authBearer
	}
	return authAPIKey
}

func (p *Provider) setAuthHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	switch p.auth {
	case authBearer:
		token := p.cfg.APIKey
		if token == "" {
			tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{"https://cognitiveservices.azure.com/.default"}})
			if err != nil {
				return fmt.Errorf("azure: get token: %w", err)
			}
			token = tok.Token
		}
		req.Header.Set("Authorization", "Bearer "+token)
	default:
		req.Header.Set("api-key", p.cfg.APIKey)
	}
	return nil
}

func (p *Provider) buildURL(stream bool) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", p.cfg.Endpoint, p.deploymentName, p.apiVersion)
}

type azureMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildBody(req provider.CompletionRequest, stream bool) map[string]any {
	var messages []azureMessage
	if req.SystemPrompt != "" {
		messages = append(messages, azureMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, azureMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 && req.Prompt != "" {
		messages = append(messages, azureMessage{Role: "user", Content: req.Prompt})
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	body := map[string]any{
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if stream {
		body["stream"] = true
	}
	return body
}

func (p *Provider) setHealthy(h bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = h
}

func (p *Provider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(p.buildBody(req, false))
	if err != nil {
		return nil, fmt.Errorf("azure: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(false), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if err := p.setAuthHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.setHealthy(false)
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("azure OpenAI error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}
	p.setHealthy(true)

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
		return nil, fmt.Errorf("azure: decode response: %w", err)
	}

	content, finish := "", ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
		finish = out.Choices[0].FinishReason
	}

	return &provider.CompletionResponse{
		Content:      content,
		Model:        p.deploymentName,
		FinishReason: finish,
		Latency:      time.Since(start),
		Usage: provider.UsageStats{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Metadata: map[string]any{"provider": "azure-openai", "deployment": p.deploymentName},
	}, nil
}

func (p *Provider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(p.buildBody(req, true))
	if err != nil {
		return nil, fmt.Errorf("azure: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(true), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if err := p.setAuthHeaders(ctx, httpReq); err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.setHealthy(false)
		b, _ := io.ReadAll(resp.Body)
		return nil, &provider.UnsupportedError{Operation: fmt.Sprintf("azure OpenAI error (status %d): %s", resp.StatusCode, string(b)), Provider: p.cfg.Name}
	}
	p.setHealthy(true)

	full, err := streamChatCompletions(resp.Body, handler)
	if err != nil {
		return nil, err
	}

	return &provider.CompletionResponse{
		Content:  full,
		Model:    p.deploymentName,
		Latency:  time.Since(start),
		Metadata: map[string]any{"provider": "azure-openai", "streamed": true},
	}, nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	p.mu.RLock()
	healthy := p.healthy
	p.mu.RUnlock()
	status := provider.HealthHealthy
	if !healthy {
		status = provider.HealthUnhealthy
	}
	return &provider.HealthCheckResult{Status: status, LastChecked: time.Now()}, nil
}
