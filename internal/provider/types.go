// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package provider defines the Provider capability contract (execute,
// executeStreaming, healthCheck, info) that backs every Target in a
// Pipeline. It is grounded on the teacher's llm.Provider interface
// (Name/Type/Complete/HealthCheck/Capabilities/SupportsStreaming/
// EstimateCost in platform/orchestrator/llm/provider.go), renamed to the
// spec's verbs and extended with Clone so one base provider entry can back
// many (model, key-index) targets.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Type identifies the provider implementation behind a Provider instance.
// It is a closed tagged variant plus an open "custom" leaf, per spec §9's
// re-architecture of dynamic class loading into an explicit factory table.
type Type string

const (
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
	TypeBedrock   Type = "bedrock"
	TypeAzure     Type = "azure-openai"
	TypeCustom    Type = "custom"
)

// Capability is a feature a provider may support.
type Capability string

const (
	CapabilityChat            Capability = "chat"
	CapabilityCompletion      Capability = "completion"
	CapabilityStreaming       Capability = "streaming"
	CapabilityVision          Capability = "vision"
	CapabilityFunctionCalling Capability = "function_calling"
	CapabilityEmbeddings      Capability = "embeddings"
	CapabilityCodeGeneration  Capability = "code_generation"
	CapabilityLongContext     Capability = "long_context"
)

// Message is a single chat turn. Content is either plain text, or, for
// multimodal providers, left to Parts.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Part is one piece of structured message content (text or image).
type Part struct {
	Type     string `json:"type"` // "text", "image", "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// CompletionRequest is the unified request type passed to Provider.Execute,
// grounded on the teacher's llm.CompletionRequest.
type CompletionRequest struct {
	Messages     []Message      `json:"messages,omitempty"`
	Prompt       string         `json:"prompt,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Temperature  float64        `json:"temperature,omitempty"`
	Model        string         `json:"model,omitempty"`
	Tools        []any          `json:"tools,omitempty"`
	Functions    []any          `json:"functions,omitempty"`
	Stream       bool           `json:"stream,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UsageStats tracks token usage for billing/monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the unified response type, grounded on the
// teacher's llm.CompletionResponse.
type CompletionResponse struct {
	Content      string         `json:"content"`
	Model        string         `json:"model"`
	Usage        UsageStats     `json:"usage"`
	Latency      time.Duration  `json:"latency"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// StreamChunk is one chunk of a streaming completion.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// StreamHandler processes one StreamChunk; returning an error aborts the stream.
type StreamHandler func(chunk StreamChunk) error

// HealthStatus is the health state of a provider or target.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// HealthCheckResult is the outcome of a Provider.HealthCheck call.
type HealthCheckResult struct {
	Status      HealthStatus  `json:"status"`
	Latency     time.Duration `json:"latency"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
}

// Info describes a provider instance, returned by Provider.Info.
type Info struct {
	Name            string   `json:"name"`
	Type            Type     `json:"type"`
	SupportedModels []string `json:"supported_models,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty"`
}

// Config is the constructor input for a provider, per spec §6:
// {name, endpoint, supportedModels[], defaultModel?, maxTokens?, metadata}.
type Config struct {
	Name            string
	Type            Type
	Endpoint        string
	APIKey          string
	SupportedModels []string
	DefaultModel    string
	MaxTokens       int
	Metadata        map[string]any
	Timeout         time.Duration
}

// WithModel returns a shallow copy of Config pinned to a single model,
// the shape the Assembler needs when cloning a base provider into a target.
func (c Config) WithModel(modelID string, keyIndex int) Config {
	clone := c
	clone.SupportedModels = []string{modelID}
	clone.DefaultModel = modelID
	md := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		md[k] = v
	}
	md["keyIndex"] = keyIndex
	clone.Metadata = md
	return clone
}

// Provider is the capability handle exposed to a Target: execute,
// executeStreaming, healthCheck, info (spec §3/§6).
type Provider interface {
	Execute(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	ExecuteStreaming(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error)
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
	Info() Info
	Capabilities() []Capability
	SupportsStreaming() bool
}

// Cloneable is implemented by providers the Assembler can clone into a
// configured (model, key-index) target (spec §4.4 step 2). A provider that
// does not implement Cloneable can still be registered, but can only serve
// a single target.
type Cloneable interface {
	Clone(modelID string, keyIndex int) (Provider, error)
}

// Factory constructs a Provider from a Config.
type Factory func(cfg Config) (Provider, error)

var globalFactories = map[Type]Factory{}

// RegisterFactory installs a Factory for a Type in the global factory
// table. Called from provider subpackage init() functions, replacing the
// teacher's dynamic-class-loading pattern with explicit registration
// (spec §9).
func RegisterFactory(t Type, f Factory) {
	globalFactories[t] = f
}

// NewProvider builds a Provider of the given type from cfg using the
// globally registered factory table.
func NewProvider(t Type, cfg Config) (Provider, error) {
	f, ok := globalFactories[t]
	if !ok {
		return nil, fmt.Errorf("provider: no factory registered for type %q", t)
	}
	cfg.Type = t
	return f(cfg)
}
