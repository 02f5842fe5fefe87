// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package provider

import "context"

// Custom wraps an arbitrary caller-supplied Provider implementation as the
// open leaf of the closed tagged Type variant (spec §9: "Qwen | IFlow |
// OpenAICompat plus an open CustomProvider(handle) leaf"). It exists so a
// caller can register a provider type this module doesn't ship without
// reaching into the factory table.
type Custom struct {
	info     Info
	execute  func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	stream   func(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error)
	health   func(ctx context.Context) (*HealthCheckResult, error)
	caps     []Capability
	streamOK bool
}

// NewCustom builds a Custom provider handle from explicit function hooks.
func NewCustom(
	info Info,
	execute func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error),
	stream func(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error),
	health func(ctx context.Context) (*HealthCheckResult, error),
	caps []Capability,
) *Custom {
	info.Type = TypeCustom
	return &Custom{info: info, execute: execute, stream: stream, health: health, caps: caps, streamOK: stream != nil}
}

func (c *Custom) Execute(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return c.execute(ctx, req)
}

func (c *Custom) ExecuteStreaming(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error) {
	if c.stream == nil {
		return nil, &UnsupportedError{Operation: "executeStreaming", Provider: c.info.Name}
	}
	return c.stream(ctx, req, handler)
}

func (c *Custom) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	if c.health == nil {
		return &HealthCheckResult{Status: HealthUnknown}, nil
	}
	return c.health(ctx)
}

func (c *Custom) Info() Info                    { return c.info }
func (c *Custom) Capabilities() []Capability    { return c.caps }
func (c *Custom) SupportsStreaming() bool       { return c.streamOK }

// UnsupportedError is returned when an operation isn't implemented by a
// given provider (e.g. streaming on a non-streaming Custom provider).
type UnsupportedError struct {
	Operation string
	Provider  string
}

func (e *UnsupportedError) Error() string {
	return e.Provider + " does not support " + e.Operation
}
