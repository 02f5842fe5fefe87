// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package bedrock implements the AWS Bedrock Provider adapter, grounded on
// the teacher's BedrockProvider (platform/orchestrator/llm_router.go),
// including its model-family detection for Anthropic/Amazon/Meta/Mistral
// payload shapes.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/axonflow/routingcore/internal/provider"
)

var inferenceProfilePrefixes = []string{"us", "eu", "apac", "global"}
var supportedBedrockFamilies = []string{"anthropic", "amazon", "meta", "mistral"}

func init() {
	provider.RegisterFactory(provider.TypeBedrock, New)
}

// Provider implements provider.Provider and provider.Cloneable for AWS Bedrock.
type Provider struct {
	cfg    provider.Config
	region string
	client *bedrockruntime.Client
}

// New constructs a Bedrock provider. cfg.Metadata["region"] selects the AWS
// region; cfg.Endpoint is unused (Bedrock routes by region + model id).
func New(cfg provider.Config) (provider.Provider, error) {
	region, _ := cfg.Metadata["region"].(string)
	if region == "" {
		return nil, fmt.Errorf("bedrock: missing region in provider metadata")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Provider{
		cfg:    cfg,
		region: region,
		client: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func (p *Provider) Clone(modelID string, keyIndex int) (provider.Provider, error) {
	return New(p.cfg.WithModel(modelID, keyIndex))
}

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Name:            p.cfg.Name,
		Type:            provider.TypeBedrock,
		SupportedModels: p.cfg.SupportedModels,
		DefaultModel:    p.cfg.DefaultModel,
	}
}

func (p *Provider) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapabilityChat, provider.CapabilityLongContext}
}

func (p *Provider) SupportsStreaming() bool { return false }

// detectBedrockModelFamily extracts the model family ("anthropic", "amazon",
// "meta", "mistral") from a Bedrock model id, accounting for the regional
// inference-profile prefix (e.g. "us.anthropic.claude-...").
func detectBedrockModelFamily(modelID string) string {
	if modelID == "" {
		return ""
	}
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}
	first := segments[0]
	for _, prefix := range inferenceProfilePrefixes {
		if first == prefix {
			if len(segments) > 1 {
				return validateBedrockFamily(segments[1])
			}
			return ""
		}
	}
	return validateBedrockFamily(first)
}

func validateBedrockFamily(family string) string {
	for _, supported := range supportedBedrockFamilies {
		if family == supported {
			return family
		}
	}
	return ""
}

func (p *Provider) buildRequestBody(req provider.CompletionRequest, model string) (map[string]any, error) {
	prompt := req.Prompt
	if prompt == "" && len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	switch detectBedrockModelFamily(model) {
	case "anthropic":
		return map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"messages":          []map[string]string{{"role": "user", "content": prompt}},
		}, nil
	case "amazon":
		return map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
				"topP":          0.9,
			},
		}, nil
	case "meta":
		return map[string]any{
			"prompt":      prompt,
			"max_gen_len": maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	case "mistral":
		return map[string]any{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	default:
		return nil, fmt.Errorf("bedrock: unsupported model family for %q", model)
	}
}

func (p *Provider) parseResponseBody(body []byte, model string) (*provider.CompletionResponse, error) {
	switch detectBedrockModelFamily(model) {
	case "anthropic":
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		content := ""
		if len(resp.Content) > 0 {
			content = resp.Content[0].Text
		}
		return &provider.CompletionResponse{
			Content: content,
			Usage: provider.UsageStats{
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
				TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
			Metadata: map[string]any{},
		}, nil
	case "amazon":
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		content := ""
		if len(resp.Results) > 0 {
			content = resp.Results[0].OutputText
		}
		return &provider.CompletionResponse{Content: content, Metadata: map[string]any{}}, nil
	case "meta":
		var resp struct {
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		return &provider.CompletionResponse{Content: resp.Generation, Metadata: map[string]any{}}, nil
	case "mistral":
		var resp struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		content := ""
		if len(resp.Outputs) > 0 {
			content = resp.Outputs[0].Text
		}
		return &provider.CompletionResponse{Content: content, Metadata: map[string]any{}}, nil
	default:
		return nil, fmt.Errorf("bedrock: unsupported model family for %q", model)
	}
}

func (p *Provider) Execute(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	body, err := p.buildRequestBody(req, model)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: invoke model: %w", err)
	}

	resp, err := p.parseResponseBody(out.Body, model)
	if err != nil {
		return nil, err
	}
	resp.Model = model
	resp.Latency = time.Since(start)
	resp.Metadata["provider"] = "bedrock"
	resp.Metadata["region"] = p.region
	return resp, nil
}

// ExecuteStreaming is unsupported: Bedrock's InvokeModelWithResponseStream
// is not wired here. The returned UnsupportedError is not retryable, so
// the Pipeline's streaming path returns it to the caller without trying
// another target.
func (p *Provider) ExecuteStreaming(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	return nil, &provider.UnsupportedError{Operation: "executeStreaming", Provider: p.cfg.Name}
}

func (p *Provider) HealthCheck(ctx context.Context) (*provider.HealthCheckResult, error) {
	start := time.Now()
	if p.region == "" {
		return &provider.HealthCheckResult{Status: provider.HealthUnhealthy, Message: "no region configured", LastChecked: time.Now()}, nil
	}
	return &provider.HealthCheckResult{Status: provider.HealthHealthy, Latency: time.Since(start), LastChecked: time.Now()}, nil
}
