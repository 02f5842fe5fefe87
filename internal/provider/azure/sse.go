// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package azure

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/axonflow/routingcore/internal/provider"
)

// streamChatCompletions reads an Azure OpenAI chat-completions SSE body
// (identical wire shape to OpenAI's) and feeds handler one chunk at a time,
// returning the concatenated content once the stream ends.
func streamChatCompletions(r io.Reader, handler provider.StreamHandler) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := handler(provider.StreamChunk{Content: delta}); err != nil {
			return "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if err := handler(provider.StreamChunk{Done: true}); err != nil {
		return "", err
	}
	return full.String(), nil
}
