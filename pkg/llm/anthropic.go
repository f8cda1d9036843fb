// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Anthropic implements Client against the Anthropic messages endpoint. The
// system prompt travels out-of-band in a dedicated field rather than as a
// message.
type Anthropic struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropic creates an Anthropic backend.
func NewAnthropic(cfg *Config) *Anthropic {
	return &Anthropic{
		apiKey: cfg.AnthropicAPIKey,
		model:  cfg.AnthropicModel,
		url:    cfg.AnthropicBaseURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *Anthropic) GenerateResponse(ctx context.Context, messages []*Message) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("anthropic api key not configured")
	}

	var system string
	filtered := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		filtered = append(filtered, m)
	}

	payload := map[string]any{
		"model":      a.model,
		"max_tokens": 4096,
		"messages":   filtered,
	}
	if system != "" {
		payload["system"] = system
	}

	body, err := postJSON(ctx, a.client, a.url, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}, payload)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic response contained no content")
	}
	return resp.Content[0].Text, nil
}
