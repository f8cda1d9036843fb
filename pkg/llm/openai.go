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

// OpenAI implements Client against an OpenAI-style chat completion endpoint.
type OpenAI struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg *Config) *OpenAI {
	return &OpenAI{
		apiKey: cfg.OpenAIAPIKey,
		model:  cfg.OpenAIModel,
		url:    cfg.OpenAIBaseURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAI) GenerateResponse(ctx context.Context, messages []*Message) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("openai api key not configured")
	}

	payload := map[string]any{
		"model":    o.model,
		"messages": messages,
		// Low temperature for deterministic reviews; JSON-only responses.
		"temperature":     0.1,
		"response_format": map[string]string{"type": "json_object"},
	}

	body, err := postJSON(ctx, o.client, o.url, map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}, payload)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
