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
	"strings"
	"time"
)

// Ollama implements Client against a local Ollama chat endpoint. Local
// inference can be slow, so the timeout is far above the hosted backends'.
type Ollama struct {
	model  string
	url    string
	client *http.Client
}

// NewOllama creates an Ollama backend.
func NewOllama(cfg *Config) *Ollama {
	return &Ollama{
		model:  cfg.OllamaModel,
		url:    strings.TrimSuffix(cfg.OllamaBaseURL, "/") + "/api/chat",
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

func (o *Ollama) GenerateResponse(ctx context.Context, messages []*Message) (string, error) {
	payload := map[string]any{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
		"format":   "json",
	}

	body, err := postJSON(ctx, o.client, o.url, nil, payload)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}
	return resp.Message.Content, nil
}
