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

// Package llm provides the pluggable chat backends the review worker talks
// to. Each backend implements a single call that takes the conversation and
// returns the model's raw response text, which the caller parses as JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Backend names accepted in LLM_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a chat backend.
type Client interface {
	GenerateResponse(ctx context.Context, messages []*Message) (string, error)
}

// Config selects and configures the backend from the environment.
type Config struct {
	Provider string `env:"LLM_PROVIDER"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL,default=gpt-4"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL,default=https://api.openai.com/v1/chat/completions"`

	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `env:"ANTHROPIC_MODEL,default=claude-3-5-sonnet-20240620"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL,default=https://api.anthropic.com/v1/messages"`

	OllamaBaseURL string `env:"OLLAMA_BASE_URL,default=http://localhost:11434"`
	OllamaModel   string `env:"OLLAMA_MODEL,default=llama2"`
}

// NewClient builds the configured backend. Explicit configuration wins;
// otherwise the backend is autodetected from which credentials are present,
// in the order OpenAI, Anthropic, Ollama.
func NewClient(cfg *Config) (Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		switch {
		case cfg.OpenAIAPIKey != "":
			provider = ProviderOpenAI
		case cfg.AnthropicAPIKey != "":
			provider = ProviderAnthropic
		default:
			provider = ProviderOllama
		}
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOllama:
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}

// postJSON sends a JSON request and returns the raw response body, treating
// any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
