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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abcxyz/pkg/testutil"
)

func TestNewClient_Selection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     *Config
		want    any
		wantErr string
	}{
		{
			name: "explicit_openai",
			cfg:  &Config{Provider: "openai"},
			want: &OpenAI{},
		},
		{
			name: "explicit_wins_over_credentials",
			cfg:  &Config{Provider: "ollama", OpenAIAPIKey: "sk-x"},
			want: &Ollama{},
		},
		{
			name: "autodetect_openai_first",
			cfg:  &Config{OpenAIAPIKey: "sk-x", AnthropicAPIKey: "sk-ant-x"},
			want: &OpenAI{},
		},
		{
			name: "autodetect_anthropic_second",
			cfg:  &Config{AnthropicAPIKey: "sk-ant-x"},
			want: &Anthropic{},
		},
		{
			name: "autodetect_ollama_fallback",
			cfg:  &Config{},
			want: &Ollama{},
		},
		{
			name:    "unknown_provider",
			cfg:     &Config{Provider: "bard"},
			wantErr: "unknown llm provider",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.cfg)
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Fatal(diff)
			}
			if tc.wantErr != "" {
				return
			}

			switch tc.want.(type) {
			case *OpenAI:
				if _, ok := client.(*OpenAI); !ok {
					t.Errorf("client is %T, want *OpenAI", client)
				}
			case *Anthropic:
				if _, ok := client.(*Anthropic); !ok {
					t.Errorf("client is %T, want *Anthropic", client)
				}
			case *Ollama:
				if _, ok := client.(*Ollama); !ok {
					t.Errorf("client is %T, want *Ollama", client)
				}
			}
		})
	}
}

func TestOpenAI_GenerateResponse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"model\":\"answer\",\"content\":[]}"}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAI(&Config{
		OpenAIAPIKey:  "sk-test",
		OpenAIModel:   "gpt-4",
		OpenAIBaseURL: srv.URL,
	})

	got, err := client.GenerateResponse(ctx, []*Message{
		{Role: "system", Content: "review"},
		{Role: "user", Content: "diff"},
	})
	if err != nil {
		t.Fatalf("GenerateResponse returned error: %v", err)
	}
	if want := `{"model":"answer","content":[]}`; got != want {
		t.Errorf("response = %q, want %q", got, want)
	}
	if want := "Bearer sk-test"; gotAuth != want {
		t.Errorf("authorization = %q, want %q", gotAuth, want)
	}
	if got, want := gotPayload["model"], "gpt-4"; got != want {
		t.Errorf("model = %v, want %q", got, want)
	}
	if _, ok := gotPayload["response_format"]; !ok {
		t.Error("payload missing response_format")
	}
}

func TestAnthropic_GenerateResponse_SystemOutOfBand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var gotVersion string
	var gotPayload struct {
		System   string     `json:"system"`
		Messages []*Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"text":"ok"}]}`))
	}))
	t.Cleanup(srv.Close)

	client := NewAnthropic(&Config{
		AnthropicAPIKey:  "sk-ant-test",
		AnthropicModel:   "claude-3-5-sonnet-20240620",
		AnthropicBaseURL: srv.URL,
	})

	got, err := client.GenerateResponse(ctx, []*Message{
		{Role: "system", Content: "review carefully"},
		{Role: "user", Content: "diff"},
	})
	if err != nil {
		t.Fatalf("GenerateResponse returned error: %v", err)
	}
	if want := "ok"; got != want {
		t.Errorf("response = %q, want %q", got, want)
	}
	if want := "2023-06-01"; gotVersion != want {
		t.Errorf("anthropic-version = %q, want %q", gotVersion, want)
	}
	if want := "review carefully"; gotPayload.System != want {
		t.Errorf("system = %q, want %q", gotPayload.System, want)
	}
	for _, m := range gotPayload.Messages {
		if m.Role == "system" {
			t.Error("system message leaked into messages array")
		}
	}
}

func TestOllama_GenerateResponse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var gotPath string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"content":"local ok"}}`))
	}))
	t.Cleanup(srv.Close)

	client := NewOllama(&Config{
		OllamaBaseURL: srv.URL,
		OllamaModel:   "llama2",
	})

	got, err := client.GenerateResponse(ctx, []*Message{{Role: "user", Content: "diff"}})
	if err != nil {
		t.Fatalf("GenerateResponse returned error: %v", err)
	}
	if want := "local ok"; got != want {
		t.Errorf("response = %q, want %q", got, want)
	}
	if want := "/api/chat"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if got, want := gotPayload["format"], "json"; got != want {
		t.Errorf("format = %v, want %q", got, want)
	}
	if got, want := gotPayload["stream"], false; got != want {
		t.Errorf("stream = %v, want %v", got, want)
	}
}

func TestGenerateResponse_Non2xx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client := NewOpenAI(&Config{
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: srv.URL,
	})

	if _, err := client.GenerateResponse(ctx, []*Message{{Role: "user", Content: "x"}}); err == nil {
		t.Error("GenerateResponse did not surface non-2xx status")
	}
}

func TestOpenAI_GenerateResponse_MissingKey(t *testing.T) {
	t.Parallel()

	client := NewOpenAI(&Config{})
	if _, err := client.GenerateResponse(context.Background(), nil); err == nil {
		t.Error("GenerateResponse did not fail without an api key")
	}
}
