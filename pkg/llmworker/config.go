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

package llmworker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
	"github.com/lmalviya/review-pipeline/pkg/llm"
)

// Config defines the environment variables for the llm worker.
type Config struct {
	RedisURL    string `env:"REDIS_URL,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,required"`

	LLMQueue string `env:"LLM_QUEUE,default=llm_queue"`
	GitQueue string `env:"GIT_QUEUE,default=git_queue"`

	SystemPromptName string `env:"SYSTEM_PROMPT_NAME,default=performance"`

	LLM llm.Config
}

// Validate validates the worker config after load.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.RedisURL == "" {
		merr = errors.Join(merr, fmt.Errorf("REDIS_URL is required"))
	}

	if cfg.RabbitMQURL == "" {
		merr = errors.Join(merr, fmt.Errorf("RABBITMQ_URL is required"))
	}

	return merr
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("LLM WORKER OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "redis-url",
		Target: &cfg.RedisURL,
		EnvVar: "REDIS_URL",
		Usage:  `Connection URL of the shared Redis state store.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "rabbitmq-url",
		Target: &cfg.RabbitMQURL,
		EnvVar: "RABBITMQ_URL",
		Usage:  `Connection URL of the RabbitMQ broker.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "llm-queue",
		Target:  &cfg.LLMQueue,
		EnvVar:  "LLM_QUEUE",
		Default: "llm_queue",
		Usage:   `Name of the llm queue.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "git-queue",
		Target:  &cfg.GitQueue,
		EnvVar:  "GIT_QUEUE",
		Default: "git_queue",
		Usage:   `Name of the git queue.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "system-prompt-name",
		Target:  &cfg.SystemPromptName,
		EnvVar:  "SYSTEM_PROMPT_NAME",
		Default: "performance",
		Usage:   `Name of the system prompt in the prompt registry.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "llm-provider",
		Target: &cfg.LLM.Provider,
		EnvVar: "LLM_PROVIDER",
		Usage:  `LLM backend: openai, anthropic or ollama. Autodetected when empty.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "openai-api-key",
		Target: &cfg.LLM.OpenAIAPIKey,
		EnvVar: "OPENAI_API_KEY",
		Usage:  `OpenAI API key.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "openai-model",
		Target:  &cfg.LLM.OpenAIModel,
		EnvVar:  "OPENAI_MODEL",
		Default: "gpt-4",
		Usage:   `OpenAI model name.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "openai-base-url",
		Target:  &cfg.LLM.OpenAIBaseURL,
		EnvVar:  "OPENAI_BASE_URL",
		Default: "https://api.openai.com/v1/chat/completions",
		Usage:   `OpenAI chat completion endpoint.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "anthropic-api-key",
		Target: &cfg.LLM.AnthropicAPIKey,
		EnvVar: "ANTHROPIC_API_KEY",
		Usage:  `Anthropic API key.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "anthropic-model",
		Target:  &cfg.LLM.AnthropicModel,
		EnvVar:  "ANTHROPIC_MODEL",
		Default: "claude-3-5-sonnet-20240620",
		Usage:   `Anthropic model name.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "anthropic-base-url",
		Target:  &cfg.LLM.AnthropicBaseURL,
		EnvVar:  "ANTHROPIC_BASE_URL",
		Default: "https://api.anthropic.com/v1/messages",
		Usage:   `Anthropic messages endpoint.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "ollama-base-url",
		Target:  &cfg.LLM.OllamaBaseURL,
		EnvVar:  "OLLAMA_BASE_URL",
		Default: "http://localhost:11434",
		Usage:   `Ollama base URL.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "ollama-model",
		Target:  &cfg.LLM.OllamaModel,
		EnvVar:  "OLLAMA_MODEL",
		Default: "llama2",
		Usage:   `Ollama model name.`,
	})

	return set
}

// NewConfig creates a new Config from environment variables.
func NewConfig(ctx context.Context) (*Config, error) {
	return newConfig(ctx, envconfig.OsLookuper())
}

func newConfig(ctx context.Context, lu envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := cfgloader.Load(ctx, &cfg, cfgloader.WithLookuper(lu)); err != nil {
		return nil, fmt.Errorf("failed to parse llm worker config: %w", err)
	}
	return &cfg, nil
}
