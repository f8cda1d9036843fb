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

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
	"github.com/lmalviya/review-pipeline/pkg/scm"
)

// Config defines the environment variables for the orchestrator worker.
type Config struct {
	RedisURL    string `env:"REDIS_URL,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,required"`

	OrchestratorQueue string `env:"ORCHESTRATOR_QUEUE,default=orchestrator_queue"`
	LLMQueue          string `env:"LLM_QUEUE,default=llm_queue"`

	MaxHunkChanges int `env:"MAX_HUNK_CHANGES,default=10"`

	IgnoredExtensions  []string `env:"IGNORED_EXTENSIONS"`
	IgnoredFiles       []string `env:"IGNORED_FILES"`
	IgnoredDirectories []string `env:"IGNORED_DIRECTORIES"`

	SCM scm.Config
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

	if cfg.MaxHunkChanges <= 0 {
		merr = errors.Join(merr, fmt.Errorf("MAX_HUNK_CHANGES must be positive"))
	}

	return merr
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("ORCHESTRATOR OPTIONS")

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
		Name:    "orchestrator-queue",
		Target:  &cfg.OrchestratorQueue,
		EnvVar:  "ORCHESTRATOR_QUEUE",
		Default: "orchestrator_queue",
		Usage:   `Name of the orchestrator queue.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "llm-queue",
		Target:  &cfg.LLMQueue,
		EnvVar:  "LLM_QUEUE",
		Default: "llm_queue",
		Usage:   `Name of the llm queue.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "max-hunk-changes",
		Target:  &cfg.MaxHunkChanges,
		EnvVar:  "MAX_HUNK_CHANGES",
		Default: 10,
		Usage:   `Maximum number of chunks emitted per file.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-base-url",
		Target: &cfg.SCM.GitHubBaseURL,
		EnvVar: "GITHUB_BASE_URL",
		Usage:  `GitHub API base URL, for enterprise instances.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-token",
		Target: &cfg.SCM.GitHubToken,
		EnvVar: "GITHUB_TOKEN",
		Usage:  `GitHub API token.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-base-url",
		Target: &cfg.SCM.GitLabBaseURL,
		EnvVar: "GITLAB_BASE_URL",
		Usage:  `GitLab API base URL, for self-managed instances.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-token",
		Target: &cfg.SCM.GitLabToken,
		EnvVar: "GITLAB_TOKEN",
		Usage:  `GitLab API token.`,
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
		return nil, fmt.Errorf("failed to parse orchestrator config: %w", err)
	}
	return &cfg, nil
}
