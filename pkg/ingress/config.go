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

package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
)

// Config defines the environment variables for the ingress server.
type Config struct {
	Port        string `env:"PORT,default=8080"`
	RabbitMQURL string `env:"RABBITMQ_URL,required"`

	OrchestratorQueue string `env:"ORCHESTRATOR_QUEUE,default=orchestrator_queue"`

	GitHubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`
	GitLabWebhookSecret string `env:"GITLAB_WEBHOOK_SECRET"`
}

// Validate validates the ingress config after load.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.RabbitMQURL == "" {
		merr = errors.Join(merr, fmt.Errorf("RABBITMQ_URL is required"))
	}

	if cfg.GitHubWebhookSecret == "" && cfg.GitLabWebhookSecret == "" {
		merr = errors.Join(merr, fmt.Errorf("at least one of GITHUB_WEBHOOK_SECRET or GITLAB_WEBHOOK_SECRET is required"))
	}

	return merr
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("INGRESS OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &cfg.Port,
		EnvVar:  "PORT",
		Default: "8080",
		Usage:   `Port on which the ingress server listens.`,
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
		Name:   "github-webhook-secret",
		Target: &cfg.GitHubWebhookSecret,
		EnvVar: "GITHUB_WEBHOOK_SECRET",
		Usage:  `Shared secret for validating GitHub webhook signatures.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-webhook-secret",
		Target: &cfg.GitLabWebhookSecret,
		EnvVar: "GITLAB_WEBHOOK_SECRET",
		Usage:  `Shared secret for validating the X-Gitlab-Token header.`,
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
		return nil, fmt.Errorf("failed to parse ingress config: %w", err)
	}
	return &cfg, nil
}
