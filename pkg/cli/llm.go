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

package cli

import (
	"context"
	"fmt"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/lmalviya/review-pipeline/pkg/llm"
	"github.com/lmalviya/review-pipeline/pkg/llmworker"
	"github.com/lmalviya/review-pipeline/pkg/queue"
	"github.com/lmalviya/review-pipeline/pkg/state"
	"github.com/lmalviya/review-pipeline/pkg/version"
)

var _ cli.Command = (*LLMWorkerCommand)(nil)

type LLMWorkerCommand struct {
	cli.BaseCommand

	cfg *llmworker.Config

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *LLMWorkerCommand) Desc() string {
	return `Start an LLM worker for the review pipeline`
}

func (c *LLMWorkerCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Start an LLM worker. The worker consumes the llm queue and runs one
  conversational turn per chunk against the configured model backend.
`
}

func (c *LLMWorkerCommand) Flags() *cli.FlagSet {
	c.cfg = &llmworker.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *LLMWorkerCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "worker starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := state.NewRedisStore(ctx, c.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to state store: %w", err)
	}
	defer store.Close()

	client := queue.New(c.cfg.RabbitMQURL)
	defer client.Close()

	backend, err := llm.NewClient(&c.cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create llm backend: %w", err)
	}

	worker := llmworker.New(c.cfg, store, client, backend)

	logger.InfoContext(ctx, "consuming llm queue", "queue", c.cfg.LLMQueue)
	if err := client.Consume(ctx, c.cfg.LLMQueue, worker.Handle); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	return nil
}
