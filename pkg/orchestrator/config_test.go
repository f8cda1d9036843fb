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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"

	"github.com/abcxyz/pkg/testutil"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "valid",
			cfg: &Config{
				RedisURL:       "redis://localhost:6379/0",
				RabbitMQURL:    "amqp://localhost:5672",
				MaxHunkChanges: 10,
			},
		},
		{
			name: "missing_redis_url",
			cfg: &Config{
				RabbitMQURL:    "amqp://localhost:5672",
				MaxHunkChanges: 10,
			},
			wantErr: "REDIS_URL is required",
		},
		{
			name: "missing_rabbitmq_url",
			cfg: &Config{
				RedisURL:       "redis://localhost:6379/0",
				MaxHunkChanges: 10,
			},
			wantErr: "RABBITMQ_URL is required",
		},
		{
			name: "non_positive_max_hunk_changes",
			cfg: &Config{
				RedisURL:    "redis://localhost:6379/0",
				RabbitMQURL: "amqp://localhost:5672",
			},
			wantErr: "MAX_HUNK_CHANGES must be positive",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cfg, err := newConfig(ctx, envconfig.MapLookuper(map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"RABBITMQ_URL":        "amqp://localhost:5672",
		"IGNORED_EXTENSIONS":  ".txt,.csv",
		"IGNORED_DIRECTORIES": "vendor",
	}))
	if err != nil {
		t.Fatalf("newConfig returned error: %v", err)
	}

	if got, want := cfg.OrchestratorQueue, "orchestrator_queue"; got != want {
		t.Errorf("orchestrator queue = %q, want %q", got, want)
	}
	if got, want := cfg.LLMQueue, "llm_queue"; got != want {
		t.Errorf("llm queue = %q, want %q", got, want)
	}
	if got, want := cfg.MaxHunkChanges, 10; got != want {
		t.Errorf("max hunk changes = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]string{".txt", ".csv"}, cfg.IgnoredExtensions); diff != "" {
		t.Errorf("ignored extensions diff (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"vendor"}, cfg.IgnoredDirectories); diff != "" {
		t.Errorf("ignored directories diff (-want, +got):\n%s", diff)
	}
}
