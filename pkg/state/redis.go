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

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// postedTTL is the lifetime of an idempotency marker.
const postedTTL = 24 * time.Hour

// RedisStore implements Store on a Redis key-value store. Key layout:
//
//	review_request:<id>
//	chunk:<id>
//	review_request_chunks:<id>   (set)
//	conversation:<req_id>:<chunk_id>
//	posted:<repo_id>:<pr_id>:<hash>
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance at the given URL.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveReviewRequest(ctx context.Context, req *ReviewRequest) error {
	return s.setJSON(ctx, reviewRequestKey(req.ReviewRequestID), req)
}

func (s *RedisStore) GetReviewRequest(ctx context.Context, id string) (*ReviewRequest, error) {
	var req ReviewRequest
	found, err := s.getJSON(ctx, reviewRequestKey(id), &req)
	if err != nil || !found {
		return nil, err
	}
	return &req, nil
}

func (s *RedisStore) SaveChunk(ctx context.Context, chunk *Chunk) error {
	if err := s.setJSON(ctx, chunkKey(chunk.ChunkID), chunk); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, requestChunksKey(chunk.ReviewRequestID), chunk.ChunkID).Err(); err != nil {
		return fmt.Errorf("failed to add chunk to request set: %w", err)
	}
	return nil
}

func (s *RedisStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	var chunk Chunk
	found, err := s.getJSON(ctx, chunkKey(id), &chunk)
	if err != nil || !found {
		return nil, err
	}
	return &chunk, nil
}

func (s *RedisStore) ChunkIDsForRequest(ctx context.Context, reviewRequestID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, requestChunksKey(reviewRequestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk set: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) GetConversation(ctx context.Context, reviewRequestID, chunkID string) ([]*Message, error) {
	var conversation []*Message
	found, err := s.getJSON(ctx, conversationKey(reviewRequestID, chunkID), &conversation)
	if err != nil || !found {
		return nil, err
	}
	return conversation, nil
}

func (s *RedisStore) SaveConversation(ctx context.Context, reviewRequestID, chunkID string, conversation []*Message) error {
	return s.setJSON(ctx, conversationKey(reviewRequestID, chunkID), conversation)
}

func (s *RedisStore) WasPosted(ctx context.Context, repoID string, prID int, hash string) (bool, error) {
	if err := s.client.Get(ctx, postedKey(repoID, prID, hash)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read idempotency marker: %w", err)
	}
	return true, nil
}

func (s *RedisStore) MarkPosted(ctx context.Context, repoID string, prID int, hash string) error {
	if err := s.client.SetNX(ctx, postedKey(repoID, prID, hash), "1", postedTTL).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency marker: %w", err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// getJSON reports whether the key existed.
func (s *RedisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func reviewRequestKey(id string) string { return "review_request:" + id }

func chunkKey(id string) string { return "chunk:" + id }

func requestChunksKey(id string) string { return "review_request_chunks:" + id }

func conversationKey(reviewRequestID, chunkID string) string {
	return fmt.Sprintf("conversation:%s:%s", reviewRequestID, chunkID)
}

func postedKey(repoID string, prID int, hash string) string {
	return fmt.Sprintf("posted:%s:%d:%s", repoID, prID, hash)
}
