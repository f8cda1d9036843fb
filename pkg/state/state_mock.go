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
	"fmt"
	"sync"
)

// MockStore is an in-memory Store used by tests.
type MockStore struct {
	mu            sync.Mutex
	Requests      map[string]*ReviewRequest
	Chunks        map[string]*Chunk
	Sets          map[string][]string
	Conversations map[string][]*Message
	Posted        map[string]bool

	// Err, when set, is returned from every method.
	Err error
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Requests:      map[string]*ReviewRequest{},
		Chunks:        map[string]*Chunk{},
		Sets:          map[string][]string{},
		Conversations: map[string][]*Message{},
		Posted:        map[string]bool{},
	}
}

func (m *MockStore) SaveReviewRequest(ctx context.Context, req *ReviewRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *req
	m.Requests[req.ReviewRequestID] = &cp
	return nil
}

func (m *MockStore) GetReviewRequest(ctx context.Context, id string) (*ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	req, ok := m.Requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (m *MockStore) SaveChunk(ctx context.Context, chunk *Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *chunk
	m.Chunks[chunk.ChunkID] = &cp
	key := chunk.ReviewRequestID
	for _, id := range m.Sets[key] {
		if id == chunk.ChunkID {
			return nil
		}
	}
	m.Sets[key] = append(m.Sets[key], chunk.ChunkID)
	return nil
}

func (m *MockStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	chunk, ok := m.Chunks[id]
	if !ok {
		return nil, nil
	}
	cp := *chunk
	return &cp, nil
}

func (m *MockStore) ChunkIDsForRequest(ctx context.Context, reviewRequestID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]string{}, m.Sets[reviewRequestID]...), nil
}

func (m *MockStore) GetConversation(ctx context.Context, reviewRequestID, chunkID string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]*Message{}, m.Conversations[reviewRequestID+":"+chunkID]...), nil
}

func (m *MockStore) SaveConversation(ctx context.Context, reviewRequestID, chunkID string, conversation []*Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Conversations[reviewRequestID+":"+chunkID] = append([]*Message{}, conversation...)
	return nil
}

func (m *MockStore) WasPosted(ctx context.Context, repoID string, prID int, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	return m.Posted[fmt.Sprintf("%s:%d:%s", repoID, prID, hash)], nil
}

func (m *MockStore) MarkPosted(ctx context.Context, repoID string, prID int, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Posted[fmt.Sprintf("%s:%d:%s", repoID, prID, hash)] = true
	return nil
}
