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

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockPublisher records published messages for tests.
type MockPublisher struct {
	mu sync.Mutex

	// Published maps queue name to the JSON bodies sent to it, in order.
	Published map[string][][]byte

	// Err, when set, is returned from Publish.
	Err error
}

// NewMockPublisher returns an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Published: map[string][][]byte{}}
}

func (m *MockPublisher) Publish(ctx context.Context, queueName string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	m.Published[queueName] = append(m.Published[queueName], body)
	return nil
}

// Count returns the number of messages published to the named queue.
func (m *MockPublisher) Count(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published[queueName])
}

// Last unmarshals the most recent message on the named queue into v and
// reports whether one existed.
func (m *MockPublisher) Last(queueName string, v any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Published[queueName]
	if len(msgs) == 0 {
		return false
	}
	if err := json.Unmarshal(msgs[len(msgs)-1], v); err != nil {
		return false
	}
	return true
}
