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

// Package queue wraps the RabbitMQ broker. Queues are durable, messages are
// persistent, and consumers run with prefetch 1 for fair dispatch across
// worker replicas.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abcxyz/pkg/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

// Publisher sends a message to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, v any) error
}

// Handler processes one delivery. A nil return acknowledges the message; an
// error negatively acknowledges it without requeue.
type Handler func(ctx context.Context, body []byte) error

// Client is a RabbitMQ publisher/consumer with reconnect-on-failure
// semantics. A single Client is created per worker process and reused.
type Client struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// New creates a Client for the broker at the given URL. The connection is
// established lazily on first use.
func New(url string) *Client {
	return &Client{
		url:      url,
		declared: map[string]bool{},
	}
}

// Publish marshals v as JSON and sends it as a persistent message.
func (c *Client) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channel(ctx)
	if err != nil {
		return err
	}
	if err := c.declare(ch, queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		// Force a fresh connection on the next call.
		c.reset()
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	return nil
}

// Consume processes messages from the named queue until ctx is done,
// reconnecting to the broker whenever the channel closes.
func (c *Client) Consume(ctx context.Context, queueName string, h Handler) error {
	logger := logging.FromContext(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := c.consumeOnce(ctx, queueName, h); err != nil {
			logger.ErrorContext(ctx, "consumer lost broker connection, reconnecting",
				"queue", queueName,
				"error", err)
			c.mu.Lock()
			c.reset()
			c.mu.Unlock()
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queueName string, h Handler) error {
	c.mu.Lock()
	ch, err := c.channel(ctx)
	if err == nil {
		err = c.declare(ch, queueName)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	// Fair dispatch across worker replicas.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer on %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", queueName)
			}
			if err := h(ctx, d.Body); err != nil {
				logging.FromContext(ctx).ErrorContext(ctx, "handler failed, dropping message",
					"queue", queueName,
					"error", err)
				if err := d.Nack(false, false); err != nil {
					return fmt.Errorf("failed to nack: %w", err)
				}
				continue
			}
			if err := d.Ack(false); err != nil {
				return fmt.Errorf("failed to ack: %w", err)
			}
		}
	}
}

// Close shuts down the broker connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.reset()
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close broker connection: %w", err)
	}
	return nil
}

// channel returns the current channel, dialing with backoff if necessary.
// Callers must hold c.mu.
func (c *Client) channel(ctx context.Context) (*amqp.Channel, error) {
	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to dial broker: %w", err))
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return retry.RetryableError(fmt.Errorf("failed to open channel: %w", err))
		}
		c.conn = conn
		c.ch = ch
		c.declared = map[string]bool{}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	return c.ch, nil
}

// declare ensures the queue exists as durable. Callers must hold c.mu.
func (c *Client) declare(ch *amqp.Channel, queueName string) error {
	if c.declared[queueName] {
		return nil
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	c.declared[queueName] = true
	return nil
}

// reset drops the cached connection state. Callers must hold c.mu.
func (c *Client) reset() {
	c.conn = nil
	c.ch = nil
	c.declared = map[string]bool{}
}
