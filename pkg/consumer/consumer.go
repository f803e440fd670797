// Copyright 2026 NetShield Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package consumer implements the Event Consumer: it polls the ingress
// Kafka topic with github.com/twmb/franz-go (the only Kafka client
// present in the example pack), decodes each record into an
// events.Envelope, and invokes a Handler with manual offset commits so
// that a record is only acknowledged after the handler accepts it.
//
// Ordering is preserved per producer partition: a partition's records
// are processed strictly in fetch order, and a retryable handler
// failure halts that partition's processing (applying back-pressure)
// rather than skipping ahead, so a later event for the same phoneId
// never overtakes an earlier one still being retried.
package consumer

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/apis/events"
	nserrors "github.com/netshield/enforcer/pkg/errors"
)

// DefaultBackpressureRetryInterval is how long the consumer waits
// before re-attempting a record whose handler returned a retryable
// error, matching the reference's SQS visibility-timeout style pause
// rather than a tight retry loop.
const DefaultBackpressureRetryInterval = 2 * time.Second

// Handler processes one decoded envelope. A retryable error (per
// nserrors.Retryable) stalls the owning partition until it succeeds; a
// Malformed error is impossible here since decode errors are handled
// before Handler is invoked.
type Handler func(ctx context.Context, envelope *events.Envelope) error

// DeadLetterProducer publishes a poison record to the configured
// dead-letter topic.
type DeadLetterProducer interface {
	ProduceDeadLetter(ctx context.Context, key, value []byte, reason string) error
}

// Consumer is the Event Consumer.
type Consumer struct {
	client     *kgo.Client
	handler    Handler
	deadLetter DeadLetterProducer
	retryPause time.Duration
}

// Option configures a Consumer at construction time.
type Option func(*Consumer)

// WithBackpressureRetryInterval overrides DefaultBackpressureRetryInterval.
func WithBackpressureRetryInterval(d time.Duration) Option {
	return func(c *Consumer) { c.retryPause = d }
}

// New builds a Consumer over an already-configured *kgo.Client. The
// client must have been built with kgo.DisableAutoCommit so that
// Run's manual kgo.Client.CommitRecords calls are authoritative.
func New(client *kgo.Client, handler Handler, deadLetter DeadLetterProducer, opts ...Option) *Consumer {
	c := &Consumer{client: client, handler: handler, deadLetter: deadLetter, retryPause: DefaultBackpressureRetryInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient builds the *kgo.Client this package expects: manual
// commits, a named consumer group, balanced partition assignment.
func NewClient(brokers []string, topic, groupID string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(groupID),
		kgo.DisableAutoCommit(),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
	)
}

// Run polls for and processes records until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			klog.ErrorS(err, "Fetch error", "topic", topic, "partition", partition)
		})

		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			c.processPartition(ctx, p)
		})
	}
}

func (c *Consumer) processPartition(ctx context.Context, p kgo.FetchTopicPartition) {
	var toCommit []*kgo.Record

	for _, record := range p.Records {
		if ctx.Err() != nil {
			break
		}

		envelope, err := events.Decode(record.Value)
		if err != nil {
			klog.ErrorS(err, "Dropping malformed event to dead letter", "topic", record.Topic, "partition", record.Partition, "offset", record.Offset)
			if c.deadLetter != nil {
				if dlqErr := c.deadLetter.ProduceDeadLetter(ctx, record.Key, record.Value, err.Error()); dlqErr != nil {
					klog.ErrorS(dlqErr, "Failed to publish dead letter")
				}
			}
			toCommit = append(toCommit, record)
			continue
		}

		if !c.handleWithBackpressure(ctx, envelope) {
			break
		}
		toCommit = append(toCommit, record)
	}

	if len(toCommit) > 0 {
		if err := c.client.CommitRecords(ctx, toCommit...); err != nil {
			klog.ErrorS(err, "Failed to commit offsets", "topic", p.Topic, "partition", p.Partition)
		}
	}
}

// handleWithBackpressure retries envelope against the handler until it
// succeeds, the error is non-retryable (logged and dropped), or ctx is
// cancelled (returns false so the caller stops without committing).
func (c *Consumer) handleWithBackpressure(ctx context.Context, envelope *events.Envelope) bool {
	for {
		err := c.handler(ctx, envelope)
		if err == nil {
			return true
		}
		if !nserrors.Retryable(err) {
			klog.ErrorS(err, "Dropping event after non-retryable handler failure",
				"phoneId", envelope.PhoneID, "eventType", envelope.EventType)
			return true
		}

		klog.V(1).InfoS("Handler applying back-pressure, retrying",
			"phoneId", envelope.PhoneID, "eventType", envelope.EventType, "err", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryPause):
		}
	}
}

// Close releases the underlying Kafka client.
func (c *Consumer) Close() {
	c.client.Close()
}
