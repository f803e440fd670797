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

package consumer

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaDeadLetterProducer publishes poison records to a configured
// dead-letter topic, reusing the same franz-go client family as the
// Consumer rather than a separate producer library.
type KafkaDeadLetterProducer struct {
	client *kgo.Client
	topic  string
}

// NewDeadLetterProducer wraps client to publish to topic. client may
// be the same *kgo.Client used for consuming: franz-go clients can
// both produce and consume concurrently.
func NewDeadLetterProducer(client *kgo.Client, topic string) *KafkaDeadLetterProducer {
	return &KafkaDeadLetterProducer{client: client, topic: topic}
}

// ProduceDeadLetter implements DeadLetterProducer.
func (p *KafkaDeadLetterProducer) ProduceDeadLetter(ctx context.Context, key, value []byte, reason string) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   key,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "x-dead-letter-reason", Value: []byte(reason)},
		},
	}
	result := p.client.ProduceSync(ctx, record)
	return result.FirstErr()
}
