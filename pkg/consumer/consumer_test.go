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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netshield/enforcer/pkg/apis/events"
	nserrors "github.com/netshield/enforcer/pkg/errors"
)

func TestHandleWithBackpressureSucceedsImmediately(t *testing.T) {
	c := &Consumer{
		handler: func(ctx context.Context, e *events.Envelope) error { return nil },
	}
	ok := c.handleWithBackpressure(context.Background(), &events.Envelope{PhoneID: "+1"})
	assert.True(t, ok)
}

func TestHandleWithBackpressureDropsNonRetryable(t *testing.T) {
	var calls int32
	c := &Consumer{
		handler: func(ctx context.Context, e *events.Envelope) error {
			atomic.AddInt32(&calls, 1)
			return nserrors.Wrap(nserrors.Malformed, "test", assert.AnError)
		},
	}
	ok := c.handleWithBackpressure(context.Background(), &events.Envelope{PhoneID: "+1"})
	assert.True(t, ok, "non-retryable failures are dropped, not stalled on")
	assert.Equal(t, int32(1), calls)
}

func TestHandleWithBackpressureRetriesUntilSuccess(t *testing.T) {
	var calls int32
	c := &Consumer{
		retryPause: time.Millisecond,
		handler: func(ctx context.Context, e *events.Envelope) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nserrors.Wrap(nserrors.Transient, "test", assert.AnError)
			}
			return nil
		},
	}
	ok := c.handleWithBackpressure(context.Background(), &events.Envelope{PhoneID: "+1"})
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls)
}

func TestHandleWithBackpressureStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		retryPause: time.Second,
		handler: func(ctx context.Context, e *events.Envelope) error {
			return nserrors.Wrap(nserrors.Transient, "test", assert.AnError)
		},
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	ok := c.handleWithBackpressure(ctx, &events.Envelope{PhoneID: "+1"})
	assert.False(t, ok)
}
