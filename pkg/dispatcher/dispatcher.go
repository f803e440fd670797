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

// Package dispatcher implements the Enforcement Dispatcher: a bounded,
// durable-in-process queue that guarantees FIFO delivery of tasks
// within a subscriber and at most one in-flight task per subscriber,
// with exponential backoff on retryable failures.
//
// Readiness is tracked with a k8s.io/client-go/util/workqueue
// RateLimitingInterface keyed by subscriberId, the same dirty/
// processing-set primitive Antrea's NetworkPolicyController uses to
// guarantee a key is never processed concurrently with itself. Stock
// workqueue only carries keys, so the ordered task payloads for a
// subscriber are kept in a side map and drained one at a time: after a
// subscriber's head task finishes, the dispatcher re-adds the
// subscriber key only if more tasks remain for it, preserving strict
// per-subscriber FIFO that a plain workqueue.Type cannot express.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

const (
	// minRetryDelay and maxRetryDelay bound the exponential backoff
	// applied to a retryable task, matching the naming and defaults
	// Antrea's agent-side NetworkPolicyController uses for its own
	// rate-limited queue.
	minRetryDelay = 5 * time.Second
	maxRetryDelay = 300 * time.Second

	// DefaultMaxDepth is the total task count across every subscriber
	// queue before Enqueue starts rejecting with ErrQueueFull.
	DefaultMaxDepth = 10000

	// DefaultMaxRetries is the number of attempts (including the
	// first) given to a retryable task before it is dropped.
	DefaultMaxRetries = 5
)

// ErrQueueFull is returned by Enqueue when the dispatcher is at
// DefaultMaxDepth (or a configured override) and callers must apply
// back-pressure upstream (the Event Consumer delays committing).
var ErrQueueFull = errors.New("dispatcher: queue at capacity")

// Handler executes one EnforcementTask. Returning a retryable error
// (per nserrors.Retryable) causes the task to be retried with
// exponential backoff, up to the WithMaxRetries limit (default
// DefaultMaxRetries) of attempts.
type Handler func(ctx context.Context, task *model.EnforcementTask) error

// Metrics receives dispatcher observability callbacks. A nil Metrics
// is safe to use.
type Metrics interface {
	SetQueueDepth(n int)
	ObserveOutcome(eventKind model.EventKind, outcome string)
}

// Dispatcher is the Enforcement Dispatcher.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string][]*model.EnforcementTask
	depth  int

	maxDepth   int
	maxRetries int

	queue   workqueue.RateLimitingInterface
	handler Handler
	metrics Metrics
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option { return func(d *Dispatcher) { d.maxDepth = n } }

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option { return func(d *Dispatcher) { d.maxRetries = n } }

// WithMetrics wires a Metrics sink.
func WithMetrics(m Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// New builds a Dispatcher that invokes handler for each task it
// dispatches.
func New(handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queues:     make(map[string][]*model.EnforcementTask),
		maxDepth:   DefaultMaxDepth,
		maxRetries: DefaultMaxRetries,
		queue:      workqueue.NewNamedRateLimitingQueue(workqueue.NewItemExponentialFailureRateLimiter(minRetryDelay, maxRetryDelay), "enforcement"),
		handler:    handler,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue appends task to its subscriber's FIFO, failing with
// ErrQueueFull once the dispatcher's total depth reaches maxDepth.
func (d *Dispatcher) Enqueue(task *model.EnforcementTask) error {
	d.mu.Lock()
	if d.depth >= d.maxDepth {
		d.mu.Unlock()
		return ErrQueueFull
	}
	d.queues[task.SubscriberID] = append(d.queues[task.SubscriberID], task)
	d.depth++
	depth := d.depth
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.SetQueueDepth(depth)
	}
	d.queue.Add(task.SubscriberID)
	return nil
}

// Run starts numWorkers goroutines draining the dispatcher and blocks
// until ctx is cancelled, at which point it shuts the internal queue
// down and waits for in-flight tasks to return before returning.
func (d *Dispatcher) Run(ctx context.Context, numWorkers int) {
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			wait.Until(func() { d.worker(ctx) }, 0, ctx.Done())
		}()
	}

	<-ctx.Done()
	d.queue.ShutDown()
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for d.processNextItem(ctx) {
	}
}

// processNextItem handles exactly one subscriber's head task and
// reports whether the worker should keep looping.
func (d *Dispatcher) processNextItem(ctx context.Context) bool {
	item, shutdown := d.queue.Get()
	if shutdown {
		return false
	}
	subscriberID := item.(string)
	defer d.queue.Done(subscriberID)

	task, ok := d.peek(subscriberID)
	if !ok {
		d.queue.Forget(subscriberID)
		return true
	}

	err := d.handler(ctx, task)
	if err == nil {
		d.finishHead(subscriberID, task.EventKind, "success")
		return true
	}

	var classified *nserrors.Error
	if errors.As(err, &classified) && classified.Kind == nserrors.RateLimited {
		retryAfter := classified.RetryAfter
		if retryAfter <= 0 {
			retryAfter = minRetryDelay
		}
		klog.V(2).InfoS("Deferring rate-limited enforcement task", "subscriberId", subscriberID,
			"phoneId", task.PhoneID, "attempt", task.Attempt, "retryAfter", retryAfter)
		d.queue.AddAfter(subscriberID, retryAfter)
		return true
	}

	if !nserrors.Retryable(err) || task.Attempt+1 >= d.maxRetries {
		klog.ErrorS(err, "Dropping enforcement task after exhausting retries",
			"subscriberId", subscriberID, "phoneId", task.PhoneID, "attempt", task.Attempt+1)
		d.finishHead(subscriberID, task.EventKind, "dropped")
		return true
	}

	task.Attempt++
	klog.V(2).InfoS("Retrying enforcement task", "subscriberId", subscriberID,
		"phoneId", task.PhoneID, "attempt", task.Attempt, "err", err)
	d.queue.AddRateLimited(subscriberID)
	return true
}

func (d *Dispatcher) peek(subscriberID string) (*model.EnforcementTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tasks := d.queues[subscriberID]
	if len(tasks) == 0 {
		return nil, false
	}
	return tasks[0], true
}

// finishHead pops subscriberID's head task, forgets its backoff state,
// and re-enqueues the subscriber key if more tasks remain.
func (d *Dispatcher) finishHead(subscriberID string, eventKind model.EventKind, outcome string) {
	d.mu.Lock()
	tasks := d.queues[subscriberID]
	if len(tasks) > 0 {
		tasks = tasks[1:]
		d.depth--
	}
	if len(tasks) == 0 {
		delete(d.queues, subscriberID)
	} else {
		d.queues[subscriberID] = tasks
	}
	depth := d.depth
	remaining := len(tasks)
	d.mu.Unlock()

	d.queue.Forget(subscriberID)
	if d.metrics != nil {
		d.metrics.SetQueueDepth(depth)
		d.metrics.ObserveOutcome(eventKind, outcome)
	}
	if remaining > 0 {
		d.queue.Add(subscriberID)
	}
}

// Depth returns the total number of queued tasks across all
// subscribers, for metrics and tests.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}
