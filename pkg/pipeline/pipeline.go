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

// Package pipeline is the composition root wiring the Session Index,
// Policy Resolver, and Enforcement Dispatcher into one
// consumer.Handler: HandleEvent turns a decoded session event into
// zero or one EnforcementTask and hands it to the Dispatcher.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/apis/events"
	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/index"
	"github.com/netshield/enforcer/pkg/model"
)

// Resolver is the subset of policy.Resolver the pipeline needs.
type Resolver interface {
	Resolve(ctx context.Context, phoneID string) ([]model.ResolvedRule, error)
}

// Dispatcher is the subset of dispatcher.Dispatcher the pipeline needs.
type Dispatcher interface {
	Enqueue(task *model.EnforcementTask) error
}

// Pipeline is the Event Consumer's Handler plus the pieces it wires
// together.
type Pipeline struct {
	index      *index.Index
	resolver   Resolver
	dispatcher Dispatcher
	now        func() time.Time
}

// New builds a Pipeline.
func New(idx *index.Index, resolver Resolver, dispatcher Dispatcher) *Pipeline {
	return &Pipeline{index: idx, resolver: resolver, dispatcher: dispatcher, now: time.Now}
}

// HandleEvent is the consumer.Handler: it applies env to the Session
// Index and enqueues the resulting EnforcementTask, if any.
func (p *Pipeline) HandleEvent(ctx context.Context, env *events.Envelope) error {
	switch env.EventType {
	case events.SessionStart:
		return p.handleSessionStart(ctx, env)
	case events.IPChange:
		return p.handleIPChange(ctx, env)
	case events.SessionEnd:
		return p.handleSessionEnd(ctx, env)
	default:
		return nserrors.Wrap(nserrors.Malformed, "pipeline.handleEvent", nil)
	}
}

func (p *Pipeline) handleSessionStart(ctx context.Context, env *events.Envelope) error {
	now := p.now()
	p.index.UpsertStart(&model.Session{
		SessionID: env.SessionID, SubscriberID: env.SubscriberID, PhoneID: env.PhoneID,
		PrivateAddress: env.PrivateIP, PublicAddress: env.PublicIP,
		CreatedAt: now, LastSeenAt: now, Status: model.SessionActive,
	})

	rules, err := p.resolver.Resolve(ctx, env.PhoneID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	return p.enqueue(&model.EnforcementTask{
		SubscriberID: env.SubscriberID, PhoneID: env.PhoneID, EventKind: model.Install,
		CurrentAddress: env.PrivateIP, Policies: rules, EnqueuedAt: now,
	})
}

func (p *Pipeline) handleIPChange(ctx context.Context, env *events.Envelope) error {
	now := p.now()
	oldPrivate, _, err := p.index.MigrateAddress(env.SubscriberID, env.NewPrivateIP, env.NewPublicIP, now)
	if err != nil {
		if err == index.ErrNotFound {
			klog.V(1).InfoS("IP_CHANGE for unknown session, ignoring", "subscriberId", env.SubscriberID)
			return nil
		}
		return err
	}

	rules, err := p.resolver.Resolve(ctx, env.PhoneID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	return p.enqueue(&model.EnforcementTask{
		SubscriberID: env.SubscriberID, PhoneID: env.PhoneID, EventKind: model.Migrate,
		CurrentAddress: env.NewPrivateIP, PreviousAddress: oldPrivate, Policies: rules, EnqueuedAt: now,
	})
}

func (p *Pipeline) handleSessionEnd(ctx context.Context, env *events.Envelope) error {
	now := p.now()
	if _, err := p.index.Terminate(env.SubscriberID, env.SessionID); err != nil {
		if err == index.ErrNotFound {
			klog.V(1).InfoS("SESSION_END for unknown session, ignoring", "subscriberId", env.SubscriberID)
			return nil
		}
		return err
	}

	return p.enqueue(&model.EnforcementTask{
		SubscriberID: env.SubscriberID, PhoneID: env.PhoneID, EventKind: model.Remove, EnqueuedAt: now,
	})
}

// EnqueueEvictionRemoval enqueues a Remove task for a session the
// Session Index evicted on its own (TTL sweep), using the same enqueue
// path as a SESSION_END event. The Index has already dropped the
// session by the time this is called, so unlike handleSessionEnd there
// is no Terminate call here: only the resulting teardown task.
func (p *Pipeline) EnqueueEvictionRemoval(session *model.Session) error {
	return p.enqueue(&model.EnforcementTask{
		SubscriberID: session.SubscriberID, PhoneID: session.PhoneID,
		EventKind: model.Remove, EnqueuedAt: p.now(),
	})
}

// enqueue maps a full Dispatcher queue onto a Transient (retryable)
// error: a blocked enqueue is treated as retryable so the consumer
// stalls the partition instead of dropping the event.
func (p *Pipeline) enqueue(task *model.EnforcementTask) error {
	task.TaskID = uuid.New().String()
	if err := p.dispatcher.Enqueue(task); err != nil {
		return nserrors.Wrap(nserrors.Transient, "pipeline.enqueue", err)
	}
	return nil
}
