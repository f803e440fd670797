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

// Package executor implements the Enforcement Executor: it takes one
// EnforcementTask off the Dispatcher and drives the rule facade and
// the mapping/history/counter stores to realize it, idempotently.
package executor

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/apis/facade"
	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
	"github.com/netshield/enforcer/pkg/tracing"
)

// DefaultFacadeMaxInFlight bounds the number of concurrent facade
// calls across all subscribers, independent of dispatcher worker count.
const DefaultFacadeMaxInFlight = 32

// FacadeClient is the subset of pkg/facade.Client the executor needs.
type FacadeClient interface {
	CreateBlock(ctx context.Context, phoneID, appName, address string, ports []facade.PortSpec, attempt int) (ruleID string, err error)
	UpdateBlock(ctx context.Context, ruleID, phoneID, appName, newAddress string, attempt int) error
	DeleteBlock(ctx context.Context, ruleID, phoneID, appName, address string, attempt int) error
	Verify(ctx context.Context, ruleID string) (bool, error)
}

// MappingStore persists the rule mappings driving MIGRATE/REMOVE.
type MappingStore interface {
	Get(ctx context.Context, phoneID, appName string) (*model.RuleMapping, bool, error)
	Put(ctx context.Context, mapping *model.RuleMapping) error
	Delete(ctx context.Context, phoneID, ruleID string) error
	ListForPhone(ctx context.Context, phoneID string) ([]model.RuleMapping, error)
	ListStale(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]model.RuleMapping, error)
}

// HistoryStore appends audit rows.
type HistoryStore interface {
	Append(ctx context.Context, record *model.HistoryRecord) error
}

// CounterStore increments the per-(phoneId,date,appName) block counter.
type CounterStore interface {
	Increment(ctx context.Context, phoneID, appName string, at time.Time) error
}

// Executor is the Enforcement Executor.
type Executor struct {
	facade   FacadeClient
	mappings MappingStore
	history  HistoryStore
	counters CounterStore
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	now      func() time.Time
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithFacadeMaxInFlight overrides DefaultFacadeMaxInFlight.
func WithFacadeMaxInFlight(n int64) Option {
	return func(e *Executor) { e.sem = semaphore.NewWeighted(n) }
}

// WithFacadeRateLimit caps sustained facade calls to qps, with burst
// as the token bucket's burst size, independent of the in-flight
// concurrency cap: MaxInFlight bounds how many calls run at once,
// this bounds how fast new ones may start.
func WithFacadeRateLimit(qps float64, burst int) Option {
	return func(e *Executor) { e.limiter = rate.NewLimiter(rate.Limit(qps), burst) }
}

// WithClock overrides the executor's time source, for tests.
func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// New builds an Executor. The facade call rate is unlimited until
// WithFacadeRateLimit is supplied.
func New(facadeClient FacadeClient, mappings MappingStore, history HistoryStore, counters CounterStore, opts ...Option) *Executor {
	e := &Executor{
		facade:   facadeClient,
		mappings: mappings,
		history:  history,
		counters: counters,
		sem:      semaphore.NewWeighted(DefaultFacadeMaxInFlight),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute realizes task, dispatching to the algorithm matching its
// EventKind. It is the dispatcher.Handler wired into the Dispatcher.
func (e *Executor) Execute(ctx context.Context, task *model.EnforcementTask) error {
	ctx, span := tracing.StartTask(ctx, string(task.EventKind), task.PhoneID, task.TaskID)
	defer span.End()

	var err error
	switch task.EventKind {
	case model.Install:
		err = e.install(ctx, task)
	case model.Migrate:
		err = e.migrate(ctx, task)
	case model.Remove:
		err = e.remove(ctx, task)
	default:
		err = nserrors.Wrap(nserrors.Malformed, "executor.execute", nil)
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// acquire blocks until both the in-flight concurrency slot and the
// sustained-rate token are available, in that order: the slot is held
// while waiting for the token, and released if that wait fails.
func (e *Executor) acquire(ctx context.Context) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nserrors.Wrap(nserrors.Transient, "executor.acquire", err)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		e.sem.Release(1)
		return nserrors.Wrap(nserrors.Transient, "executor.ratelimit", err)
	}
	return nil
}

// install creates a block rule for every resolved app rule in task,
// skipping any app whose mapping already reflects the task's current
// address (an idempotent replay of an already-applied task).
func (e *Executor) install(ctx context.Context, task *model.EnforcementTask) error {
	var firstErr error
	for _, rule := range task.Policies {
		existing, found, err := e.mappings.Get(ctx, task.PhoneID, rule.AppName)
		if err != nil {
			firstErr = firstOf(firstErr, err)
			continue
		}
		if found && existing.Status == model.MappingActive && existing.Address == task.CurrentAddress {
			continue
		}

		if err := e.createOne(ctx, task, rule); err != nil {
			firstErr = firstOf(firstErr, err)
		}
	}
	return firstErr
}

func (e *Executor) createOne(ctx context.Context, task *model.EnforcementTask, rule model.ResolvedRule) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	spanCtx, span := tracing.StartFacadeCall(ctx, "createBlock")
	ports := toPortSpecs(rule.Ports)
	ruleID, err := e.facade.CreateBlock(spanCtx, task.PhoneID, rule.AppName, task.CurrentAddress, ports, task.Attempt)
	span.End()
	e.sem.Release(1)

	now := e.now()
	if err != nil {
		if nserrors.KindOf(err) == nserrors.Conflict && ruleID != "" {
			klog.V(1).InfoS("Block rule already exists on facade, adopting its id",
				"phoneId", task.PhoneID, "appName", rule.AppName, "ruleId", ruleID)
			if putErr := e.mappings.Put(ctx, &model.RuleMapping{
				PhoneID: task.PhoneID, RuleID: ruleID, AppName: rule.AppName, PolicyID: rule.PolicyID,
				Address: task.CurrentAddress, Status: model.MappingActive, CreatedAt: now, LastVerifiedAt: now,
			}); putErr != nil {
				return putErr
			}
			return e.history.Append(ctx, &model.HistoryRecord{
				PhoneID: task.PhoneID, Timestamp: now, Action: model.ActionBlock,
				AppName: rule.AppName, Address: task.CurrentAddress, RuleID: ruleID, Status: model.StatusSuccess,
			})
		}
		_ = e.history.Append(ctx, &model.HistoryRecord{
			PhoneID: task.PhoneID, Timestamp: now, Action: model.ActionBlock,
			AppName: rule.AppName, Address: task.CurrentAddress, Status: model.StatusFailed,
			ErrorKind: nserrors.KindOf(err),
		})
		return err
	}

	if err := e.mappings.Put(ctx, &model.RuleMapping{
		PhoneID: task.PhoneID, RuleID: ruleID, AppName: rule.AppName, PolicyID: rule.PolicyID,
		Address: task.CurrentAddress, Status: model.MappingActive, CreatedAt: now, LastVerifiedAt: now,
	}); err != nil {
		return err
	}
	if err := e.history.Append(ctx, &model.HistoryRecord{
		PhoneID: task.PhoneID, Timestamp: now, Action: model.ActionBlock, AppName: rule.AppName,
		Address: task.CurrentAddress, RuleID: ruleID, Status: model.StatusSuccess,
	}); err != nil {
		return err
	}
	if err := e.counters.Increment(ctx, task.PhoneID, rule.AppName, now); err != nil {
		klog.ErrorS(err, "Failed to increment blocked counter", "phoneId", task.PhoneID, "appName", rule.AppName)
	}
	klog.InfoS("Installed block rule", "phoneId", task.PhoneID, "appName", rule.AppName, "ruleId", ruleID)
	return nil
}

// migrate repoints every existing mapping for task.PhoneID at the new
// address. A phone with no existing mappings has nothing to migrate,
// so it falls back to install, treating the gap the same way as a
// fresh SESSION_START.
func (e *Executor) migrate(ctx context.Context, task *model.EnforcementTask) error {
	mappings, err := e.mappings.ListForPhone(ctx, task.PhoneID)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return e.install(ctx, task)
	}

	var firstErr error
	for i := range mappings {
		if err := e.updateOne(ctx, task, &mappings[i]); err != nil {
			firstErr = firstOf(firstErr, err)
		}
	}
	return firstErr
}

func (e *Executor) updateOne(ctx context.Context, task *model.EnforcementTask, mapping *model.RuleMapping) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	spanCtx, span := tracing.StartFacadeCall(ctx, "updateBlock")
	err := e.facade.UpdateBlock(spanCtx, mapping.RuleID, task.PhoneID, mapping.AppName, task.CurrentAddress, task.Attempt)
	span.End()
	e.sem.Release(1)

	now := e.now()
	if err != nil {
		if nserrors.KindOf(err) == nserrors.NotFound {
			klog.V(1).InfoS("Rule missing on facade during MIGRATE, falling back to create",
				"phoneId", task.PhoneID, "appName", mapping.AppName, "ruleId", mapping.RuleID)
			rule := model.ResolvedRule{PolicyID: mapping.PolicyID, AppName: mapping.AppName}
			return e.createOne(ctx, task, rule)
		}
		_ = e.history.Append(ctx, &model.HistoryRecord{
			PhoneID: task.PhoneID, Timestamp: now, Action: model.ActionUpdate, AppName: mapping.AppName,
			Address: task.CurrentAddress, RuleID: mapping.RuleID, Status: model.StatusFailed,
			ErrorKind: nserrors.KindOf(err),
		})
		return err
	}

	mapping.Address = task.CurrentAddress
	mapping.LastVerifiedAt = now
	if err := e.mappings.Put(ctx, mapping); err != nil {
		return err
	}
	return e.history.Append(ctx, &model.HistoryRecord{
		PhoneID: task.PhoneID, Timestamp: now, Action: model.ActionUpdate, AppName: mapping.AppName,
		Address: task.CurrentAddress, RuleID: mapping.RuleID, Status: model.StatusSuccess,
	})
}

// remove deletes every mapping's rule from the facade. A facade
// NotFound is treated as success: the rule is already gone, so the
// mapping can be cleared without retrying.
func (e *Executor) remove(ctx context.Context, task *model.EnforcementTask) error {
	mappings, err := e.mappings.ListForPhone(ctx, task.PhoneID)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range mappings {
		if err := e.deleteOne(ctx, task, &mappings[i]); err != nil {
			firstErr = firstOf(firstErr, err)
		}
	}
	return firstErr
}

func (e *Executor) deleteOne(ctx context.Context, task *model.EnforcementTask, mapping *model.RuleMapping) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	spanCtx, span := tracing.StartFacadeCall(ctx, "deleteBlock")
	err := e.facade.DeleteBlock(spanCtx, mapping.RuleID, task.PhoneID, mapping.AppName, mapping.Address, task.Attempt)
	span.End()
	e.sem.Release(1)

	if err != nil && nserrors.KindOf(err) != nserrors.NotFound {
		_ = e.history.Append(ctx, &model.HistoryRecord{
			PhoneID: task.PhoneID, Timestamp: e.now(), Action: model.ActionUnblock, AppName: mapping.AppName,
			Address: mapping.Address, RuleID: mapping.RuleID, Status: model.StatusFailed,
			ErrorKind: nserrors.KindOf(err),
		})
		return err
	}

	if err := e.mappings.Delete(ctx, task.PhoneID, mapping.RuleID); err != nil {
		return err
	}
	return e.history.Append(ctx, &model.HistoryRecord{
		PhoneID: task.PhoneID, Timestamp: e.now(), Action: model.ActionUnblock, AppName: mapping.AppName,
		Address: mapping.Address, RuleID: mapping.RuleID, Status: model.StatusSuccess,
	})
}

func toPortSpecs(ports []model.PortRule) []facade.PortSpec {
	out := make([]facade.PortSpec, 0, len(ports))
	for _, p := range ports {
		out = append(out, facade.PortSpec{Protocol: p.Protocol, Port: p.Port})
	}
	return out
}

func firstOf(first, candidate error) error {
	if first != nil {
		return first
	}
	return candidate
}
