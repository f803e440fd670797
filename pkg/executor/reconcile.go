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

package executor

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/model"
	"github.com/netshield/enforcer/pkg/tracing"
)

const (
	// DefaultReconcileInterval is how often Reconcile should be invoked
	// by the composition root's periodic loop.
	DefaultReconcileInterval = 5 * time.Minute
	// DefaultVerifyStaleness is how long a mapping can go unverified
	// before a reconciliation sweep picks it up.
	DefaultVerifyStaleness = 10 * time.Minute
	// DefaultReconcileBatchSize bounds how many mappings a single sweep
	// verifies, to keep one sweep from monopolizing the facade.
	DefaultReconcileBatchSize = 200
)

// Reconcile verifies up to DefaultReconcileBatchSize stale mappings
// against the facade. A mapping whose rule still exists has its
// lastVerifiedAt refreshed. A mapping whose rule is gone is marked
// status=orphan rather than deleted immediately: only a mapping that
// is still orphaned and still gone on a later sweep, once it has
// become stale again, is actually cleared. This two-phase mark-then-
// cleanup avoids deleting a mapping on a single facade hiccup that
// made Verify report false when the rule is in fact still there.
func (e *Executor) Reconcile(ctx context.Context) (verified, cleared int, err error) {
	now := e.now()
	stale, err := e.mappings.ListStale(ctx, now, DefaultVerifyStaleness, DefaultReconcileBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for i := range stale {
		mapping := &stale[i]
		if err := e.acquire(ctx); err != nil {
			return verified, cleared, err
		}
		spanCtx, span := tracing.StartFacadeCall(ctx, "verify")
		active, verr := e.facade.Verify(spanCtx, mapping.RuleID)
		span.End()
		e.sem.Release(1)
		if verr != nil {
			klog.V(1).InfoS("Reconciliation verify failed, leaving mapping as-is",
				"phoneId", mapping.PhoneID, "ruleId", mapping.RuleID, "err", verr)
			continue
		}
		verified++

		if active {
			mapping.Status = model.MappingActive
			mapping.LastVerifiedAt = now
			if err := e.mappings.Put(ctx, mapping); err != nil {
				klog.ErrorS(err, "Failed to refresh mapping verification timestamp", "ruleId", mapping.RuleID)
			}
			continue
		}

		if mapping.Status != model.MappingOrphan {
			klog.InfoS("Marking rule mapping orphaned, will confirm on a later sweep",
				"phoneId", mapping.PhoneID, "appName", mapping.AppName, "ruleId", mapping.RuleID)
			mapping.Status = model.MappingOrphan
			mapping.LastVerifiedAt = now
			if err := e.mappings.Put(ctx, mapping); err != nil {
				klog.ErrorS(err, "Failed to mark mapping orphaned", "ruleId", mapping.RuleID)
			}
			continue
		}

		klog.InfoS("Clearing rule mapping confirmed orphaned across two sweeps",
			"phoneId", mapping.PhoneID, "appName", mapping.AppName, "ruleId", mapping.RuleID)
		if err := e.mappings.Delete(ctx, mapping.PhoneID, mapping.RuleID); err != nil {
			klog.ErrorS(err, "Failed to delete orphaned mapping", "ruleId", mapping.RuleID)
			continue
		}
		_ = e.history.Append(ctx, &model.HistoryRecord{
			PhoneID: mapping.PhoneID, Timestamp: now, Action: model.ActionUnblock,
			AppName: mapping.AppName, Address: mapping.Address, RuleID: mapping.RuleID,
			Status: model.StatusSuccess,
		})
		cleared++
	}
	return verified, cleared, nil
}

// Run invokes Reconcile on a time.Ticker every interval until ctx is
// cancelled.
func (e *Executor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			verified, cleared, err := e.Reconcile(ctx)
			if err != nil {
				klog.ErrorS(err, "Reconciliation sweep failed")
				continue
			}
			if verified > 0 || cleared > 0 {
				klog.InfoS("Reconciliation sweep complete", "verified", verified, "cleared", cleared)
			}
		}
	}
}
