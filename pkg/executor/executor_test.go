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
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nsfacade "github.com/netshield/enforcer/pkg/facade"
	"github.com/netshield/enforcer/pkg/facade/facadetest"
	"github.com/netshield/enforcer/pkg/model"
	"github.com/netshield/enforcer/pkg/store/storetest"
)

func newExecutor(t *testing.T, srv *facadetest.Server) (*Executor, *storetest.MappingStore, *storetest.HistoryStore, *storetest.CounterStore) {
	t.Helper()
	mappings := storetest.NewMappingStore()
	history := storetest.NewHistoryStore()
	counters := storetest.NewCounterStore()
	client := nsfacade.New(srv.URL)
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	exec := New(client, mappings, history, counters, WithClock(func() time.Time { return fixedNow }))
	return exec, mappings, history, counters
}

func installTask(phoneID, address string, apps ...string) *model.EnforcementTask {
	var rules []model.ResolvedRule
	for _, app := range apps {
		rules = append(rules, model.ResolvedRule{PolicyID: "p1", AppName: app})
	}
	return &model.EnforcementTask{SubscriberID: "sub-1", PhoneID: phoneID, EventKind: model.Install, CurrentAddress: address, Policies: rules}
}

func TestInstallCreatesRuleAndRecordsMappingHistoryCounter(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, history, counters := newExecutor(t, srv)

	err := exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok"))
	require.NoError(t, err)

	assert.Equal(t, 1, mappings.Count())
	assert.Equal(t, 1, srv.RuleCount())
	records := history.All()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusSuccess, records[0].Status)
	assert.Equal(t, int64(1), counters.Get("+1", "2026-08-01", "tiktok"))
}

func TestInstallIsIdempotentOnReplay(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, _, _ := newExecutor(t, srv)

	task := installTask("+1", "10.0.0.5", "tiktok")
	require.NoError(t, exec.Execute(context.Background(), task))
	require.NoError(t, exec.Execute(context.Background(), task))

	assert.Equal(t, 1, mappings.Count(), "replaying the same INSTALL must not create a second rule")
	assert.Equal(t, 1, srv.RuleCount())
}

func TestInstallAdoptsExistingRuleIDOnConflict(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.ConflictNextCreateAs("rule-existing-7")
	exec, mappings, history, _ := newExecutor(t, srv)

	err := exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok"))
	require.NoError(t, err)

	list, err := mappings.ListForPhone(context.Background(), "+1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rule-existing-7", list[0].RuleID)

	records := history.All()
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusSuccess, records[0].Status)
	assert.Equal(t, "rule-existing-7", records[0].RuleID)
}

func TestMigrateUpdatesExistingMapping(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, history, _ := newExecutor(t, srv)

	require.NoError(t, exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok")))

	migrate := &model.EnforcementTask{SubscriberID: "sub-1", PhoneID: "+1", EventKind: model.Migrate, CurrentAddress: "10.0.0.9", PreviousAddress: "10.0.0.5"}
	require.NoError(t, exec.Execute(context.Background(), migrate))

	list, err := mappings.ListForPhone(context.Background(), "+1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "10.0.0.9", list[0].Address)

	records := history.All()
	assert.Equal(t, model.ActionUpdate, records[len(records)-1].Action)
}

func TestMigrateWithNoMappingFallsBackToInstall(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, _, _ := newExecutor(t, srv)

	migrate := &model.EnforcementTask{
		SubscriberID: "sub-1", PhoneID: "+1", EventKind: model.Migrate, CurrentAddress: "10.0.0.9",
		Policies: []model.ResolvedRule{{PolicyID: "p1", AppName: "tiktok"}},
	}
	require.NoError(t, exec.Execute(context.Background(), migrate))
	assert.Equal(t, 1, mappings.Count())
}

func TestMigrateFallsBackToCreateWhenRuleGoneFromFacade(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, _, _ := newExecutor(t, srv)

	require.NoError(t, exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok")))
	list, _ := mappings.ListForPhone(context.Background(), "+1")
	require.Len(t, list, 1)

	srv.FailNextWith("/api/v1/rules/"+list[0].RuleID, http.StatusNotFound)

	migrate := &model.EnforcementTask{SubscriberID: "sub-1", PhoneID: "+1", EventKind: model.Migrate, CurrentAddress: "10.0.0.9"}
	require.NoError(t, exec.Execute(context.Background(), migrate))

	assert.Equal(t, 2, srv.RuleCount(), "the stale rule plus the newly created one")
}

func TestRemoveDeletesRuleAndMapping(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	exec, mappings, history, _ := newExecutor(t, srv)

	require.NoError(t, exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok")))

	remove := &model.EnforcementTask{SubscriberID: "sub-1", PhoneID: "+1", EventKind: model.Remove}
	require.NoError(t, exec.Execute(context.Background(), remove))

	assert.Equal(t, 0, mappings.Count())
	assert.Equal(t, 0, srv.RuleCount())
	records := history.All()
	assert.Equal(t, model.ActionUnblock, records[len(records)-1].Action)
}

func TestFacadeRateLimitBlocksExcessCalls(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	client := nsfacade.New(srv.URL)
	mappings := storetest.NewMappingStore()
	history := storetest.NewHistoryStore()
	counters := storetest.NewCounterStore()
	exec := New(client, mappings, history, counters, WithFacadeRateLimit(1, 1))

	require.NoError(t, exec.Execute(context.Background(), installTask("+1", "10.0.0.5", "tiktok")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := exec.Execute(ctx, installTask("+2", "10.0.0.6", "tiktok"))
	require.Error(t, err, "second call within the same burst window should block past the deadline")
}

func TestReconcileMarksThenClearsOrphanedMappingAcrossTwoSweeps(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	mappings := storetest.NewMappingStore()
	history := storetest.NewHistoryStore()
	counters := storetest.NewCounterStore()
	client := nsfacade.New(srv.URL)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	exec := New(client, mappings, history, counters, WithClock(func() time.Time { return now }))

	past := now.Add(-time.Hour)
	require.NoError(t, mappings.Put(context.Background(), &model.RuleMapping{
		PhoneID: "+1", RuleID: "rule-ghost", AppName: "tiktok", Status: model.MappingActive,
		CreatedAt: past, LastVerifiedAt: past,
	}))

	verified, cleared, err := exec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, verified)
	assert.Equal(t, 0, cleared, "a single failed verify only marks the mapping orphaned")
	assert.Equal(t, 1, mappings.Count())

	mapping, ok, err := mappings.Get(context.Background(), "+1", "tiktok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.MappingOrphan, mapping.Status)

	// Nothing to reconcile yet: the mark-orphan Put just refreshed
	// lastVerifiedAt, so the mapping isn't stale again.
	verified, cleared, err = exec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, verified)
	assert.Equal(t, 0, cleared)

	now = now.Add(DefaultVerifyStaleness + time.Minute)
	verified, cleared, err = exec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, verified)
	assert.Equal(t, 1, cleared, "an orphan still gone on a later sweep is cleared")
	assert.Equal(t, 0, mappings.Count())
}
