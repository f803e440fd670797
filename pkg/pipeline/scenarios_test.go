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

package pipeline

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netshield/enforcer/pkg/apis/events"
	"github.com/netshield/enforcer/pkg/dispatcher"
	nsexecutor "github.com/netshield/enforcer/pkg/executor"
	nsfacade "github.com/netshield/enforcer/pkg/facade"
	"github.com/netshield/enforcer/pkg/facade/facadetest"
	"github.com/netshield/enforcer/pkg/index"
	"github.com/netshield/enforcer/pkg/model"
	nspolicy "github.com/netshield/enforcer/pkg/policy"
	"github.com/netshield/enforcer/pkg/store/storetest"
)

// harness wires every component the way cmd/enforcer's composition
// root does, but over in-memory fakes so the scenarios run without a
// live Kafka/DynamoDB/FTD deployment.
type harness struct {
	idx        *index.Index
	resolver   *nspolicy.Resolver
	policies   *storetest.PolicyStore
	mappings   *storetest.MappingStore
	history    *storetest.HistoryStore
	counters   *storetest.CounterStore
	facadeSrv  *facadetest.Server
	dispatcher *dispatcher.Dispatcher
	pipeline   *Pipeline
	stats      *Stats
	fixedNow   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fixedNow := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixedNow }

	policies := storetest.NewPolicyStore()
	resolver := nspolicy.NewResolver(policies, nspolicy.WithClock(clock))

	mappings := storetest.NewMappingStore()
	history := storetest.NewHistoryStore()
	counters := storetest.NewCounterStore()

	facadeSrv := facadetest.New()
	t.Cleanup(facadeSrv.Close)
	client := nsfacade.New(facadeSrv.URL)

	exec := nsexecutor.New(client, mappings, history, counters, nsexecutor.WithClock(clock))
	stats := &Stats{}

	idx := index.New(4, 30*time.Minute, nil)
	disp := dispatcher.New(stats.WrapExecute(exec), dispatcher.WithMaxRetries(3))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go disp.Run(ctx, 4)

	p := New(idx, resolver, disp)
	p.now = clock

	return &harness{
		idx: idx, resolver: resolver, policies: policies, mappings: mappings,
		history: history, counters: counters, facadeSrv: facadeSrv,
		dispatcher: disp, pipeline: p, stats: stats, fixedNow: fixedNow,
	}
}

func activePolicy(phoneID string, apps ...model.AppRule) model.Policy {
	return model.Policy{PolicyID: "p1", SubscriberPhoneID: phoneID, BlockedApps: apps, Status: model.PolicyActive}
}

// waitUntil polls cond until it is true or the deadline elapses,
// standing in for a real broker's at-least-once redelivery latency. The
// deadline covers the dispatcher's retry backoff (5s, then 10s).
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func TestScenarioS1BasicInstall(t *testing.T) {
	h := newHarness(t)
	h.policies.Set("+15551234567", []model.Policy{
		activePolicy("+15551234567", model.AppRule{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}),
	})

	err := h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.SessionStart, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+15551234567", PrivateIP: "10.0.0.5",
	})
	require.NoError(t, err)

	waitUntil(t, func() bool { return h.facadeSrv.RuleCount() == 1 })

	calls := h.facadeSrv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)

	assert.Equal(t, 1, h.mappings.Count())
	records := h.history.All()
	require.Len(t, records, 1)
	assert.Equal(t, model.ActionBlock, records[0].Action)
	assert.Equal(t, model.StatusSuccess, records[0].Status)
	assert.Equal(t, int64(1), h.counters.Get("+15551234567", "2026-08-01", "tiktok"))
}

func TestScenarioS2MigrationPreservesOrdering(t *testing.T) {
	h := newHarness(t)
	h.policies.Set("+1", []model.Policy{
		activePolicy("+1", model.AppRule{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}),
	})

	require.NoError(t, h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.SessionStart, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+1", PrivateIP: "10.0.0.5",
	}))
	waitUntil(t, func() bool { return h.facadeSrv.RuleCount() == 1 })

	require.NoError(t, h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.IPChange, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+1",
		OldPrivateIP: "10.0.0.5", NewPrivateIP: "10.0.0.9",
	}))

	waitUntil(t, func() bool {
		list, _ := h.mappings.ListForPhone(context.Background(), "+1")
		return len(list) == 1 && list[0].Address == "10.0.0.9"
	})

	calls := h.facadeSrv.Calls()
	var posts, puts int
	for _, c := range calls {
		switch c.Method {
		case http.MethodPost:
			posts++
		case http.MethodPut:
			puts++
		}
	}
	assert.Equal(t, 1, posts, "no additional POST during migration")
	assert.Equal(t, 1, puts)
}

func TestScenarioS3Teardown(t *testing.T) {
	h := newHarness(t)
	h.policies.Set("+1", []model.Policy{
		activePolicy("+1", model.AppRule{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}),
	})
	require.NoError(t, h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.SessionStart, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+1", PrivateIP: "10.0.0.5",
	}))
	waitUntil(t, func() bool { return h.facadeSrv.RuleCount() == 1 })

	require.NoError(t, h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.SessionEnd, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+1", PrivateIP: "10.0.0.5",
	}))

	waitUntil(t, func() bool { return h.mappings.Count() == 0 })

	assert.Equal(t, 0, h.facadeSrv.RuleCount())
	records := h.history.All()
	assert.Equal(t, model.ActionUnblock, records[len(records)-1].Action)
	assert.Equal(t, model.StatusSuccess, records[len(records)-1].Status)
}

func TestScenarioS4TransientFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.policies.Set("+1", []model.Policy{
		activePolicy("+1", model.AppRule{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}),
	})
	h.facadeSrv.FailNextWith("/api/v1/rules/block", http.StatusServiceUnavailable)
	h.facadeSrv.FailNextWith("/api/v1/rules/block", http.StatusServiceUnavailable)

	require.NoError(t, h.pipeline.HandleEvent(context.Background(), &events.Envelope{
		EventType: events.SessionStart, SessionID: "s1", SubscriberID: "sub-1", PhoneID: "+1", PrivateIP: "10.0.0.5",
	}))

	waitUntil(t, func() bool { return h.mappings.Count() == 1 })

	records := h.history.All()
	var failed, succeeded int
	for _, r := range records {
		if r.Status == model.StatusFailed {
			failed++
		}
		if r.Status == model.StatusSuccess {
			succeeded++
		}
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), h.counters.Get("+1", "2026-08-01", "tiktok"))
}

func TestScenarioS5ConcurrencyAcrossSubscribers(t *testing.T) {
	h := newHarness(t)
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		phoneID := phoneIDFor(i)
		h.policies.Set(phoneID, []model.Policy{
			activePolicy(phoneID, model.AppRule{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}),
		})
		wg.Add(1)
		go func(phoneID string, idx int) {
			defer wg.Done()
			_ = h.pipeline.HandleEvent(context.Background(), &events.Envelope{
				EventType: events.SessionStart, SessionID: "s", SubscriberID: "sub-" + phoneID, PhoneID: phoneID, PrivateIP: "10.0.0.5",
			})
		}(phoneID, i)
	}
	wg.Wait()

	waitUntil(t, func() bool { return h.facadeSrv.RuleCount() == n })
	assert.Equal(t, n, h.mappings.Count())
}

func phoneIDFor(i int) string {
	return "+1555" + string(rune('0'+i/10)) + string(rune('0'+i%10)) + "0000"
}

func TestScenarioS6PoisonMessageFailsDecode(t *testing.T) {
	raw := []byte(`{"eventType":"SESSION_START","sessionId":"s1","subscriberId":"sub-1","privateIP":"10.0.0.5"}`)
	_, err := events.Decode(raw)
	require.Error(t, err, "missing phoneId must fail decode before it ever reaches the pipeline")
}
