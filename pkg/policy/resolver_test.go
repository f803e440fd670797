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

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

type fakeStore struct {
	policies map[string][]model.Policy
	calls    int
	err      error
}

func (f *fakeStore) PoliciesForPhone(_ context.Context, phoneID string) ([]model.Policy, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.policies[phoneID], nil
}

func TestResolveFiltersInactiveAndOutOfWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC) // Saturday
	store := &fakeStore{policies: map[string][]model.Policy{
		"+1": {
			{
				PolicyID: "p-active", Status: model.PolicyActive,
				BlockedApps: []model.AppRule{{AppName: "tiktok", Ports: []model.PortRule{{Protocol: "TCP", Port: 443}}}},
			},
			{
				PolicyID: "p-inactive", Status: model.PolicyInactive,
				BlockedApps: []model.AppRule{{AppName: "youtube"}},
			},
			{
				PolicyID: "p-windowed", Status: model.PolicyActive,
				BlockedApps: []model.AppRule{{AppName: "fortnite"}},
				TimeWindows: []model.TimeWindow{{Start: 0, End: time.Hour}}, // midnight-1am only
			},
		},
	}}

	r := NewResolver(store, WithClock(func() time.Time { return now }))
	rules, err := r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "tiktok", rules[0].AppName)
}

func TestResolveCachesUntilTTL(t *testing.T) {
	cur := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{policies: map[string][]model.Policy{
		"+1": {{PolicyID: "p1", Status: model.PolicyActive, BlockedApps: []model.AppRule{{AppName: "tiktok"}}}},
	}}
	r := NewResolver(store, WithCacheTTL(time.Minute), WithClock(func() time.Time { return cur }))

	_, err := r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "second call within TTL must hit the cache")

	cur = cur.Add(2 * time.Minute)
	_, err = r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls, "call after TTL expiry must hit the store")
}

func TestInvalidateForcesRefetch(t *testing.T) {
	cur := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{policies: map[string][]model.Policy{
		"+1": {{PolicyID: "p1", Status: model.PolicyActive, BlockedApps: []model.AppRule{{AppName: "tiktok"}}}},
	}}
	r := NewResolver(store, WithClock(func() time.Time { return cur }))

	_, err := r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	r.Invalidate("+1")
	_, err = r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestResolveLastWriterWinsOnDuplicateApp(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{policies: map[string][]model.Policy{
		"+1": {
			{PolicyID: "p1", Status: model.PolicyActive, ParentContact: "a", BlockedApps: []model.AppRule{{AppName: "tiktok"}}},
			{PolicyID: "p2", Status: model.PolicyActive, ParentContact: "b", BlockedApps: []model.AppRule{{AppName: "tiktok"}}},
		},
	}}
	r := NewResolver(store, WithClock(func() time.Time { return now }))
	rules, err := r.Resolve(context.Background(), "+1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "p2", rules[0].PolicyID)
	assert.Equal(t, "b", rules[0].ParentContact)
}

func TestResolveWrapsStoreError(t *testing.T) {
	store := &fakeStore{err: nserrors.Wrap(nserrors.Transient, "store.query", assert.AnError)}
	r := NewResolver(store)
	_, err := r.Resolve(context.Background(), "+1")
	require.Error(t, err)
	assert.Equal(t, nserrors.Transient, nserrors.KindOf(err))
}
