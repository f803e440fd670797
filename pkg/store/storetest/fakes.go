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

// Package storetest provides in-memory fakes of the DynamoDB-shaped
// store interfaces (pkg/policy.Store, pkg/executor.MappingStore,
// HistoryStore, CounterStore), used by pkg/executor and pkg/pipeline
// tests in place of live AWS access. Mirrors Antrea's hand-written
// mock/fake pattern rather than a generated-mock framework.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/netshield/enforcer/pkg/model"
)

// PolicyStore is an in-memory policy.Store.
type PolicyStore struct {
	mu       sync.Mutex
	Policies map[string][]model.Policy
}

// NewPolicyStore builds an empty fake policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{Policies: make(map[string][]model.Policy)}
}

// PoliciesForPhone implements policy.Store.
func (s *PolicyStore) PoliciesForPhone(_ context.Context, phoneID string) ([]model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Policies[phoneID], nil
}

// Set replaces phoneID's policy set, for test setup.
func (s *PolicyStore) Set(phoneID string, policies []model.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Policies[phoneID] = policies
}

// MappingStore is an in-memory executor.MappingStore, keyed by
// (phoneId, appName) the way the executor looks mappings up and by
// ruleId for deletes, matching the reference's childPhoneNumber +
// ruleId composite key.
type MappingStore struct {
	mu       sync.Mutex
	byApp    map[string]*model.RuleMapping // phoneId|appName -> mapping
	byRuleID map[string]*model.RuleMapping // phoneId|ruleId -> mapping
}

// NewMappingStore builds an empty fake mapping store.
func NewMappingStore() *MappingStore {
	return &MappingStore{byApp: make(map[string]*model.RuleMapping), byRuleID: make(map[string]*model.RuleMapping)}
}

func appKey(phoneID, appName string) string { return phoneID + "|" + appName }
func ruleKey(phoneID, ruleID string) string { return phoneID + "|" + ruleID }

// Get implements executor.MappingStore.
func (s *MappingStore) Get(_ context.Context, phoneID, appName string) (*model.RuleMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byApp[appKey(phoneID, appName)]
	if !ok {
		return nil, false, nil
	}
	clone := *m
	return &clone, true, nil
}

// Put implements executor.MappingStore.
func (s *MappingStore) Put(_ context.Context, mapping *model.RuleMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *mapping
	s.byApp[appKey(mapping.PhoneID, mapping.AppName)] = &clone
	s.byRuleID[ruleKey(mapping.PhoneID, mapping.RuleID)] = &clone
	return nil
}

// Delete implements executor.MappingStore.
func (s *MappingStore) Delete(_ context.Context, phoneID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byRuleID[ruleKey(phoneID, ruleID)]; ok {
		delete(s.byApp, appKey(phoneID, m.AppName))
		delete(s.byRuleID, ruleKey(phoneID, ruleID))
	}
	return nil
}

// ListForPhone implements executor.MappingStore.
func (s *MappingStore) ListForPhone(_ context.Context, phoneID string) ([]model.RuleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RuleMapping
	for _, m := range s.byRuleID {
		if m.PhoneID == phoneID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// ListStale implements executor.MappingStore.
func (s *MappingStore) ListStale(_ context.Context, now time.Time, staleness time.Duration, limit int) ([]model.RuleMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RuleMapping
	for _, m := range s.byRuleID {
		if m.Stale(now, staleness) {
			out = append(out, *m)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Count returns the number of mappings currently stored, for
// assertions.
func (s *MappingStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRuleID)
}

// HistoryStore is an in-memory executor.HistoryStore.
type HistoryStore struct {
	mu      sync.Mutex
	Records []model.HistoryRecord
}

// NewHistoryStore builds an empty fake history store.
func NewHistoryStore() *HistoryStore { return &HistoryStore{} }

// Append implements executor.HistoryStore.
func (s *HistoryStore) Append(_ context.Context, record *model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, *record)
	return nil
}

// All returns every recorded history row, for assertions.
func (s *HistoryStore) All() []model.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.HistoryRecord, len(s.Records))
	copy(out, s.Records)
	return out
}

// CounterStore is an in-memory executor.CounterStore.
type CounterStore struct {
	mu     sync.Mutex
	Counts map[string]int64 // phoneId|date|appName -> count
}

// NewCounterStore builds an empty fake counter store.
func NewCounterStore() *CounterStore { return &CounterStore{Counts: make(map[string]int64)} }

// Increment implements executor.CounterStore.
func (s *CounterStore) Increment(_ context.Context, phoneID, appName string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := phoneID + "|" + at.Format("2006-01-02") + "|" + appName
	s.Counts[key]++
	return nil
}

// Get returns the counter value for (phoneId, date, appName).
func (s *CounterStore) Get(phoneID, date, appName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[phoneID+"|"+date+"|"+appName]
}
