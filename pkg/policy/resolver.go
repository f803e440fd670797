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

// Package policy implements the Policy Resolver: given a phoneId and
// an instant in time, it returns the flattened set of app rules that
// should currently be enforced, cached for DefaultCacheTTL.
package policy

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

// Store fetches the raw, unfiltered policies owned by phoneId from the
// backing policy table. Implementations live in pkg/store/policy.
type Store interface {
	PoliciesForPhone(ctx context.Context, phoneID string) ([]model.Policy, error)
}

// Resolver resolves phoneId to the ResolvedRule set currently in force,
// backed by Store and fronted by a TTL cache.
type Resolver struct {
	store Store
	cache *cache
	now   func() time.Time
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cache.ttl = ttl }
}

// WithClock overrides the resolver's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a Resolver over store with DefaultCacheTTL unless
// overridden by an Option.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store: store,
		cache: newCache(16, DefaultCacheTTL),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the flattened, currently-enforceable rules for
// phoneId. Policies that are not ACTIVE or whose time windows exclude
// now are dropped. When more than one enforceable policy names the
// same appName, the last one returned by the store wins, matching the
// reference resolver's last-writer-wins flattening.
func (r *Resolver) Resolve(ctx context.Context, phoneID string) ([]model.ResolvedRule, error) {
	now := r.now()
	if cached, ok := r.cache.get(phoneID, now); ok {
		return cached, nil
	}

	policies, err := r.store.PoliciesForPhone(ctx, phoneID)
	if err != nil {
		return nil, nserrors.Wrap(nserrors.KindOf(err), "policy.resolve", err)
	}

	byApp := make(map[string]model.ResolvedRule)
	var order []string
	for _, p := range policies {
		if !p.Enforceable(now) {
			continue
		}
		for _, app := range p.BlockedApps {
			if _, exists := byApp[app.AppName]; !exists {
				order = append(order, app.AppName)
			}
			byApp[app.AppName] = model.ResolvedRule{
				PolicyID:      p.PolicyID,
				AppName:       app.AppName,
				Ports:         app.Ports,
				ParentContact: p.ParentContact,
			}
		}
	}

	rules := make([]model.ResolvedRule, 0, len(order))
	for _, name := range order {
		rules = append(rules, byApp[name])
	}

	r.cache.set(phoneID, rules, now)
	klog.V(3).InfoS("Resolved policy", "phoneId", phoneID, "ruleCount", len(rules))
	return rules, nil
}

// Invalidate evicts phoneId's cached resolution, forcing the next
// Resolve to hit the store.
func (r *Resolver) Invalidate(phoneID string) {
	r.cache.invalidate(phoneID)
}
