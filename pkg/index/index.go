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

// Package index implements the Session Index: a bidirectionally-keyed,
// in-memory store mapping {subscriberId, phoneId, address} to Session,
// sharded by subscriberId so unrelated subscribers never contend on
// the same lock.
package index

import (
	"hash/fnv"
	"time"

	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/model"
)

// ErrNotFound is returned by lookups and mutations that address a
// subscriber/session that isn't present.
var ErrNotFound = indexNotFoundError{}

type indexNotFoundError struct{}

func (indexNotFoundError) Error() string { return "session index: not found" }

// Replica is the optional persistent mirror described in spec §4.A.
// Replica write failures degrade to "in-memory only" with a logged
// warning; they never block or fail the caller.
type Replica interface {
	MirrorUpsert(session *model.Session, ttl time.Duration)
	MirrorRemove(session *model.Session)
}

// Index is the Session Index. The zero value is not usable; construct
// with New.
type Index struct {
	shards  []*shard
	mask    uint32
	ttl     time.Duration
	replica Replica
}

// New builds an Index with numShards shards (rounded up to the next
// power of two) and the given session TTL. replica may be nil.
func New(numShards int, sessionTTL time.Duration, replica Replica) *Index {
	n := nextPowerOfTwo(numShards)
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Index{shards: shards, mask: uint32(n - 1), ttl: sessionTTL, replica: replica}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (idx *Index) shardFor(subscriberID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subscriberID))
	return idx.shards[h.Sum32()&idx.mask]
}

// UpsertStart inserts or replaces an ACTIVE session for
// session.SubscriberID, freeing any addresses held by a prior
// terminated session for the same subscriber.
func (idx *Index) UpsertStart(session *model.Session) {
	s := idx.shardFor(session.SubscriberID)
	session.Status = model.SessionActive
	s.upsertStart(session)
	idx.mirror(session)
}

// MigrateAddress rebinds the ACTIVE session for subscriberID to
// newPrivate/newPublic, returning the addresses it previously held.
func (idx *Index) MigrateAddress(subscriberID, newPrivate, newPublic string, now time.Time) (oldPrivate, oldPublic string, err error) {
	s := idx.shardFor(subscriberID)
	session, oldPrivate, oldPublic, ok := s.migrateAddress(subscriberID, newPrivate, newPublic, now)
	if !ok {
		return "", "", ErrNotFound
	}
	idx.mirror(session)
	return oldPrivate, oldPublic, nil
}

// Terminate marks sessionID's session TERMINATED and removes all of
// its secondary keys, returning the evicted session.
func (idx *Index) Terminate(subscriberID, sessionID string) (*model.Session, error) {
	s := idx.shardFor(subscriberID)
	session, ok := s.terminate(subscriberID, sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if idx.replica != nil {
		idx.replica.MirrorRemove(session)
	}
	return session, nil
}

// LookupByPhone returns the ACTIVE session for phoneId, if any. The
// caller must supply subscriberID to resolve the owning shard; callers
// that only know phoneId should keep a phoneId->subscriberId side
// table or use LookupBySubscriber instead.
func (idx *Index) LookupByPhone(subscriberID, phoneID string) (*model.Session, bool) {
	s := idx.shardFor(subscriberID)
	return s.lookupByPhone(subscriberID, phoneID)
}

// LookupBySubscriber returns the ACTIVE session owned by subscriberID.
func (idx *Index) LookupBySubscriber(subscriberID string) (*model.Session, bool) {
	s := idx.shardFor(subscriberID)
	return s.lookupBySubscriber(subscriberID)
}

// LookupByAddress scans every shard for a session currently bound to
// addr. This is O(shards) and intended for diagnostics/reconciliation,
// not the hot path.
func (idx *Index) LookupByAddress(addr string) (*model.Session, bool) {
	for _, s := range idx.shards {
		if session, ok := s.lookupByAddress(addr); ok {
			return session, true
		}
	}
	return nil, false
}

// SweepExpired evicts every session whose lastSeenAt is older than the
// configured TTL as of now, returning the evicted sessions for
// downstream cleanup (e.g. dispatching REMOVE tasks).
func (idx *Index) SweepExpired(now time.Time) []*model.Session {
	var evicted []*model.Session
	for _, s := range idx.shards {
		for _, session := range s.sweepExpired(now, idx.ttl) {
			evicted = append(evicted, session)
			if idx.replica != nil {
				idx.replica.MirrorRemove(session)
			}
		}
	}
	if len(evicted) > 0 {
		klog.V(2).InfoS("Swept expired sessions", "count", len(evicted))
	}
	return evicted
}

// Size returns the total number of ACTIVE sessions tracked, for
// metrics.
func (idx *Index) Size() int {
	total := 0
	for _, s := range idx.shards {
		total += s.size()
	}
	return total
}

func (idx *Index) mirror(session *model.Session) {
	if idx.replica == nil {
		return
	}
	idx.replica.MirrorUpsert(session, idx.ttl)
}
