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

package index

import (
	"sync"
	"time"

	"github.com/netshield/enforcer/pkg/model"
)

// shard owns a disjoint slice of subscribers and the three secondary
// key maps for their sessions. Multi-key updates (migrate, terminate)
// serialize on the single shard owning the subscriber, so they are
// atomic with respect to every other operation on that subscriber.
type shard struct {
	mu sync.RWMutex

	bySubscriber map[string]*model.Session
	byPhone      map[string]*model.Session
	byAddress    map[string]*model.Session
}

func newShard() *shard {
	return &shard{
		bySubscriber: make(map[string]*model.Session),
		byPhone:      make(map[string]*model.Session),
		byAddress:    make(map[string]*model.Session),
	}
}

func (s *shard) upsertStart(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.bySubscriber[session.SubscriberID]; ok {
		s.unindexLocked(prior)
	}
	s.indexLocked(session)
}

func (s *shard) migrateAddress(subscriberID, newPrivate, newPublic string, now time.Time) (session *model.Session, oldPrivate, oldPublic string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.bySubscriber[subscriberID]
	if !found || cur.Status != model.SessionActive {
		return nil, "", "", false
	}

	oldPrivate, oldPublic = cur.PrivateAddress, cur.PublicAddress
	for _, addr := range cur.Addresses() {
		delete(s.byAddress, addr)
	}

	cur.PrivateAddress = newPrivate
	cur.PublicAddress = newPublic
	cur.LastSeenAt = now

	for _, addr := range cur.Addresses() {
		s.byAddress[addr] = cur
	}
	return cur, oldPrivate, oldPublic, true
}

func (s *shard) terminate(subscriberID, sessionID string) (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.bySubscriber[subscriberID]
	if !found || cur.SessionID != sessionID {
		return nil, false
	}
	cur.Status = model.SessionTerminated
	s.unindexLocked(cur)
	return cur, true
}

func (s *shard) lookupByPhone(subscriberID, phoneID string) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byPhone[phoneID]
	if !ok || session.SubscriberID != subscriberID {
		return nil, false
	}
	return session.Clone(), true
}

func (s *shard) lookupBySubscriber(subscriberID string) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.bySubscriber[subscriberID]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

func (s *shard) lookupByAddress(addr string) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byAddress[addr]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

func (s *shard) sweepExpired(now time.Time, ttl time.Duration) []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*model.Session
	for id, session := range s.bySubscriber {
		if session.Expired(now, ttl) {
			session.Status = model.SessionTerminated
			s.unindexSubscriberLocked(id, session)
			evicted = append(evicted, session)
		}
	}
	return evicted
}

func (s *shard) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySubscriber)
}

// indexLocked adds session to all three maps. Caller holds s.mu.
func (s *shard) indexLocked(session *model.Session) {
	s.bySubscriber[session.SubscriberID] = session
	s.byPhone[session.PhoneID] = session
	for _, addr := range session.Addresses() {
		s.byAddress[addr] = session
	}
}

// unindexLocked removes session's secondary keys, including the
// subscriber entry. Caller holds s.mu.
func (s *shard) unindexLocked(session *model.Session) {
	s.unindexSubscriberLocked(session.SubscriberID, session)
}

func (s *shard) unindexSubscriberLocked(subscriberID string, session *model.Session) {
	delete(s.bySubscriber, subscriberID)
	if cur, ok := s.byPhone[session.PhoneID]; ok && cur.SessionID == session.SessionID {
		delete(s.byPhone, session.PhoneID)
	}
	for _, addr := range session.Addresses() {
		if cur, ok := s.byAddress[addr]; ok && cur.SessionID == session.SessionID {
			delete(s.byAddress, addr)
		}
	}
}
