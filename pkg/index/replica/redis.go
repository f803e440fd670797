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

// Package replica implements the Session Index's optional persistent
// mirror on Redis, matching the phone/ip keyspace the reference
// kafka-subscriber service used (phone:<phoneId>, ip:<address>) so an
// operator migrating from the reference deployment can keep the same
// Redis instance and key scheme.
package replica

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/netshield/enforcer/pkg/model"
)

// Redis mirrors Session Index mutations onto a redis.Client. Every
// method is best-effort: failures are logged and counted, never
// returned, so a Redis outage degrades the Index to in-memory-only
// per spec §4.A.
type Redis struct {
	client *redis.Client

	failures  uint64
	successes uint64
}

// New wraps an existing *redis.Client. Connection lifecycle (dialing,
// pooling, TLS) is the caller's responsibility, following the
// composition-root pattern: construct once, inject everywhere.
func New(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func phoneKey(phoneID string) string { return "phone:" + phoneID }
func ipKey(addr string) string       { return "ip:" + addr }

type sessionBlob struct {
	SubscriberID string `json:"subscriberId"`
	PhoneID      string `json:"phoneId"`
	PrivateIP    string `json:"privateIP"`
	PublicIP     string `json:"publicIP"`
	SessionID    string `json:"sessionId"`
	Status       string `json:"status"`
}

func toBlob(session *model.Session) sessionBlob {
	return sessionBlob{
		SubscriberID: session.SubscriberID,
		PhoneID:      session.PhoneID,
		PrivateIP:    session.PrivateAddress,
		PublicIP:     session.PublicAddress,
		SessionID:    session.SessionID,
		Status:       string(session.Status),
	}
}

// MirrorUpsert mirrors session to phone:<phoneId> and ip:<address>
// keys with the given TTL.
func (r *Redis) MirrorUpsert(session *model.Session, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(toBlob(session))
	if err != nil {
		r.fail("marshal", err)
		return
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, phoneKey(session.PhoneID), payload, ttl)
	for _, addr := range session.Addresses() {
		pipe.Set(ctx, ipKey(addr), payload, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.fail("pipeline exec", err)
		return
	}
	r.successes++
}

// MirrorRemove deletes session's keys from Redis.
func (r *Redis) MirrorRemove(session *model.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	keys := []string{phoneKey(session.PhoneID)}
	for _, addr := range session.Addresses() {
		keys = append(keys, ipKey(addr))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.fail("del", err)
		return
	}
	r.successes++
}

func (r *Redis) fail(op string, err error) {
	r.failures++
	klog.V(1).InfoS("Session index replica write degraded to in-memory only", "op", op, "err", err)
}

// HealthCheck pings Redis, matching the reference service's
// startup health-check gate.
func (r *Redis) HealthCheck(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Stats returns (successes, failures) for metrics/logging.
func (r *Redis) Stats() (successes, failures uint64) {
	return r.successes, r.failures
}
