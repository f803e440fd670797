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

package config

import "fmt"

var validSecurity = map[string]bool{"PLAINTEXT": true, "SASL_SSL": true}
var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}

// Validate checks that cfg is complete enough to start the pipeline.
// cmd/enforcer's validate-config subcommand surfaces a non-nil error
// here as exit code 2.
func (c *Config) Validate() error {
	if c.EventSource.Addr == "" {
		return fmt.Errorf("eventSource.addr (EVENT_SOURCE_ADDR) is required")
	}
	if c.EventSource.Topic == "" {
		return fmt.Errorf("eventSource.topic (EVENT_SOURCE_TOPIC) is required")
	}
	if c.EventSource.ConsumerGroup == "" {
		return fmt.Errorf("eventSource.consumerGroup (CONSUMER_GROUP) is required")
	}
	if !validSecurity[c.EventSource.Security] {
		return fmt.Errorf("eventSource.security (EVENT_SECURITY) must be PLAINTEXT or SASL_SSL, got %q", c.EventSource.Security)
	}
	if c.Facade.URL == "" {
		return fmt.Errorf("facade.url (FACADE_URL) is required")
	}
	if c.Facade.MaxRetries < 1 {
		return fmt.Errorf("facade.maxRetries (FACADE_MAX_RETRIES) must be >= 1")
	}
	if c.Facade.MaxInFlight < 1 {
		return fmt.Errorf("facade.maxInFlight (FACADE_MAX_INFLIGHT) must be >= 1")
	}
	if c.Facade.MaxQPS < 0 {
		return fmt.Errorf("facade.maxQPS (FACADE_MAX_QPS) must be >= 0 (0 means unlimited)")
	}
	if c.Index.Shards < 1 {
		return fmt.Errorf("index.shards (INDEX_SHARDS) must be >= 1")
	}
	if c.Index.SessionTTL.Duration <= 0 {
		return fmt.Errorf("index.sessionTTL (SESSION_TTL) must be positive")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers (DISPATCH_WORKERS) must be >= 1")
	}
	if c.Dispatch.QueueCap < 1 {
		return fmt.Errorf("dispatch.queueCap (DISPATCH_QUEUE_CAP) must be >= 1")
	}
	if c.Policy.CacheTTL.Duration <= 0 {
		return fmt.Errorf("policy.cacheTTL (POLICY_CACHE_TTL) must be positive")
	}
	if c.Reconcile.Interval.Duration <= 0 {
		return fmt.Errorf("reconcile.interval (RECONCILE_INTERVAL) must be positive")
	}
	if c.Reconcile.VerifyStaleness.Duration <= 0 {
		return fmt.Errorf("reconcile.verifyStaleness (VERIFY_STALENESS) must be positive")
	}
	if c.Store.PolicyTable == "" || c.Store.MappingTable == "" || c.Store.HistoryTable == "" || c.Store.CounterTable == "" {
		return fmt.Errorf("store table names must all be set")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled is true")
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("logLevel (LOG_LEVEL) must be one of DEBUG, INFO, WARN, ERROR, got %q", c.LogLevel)
	}
	return nil
}
