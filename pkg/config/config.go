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

// Package config loads enforcer.yaml, a YAML configuration file with
// ${VAR}/${VAR:-default} environment expansion, and applies a flat
// per-key environment variable override on top of it, the same
// precedence the reference implementation's config.py uses (env var,
// falling back to a default), adapted to Go's typed-struct style.
package config

import (
	"time"

	"github.com/netshield/enforcer/pkg/dispatcher"
	"github.com/netshield/enforcer/pkg/executor"
	"github.com/netshield/enforcer/pkg/policy"
)

// Config is the root of enforcer.yaml. Most fields can be overridden by
// an environment variable whose name they camelCase (see
// applyEnvOverrides' fixed list); the store and redis sections and the dead-letter topic
// have no environment override.
type Config struct {
	EventSource EventSourceConfig `yaml:"eventSource"`
	Facade      FacadeConfig      `yaml:"facade"`
	Index       IndexConfig       `yaml:"index"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Policy      PolicyConfig      `yaml:"policy"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Store       StoreConfig       `yaml:"store"`
	Redis       RedisConfig       `yaml:"redis"`
	LogLevel    string            `yaml:"logLevel"`
}

// EventSourceConfig binds the Event Consumer to Kafka.
type EventSourceConfig struct {
	Addr          string `yaml:"addr"`          // EVENT_SOURCE_ADDR, comma-separated broker list
	Topic         string `yaml:"topic"`         // EVENT_SOURCE_TOPIC
	ConsumerGroup string `yaml:"consumerGroup"` // CONSUMER_GROUP
	Security      string `yaml:"security"`      // EVENT_SECURITY: PLAINTEXT | SASL_SSL
	DeadLetterTopic string `yaml:"deadLetterTopic"`
}

// FacadeConfig tunes the rule facade client and Executor.
type FacadeConfig struct {
	URL         string   `yaml:"url"`         // FACADE_URL
	Timeout     Duration `yaml:"timeout"`     // FACADE_TIMEOUT
	MaxRetries  int      `yaml:"maxRetries"`  // FACADE_MAX_RETRIES
	MaxInFlight int64    `yaml:"maxInFlight"` // FACADE_MAX_INFLIGHT
	// MaxQPS caps sustained facade calls per second across all
	// subscribers; 0 means unlimited. FACADE_MAX_QPS.
	MaxQPS float64 `yaml:"maxQPS"`
}

// IndexConfig tunes the Session Index.
type IndexConfig struct {
	Shards     int      `yaml:"shards"`     // INDEX_SHARDS
	SessionTTL Duration `yaml:"sessionTTL"` // SESSION_TTL
}

// DispatchConfig tunes the Enforcement Dispatcher.
type DispatchConfig struct {
	Workers  int `yaml:"workers"`  // DISPATCH_WORKERS
	QueueCap int `yaml:"queueCap"` // DISPATCH_QUEUE_CAP
}

// PolicyConfig tunes the Policy Resolver.
type PolicyConfig struct {
	CacheTTL Duration `yaml:"cacheTTL"` // POLICY_CACHE_TTL
}

// ReconcileConfig tunes the reconciliation sweep.
type ReconcileConfig struct {
	Interval       Duration `yaml:"interval"`       // RECONCILE_INTERVAL
	VerifyStaleness Duration `yaml:"verifyStaleness"` // VERIFY_STALENESS
}

// StoreConfig names the four DynamoDB tables the stores bind to.
type StoreConfig struct {
	Region        string `yaml:"region"`
	PolicyTable   string `yaml:"policyTable"`
	MappingTable  string `yaml:"mappingTable"`
	HistoryTable  string `yaml:"historyTable"`
	CounterTable  string `yaml:"counterTable"`
}

// RedisConfig configures the optional Session Index replica. Enabled
// is false by default: the replica is best-effort and skippable.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration wraps time.Duration for "30s"/"5m"-style YAML values.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration a production deployment ships
// with when enforcer.yaml omits a section entirely.
func Default() Config {
	return Config{
		EventSource: EventSourceConfig{
			Addr: "localhost:9092", Topic: "session-events", ConsumerGroup: "enforcer",
			Security: "PLAINTEXT", DeadLetterTopic: "session-events-dlq",
		},
		Facade: FacadeConfig{
			Timeout:     Duration{30 * time.Second},
			MaxRetries:  dispatcher.DefaultMaxRetries,
			MaxInFlight: executor.DefaultFacadeMaxInFlight,
		},
		Index: IndexConfig{
			Shards:     16,
			SessionTTL: Duration{30 * time.Minute},
		},
		Dispatch: DispatchConfig{
			Workers:  4,
			QueueCap: dispatcher.DefaultMaxDepth,
		},
		Policy: PolicyConfig{
			CacheTTL: Duration{policy.DefaultCacheTTL},
		},
		Reconcile: ReconcileConfig{
			Interval:        Duration{executor.DefaultReconcileInterval},
			VerifyStaleness: Duration{executor.DefaultVerifyStaleness},
		},
		Store: StoreConfig{
			Region:       "us-east-1",
			PolicyTable:  "parental_control_policies",
			MappingTable: "table_ftd_rule_mapping",
			HistoryTable: "table_enforcement_history",
			CounterTable: "table_blocked_metrics",
		},
		Redis: RedisConfig{Enabled: false, Addr: "localhost:6379"},
		LogLevel: "INFO",
	}
}
