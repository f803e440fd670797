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

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file at path, expands ${VAR} references,
// unmarshals over Default(), then applies flat per-key environment
// variable overrides (highest precedence, matching the reference
// config.py), and finally validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := expandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies a fixed set of flat environment variables
// on top of whatever Load already parsed from YAML, so an operator can
// override a single value without editing the file.
func applyEnvOverrides(cfg *Config) {
	str(&cfg.EventSource.Addr, "EVENT_SOURCE_ADDR")
	str(&cfg.EventSource.Topic, "EVENT_SOURCE_TOPIC")
	str(&cfg.EventSource.ConsumerGroup, "CONSUMER_GROUP")
	str(&cfg.EventSource.Security, "EVENT_SECURITY")

	str(&cfg.Facade.URL, "FACADE_URL")
	duration(&cfg.Facade.Timeout, "FACADE_TIMEOUT")
	integer(&cfg.Facade.MaxRetries, "FACADE_MAX_RETRIES")
	integer64(&cfg.Facade.MaxInFlight, "FACADE_MAX_INFLIGHT")
	float(&cfg.Facade.MaxQPS, "FACADE_MAX_QPS")

	integer(&cfg.Index.Shards, "INDEX_SHARDS")
	duration(&cfg.Index.SessionTTL, "SESSION_TTL")

	integer(&cfg.Dispatch.Workers, "DISPATCH_WORKERS")
	integer(&cfg.Dispatch.QueueCap, "DISPATCH_QUEUE_CAP")

	duration(&cfg.Policy.CacheTTL, "POLICY_CACHE_TTL")

	duration(&cfg.Reconcile.Interval, "RECONCILE_INTERVAL")
	duration(&cfg.Reconcile.VerifyStaleness, "VERIFY_STALENESS")

	str(&cfg.LogLevel, "LOG_LEVEL")
}

func str(field *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		*field = v
	}
}

func integer(field *int, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*field = n
		}
	}
}

func float(field *float64, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*field = f
		}
	}
}

func integer64(field *int64, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*field = n
		}
	}
}

func duration(field *Duration, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			field.Duration = d
		}
	}
}
