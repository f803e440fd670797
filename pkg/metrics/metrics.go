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

// Package metrics exposes the enforcer's Prometheus surface via
// github.com/prometheus/client_golang, served on /metrics by the same
// net/http server that serves /healthz.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnforcementTasksTotal counts tasks the Dispatcher has finished
	// with, by event kind and outcome (success, dropped).
	EnforcementTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enforcement_tasks_total",
		Help: "Total enforcement tasks processed, by event kind and outcome.",
	}, []string{"event_kind", "outcome"})

	// FacadeCallDuration observes rule facade call latency, by operation.
	FacadeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facade_call_duration_seconds",
		Help:    "Rule facade call latency, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// DispatcherQueueDepth reports the Enforcement Dispatcher's current
	// total task count across all subscribers.
	DispatcherQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatcher_queue_depth",
		Help: "Total enforcement tasks queued across all subscribers.",
	})

	// SessionIndexSize reports the Session Index's current session count.
	SessionIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_index_size",
		Help: "Number of sessions currently tracked by the Session Index.",
	})
)

// ObserveFacadeCall is a convenience wrapper for timing one facade
// call: `defer metrics.ObserveFacadeCall("createBlock")()`.
func ObserveFacadeCall(operation string) func() {
	start := time.Now()
	return func() {
		FacadeCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
