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

package metrics

import "github.com/netshield/enforcer/pkg/model"

// DispatcherSink implements dispatcher.Metrics over the package-level
// Prometheus collectors, so the Dispatcher never imports
// client_golang directly.
type DispatcherSink struct{}

// SetQueueDepth implements dispatcher.Metrics.
func (DispatcherSink) SetQueueDepth(n int) { DispatcherQueueDepth.Set(float64(n)) }

// ObserveOutcome implements dispatcher.Metrics.
func (DispatcherSink) ObserveOutcome(eventKind model.EventKind, outcome string) {
	EnforcementTasksTotal.WithLabelValues(string(eventKind), outcome).Inc()
}
