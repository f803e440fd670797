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

package pipeline

import (
	"context"
	"sync/atomic"

	"k8s.io/klog/v2"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/model"
)

// logEvery matches the reference's _log_stats cadence of one summary
// line per ten enforcement attempts.
const logEvery = 10

// Stats tracks aggregate processed/succeeded/failed counts the way
// the reference enforcer.py's _log_stats does, logged every logEvery
// attempts and once more on Final.
type Stats struct {
	processed uint64
	succeeded uint64
	failed    uint64
}

// Executor is the subset of executor.Executor the stats wrapper needs.
type Executor interface {
	Execute(ctx context.Context, task *model.EnforcementTask) error
}

// WrapExecute adapts exec into a dispatcher.Handler that also updates
// s and periodically logs its aggregate counts.
func (s *Stats) WrapExecute(exec Executor) func(ctx context.Context, task *model.EnforcementTask) error {
	return func(ctx context.Context, task *model.EnforcementTask) error {
		err := exec.Execute(ctx, task)

		processed := atomic.AddUint64(&s.processed, 1)
		if err == nil {
			atomic.AddUint64(&s.succeeded, 1)
		} else if !nserrors.Retryable(err) {
			atomic.AddUint64(&s.failed, 1)
		}

		if processed%logEvery == 0 {
			s.log()
		}
		return err
	}
}

// Final logs the aggregate counts one last time, for shutdown.
func (s *Stats) Final() { s.log() }

func (s *Stats) log() {
	klog.InfoS("Enforcement stats",
		"processed", atomic.LoadUint64(&s.processed),
		"succeeded", atomic.LoadUint64(&s.succeeded),
		"failed", atomic.LoadUint64(&s.failed))
}
