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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/netshield/enforcer/pkg/model"
)

func TestDispatcherSinkObservesOutcome(t *testing.T) {
	EnforcementTasksTotal.Reset()
	sink := DispatcherSink{}
	sink.ObserveOutcome(model.Install, "success")
	sink.ObserveOutcome(model.Install, "success")

	assert.Equal(t, float64(2), testutil.ToFloat64(EnforcementTasksTotal.WithLabelValues("INSTALL", "success")))
}

func TestDispatcherSinkSetsQueueDepth(t *testing.T) {
	sink := DispatcherSink{}
	sink.SetQueueDepth(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(DispatcherQueueDepth))
}

func TestObserveFacadeCallRecordsDuration(t *testing.T) {
	FacadeCallDuration.Reset()
	done := ObserveFacadeCall("createBlock")
	done()

	assert.Equal(t, 1, testutil.CollectAndCount(FacadeCallDuration))
}
