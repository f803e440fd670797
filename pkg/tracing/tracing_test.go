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

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartTaskAndFacadeCallDoNotPanicWithoutInit(t *testing.T) {
	ctx, span := StartTask(context.Background(), "INSTALL", "+1", "task-1")
	assert.NotNil(t, span)
	span.End()

	_, facadeSpan := StartFacadeCall(ctx, "createBlock")
	assert.NotNil(t, facadeSpan)
	facadeSpan.End()
}

func TestSpanSuffix(t *testing.T) {
	assert.Equal(t, "install", spanSuffix("INSTALL"))
	assert.Equal(t, "migrate", spanSuffix("MIGRATE"))
	assert.Equal(t, "remove", spanSuffix("REMOVE"))
	assert.Equal(t, "unknown", spanSuffix("BOGUS"))
}
