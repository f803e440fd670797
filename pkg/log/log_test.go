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

package log

import (
	"errors"
	"testing"
)

func TestTaskLoggerDoesNotPanic(t *testing.T) {
	l := ForPhone("+15551234567")
	l.Info("installed rule", "appName", "tiktok")
	l.V(2, "cache hit", "appName", "tiktok")
	l.Error(errors.New("boom"), "facade call failed")
}

func TestSetLevelAcceptsEveryLevel(t *testing.T) {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR", "UNKNOWN"} {
		SetLevel(level)
	}
}
