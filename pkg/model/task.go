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

package model

import "time"

// EventKind is the enforcement action an EnforcementTask asks the
// Executor to perform.
type EventKind string

const (
	Install EventKind = "INSTALL"
	Migrate EventKind = "MIGRATE"
	Remove  EventKind = "REMOVE"
)

// EnforcementTask is the unit of work handed from the Dispatcher to
// the Executor. PreviousAddress is only set for MIGRATE.
type EnforcementTask struct {
	// TaskID correlates this task's log lines and trace spans across
	// retries; it is distinct from the facade's idempotency key, which
	// is derived deterministically so a redelivery is recognized as a
	// replay regardless of TaskID.
	TaskID          string
	SubscriberID    string
	PhoneID         string
	EventKind       EventKind
	CurrentAddress  string
	PreviousAddress string
	Policies        []ResolvedRule

	// EnqueuedAt records when the task was built for enqueue; it is set
	// once and never touched by retries.
	EnqueuedAt time.Time
	// Attempt is 0 on the first attempt and is bumped by the Dispatcher
	// before each redelivery. It feeds the idempotency key.
	Attempt int
}
