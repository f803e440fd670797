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

// MappingStatus tracks a rule mapping's reconciliation state.
type MappingStatus string

const (
	MappingActive MappingStatus = "active"
	MappingOrphan MappingStatus = "orphan"
)

// RuleMapping is the persisted association between a phoneId/appName
// pair and the rule installed for it on the enforcement device, used
// to drive MIGRATE and REMOVE without re-deriving state from scratch.
type RuleMapping struct {
	PhoneID        string
	RuleID         string
	AppName        string
	PolicyID       string
	Address        string
	Status         MappingStatus
	CreatedAt      time.Time
	LastVerifiedAt time.Time
}

// Stale reports whether m is due for a reconciliation verify call.
func (m *RuleMapping) Stale(now time.Time, verifyStaleness time.Duration) bool {
	return now.Sub(m.LastVerifiedAt) > verifyStaleness
}
