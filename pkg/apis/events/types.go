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

// Package events defines the session-event wire envelope produced by
// the mobile packet gateway and consumed from Kafka. These are pure
// transport types: decode.go parses and validates an Envelope.
package events

import "time"

// EventType enumerates the three session-lifecycle events the core
// understands. Any other value is rejected at decode time.
type EventType string

const (
	SessionStart EventType = "SESSION_START"
	SessionEnd   EventType = "SESSION_END"
	IPChange     EventType = "IP_CHANGE"
)

// Envelope is the JSON message shape on the session-event topic. Not
// every field is populated for every EventType; see Validate.
type Envelope struct {
	EventType EventType `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`

	SubscriberID string `json:"subscriberId"`
	PhoneID      string `json:"phoneId"`

	// SESSION_START, SESSION_END
	PrivateIP string `json:"privateIP,omitempty"`
	PublicIP  string `json:"publicIP,omitempty"`

	// IP_CHANGE
	OldPrivateIP string `json:"oldPrivateIP,omitempty"`
	NewPrivateIP string `json:"newPrivateIP,omitempty"`
	OldPublicIP  string `json:"oldPublicIP,omitempty"`
	NewPublicIP  string `json:"newPublicIP,omitempty"`
}
