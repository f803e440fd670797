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

// PolicyStatus mirrors the status column of the externally-owned
// policy table. Only ACTIVE policies are enforced.
type PolicyStatus string

const (
	PolicyActive     PolicyStatus = "ACTIVE"
	PolicyInactive   PolicyStatus = "INACTIVE"
	PolicySuspended  PolicyStatus = "SUSPENDED"
)

// PortRule is a single (protocol, port) pair blocked for an app.
type PortRule struct {
	Protocol string // "TCP" | "UDP"
	Port     int
}

// AppRule names an application and the ports that carry its traffic.
type AppRule struct {
	AppName string
	Ports   []PortRule
}

// TimeWindow gates enforcement to a recurring time-of-day range on a
// set of weekdays. Weekdays uses time.Weekday values; an empty slice
// means "every day".
type TimeWindow struct {
	Start    time.Duration // offset from midnight, local to the policy
	End      time.Duration
	Weekdays []time.Weekday
}

// Contains reports whether now (in the policy's local time-of-day)
// falls within w.
func (w TimeWindow) Contains(now time.Time) bool {
	if len(w.Weekdays) > 0 {
		match := false
		for _, d := range w.Weekdays {
			if d == now.Weekday() {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	offset := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	return offset >= w.Start && offset < w.End
}

// Policy is read-only from the core's perspective; it is owned by the
// external policy store.
type Policy struct {
	PolicyID          string
	SubscriberPhoneID string
	ParentContact     string
	BlockedApps       []AppRule
	TimeWindows       []TimeWindow
	Status            PolicyStatus
}

// Enforceable reports whether p should be enforced at instant now:
// status must be ACTIVE, and either no time windows are defined
// (always-on) or now falls inside at least one of them.
func (p *Policy) Enforceable(now time.Time) bool {
	if p.Status != PolicyActive {
		return false
	}
	if len(p.TimeWindows) == 0 {
		return true
	}
	for _, w := range p.TimeWindows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}

// ResolvedRule is one flattened (appName, ports) tuple returned by the
// Policy Resolver, with enough provenance to build history rows.
type ResolvedRule struct {
	PolicyID      string
	AppName       string
	Ports         []PortRule
	ParentContact string
}
