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

import (
	"time"

	nserrors "github.com/netshield/enforcer/pkg/errors"
)

// HistoryAction is the verb recorded in an audit row.
type HistoryAction string

const (
	ActionBlock   HistoryAction = "block"
	ActionUpdate  HistoryAction = "update"
	ActionUnblock HistoryAction = "unblock"
)

// HistoryStatus is the outcome of the action.
type HistoryStatus string

const (
	StatusSuccess HistoryStatus = "success"
	StatusFailed  HistoryStatus = "failed"
)

// HistoryRecord is one append-only audit row. Every enforcement
// attempt, success or failure, produces exactly one of these.
type HistoryRecord struct {
	PhoneID   string
	Timestamp time.Time
	Action    HistoryAction
	AppName   string
	Address   string
	RuleID    string
	Status    HistoryStatus
	ErrorKind nserrors.Kind
}
