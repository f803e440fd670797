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

package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netshield/enforcer/pkg/model"
)

func TestToItemFromItemRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := &model.RuleMapping{
		PhoneID: "+1", RuleID: "rule-1", AppName: "tiktok", PolicyID: "p1",
		Address: "10.0.0.5", Status: model.MappingActive, CreatedAt: now, LastVerifiedAt: now,
	}

	item := toItem(m)
	assert.Equal(t, now.Add(DefaultTTL).Unix(), item.TTL)

	round := fromItem(item)
	assert.Equal(t, m.PhoneID, round.PhoneID)
	assert.Equal(t, m.RuleID, round.RuleID)
	assert.Equal(t, m.AppName, round.AppName)
	assert.Equal(t, m.Address, round.Address)
	assert.Equal(t, m.Status, round.Status)
	assert.WithinDuration(t, now, round.CreatedAt, time.Second)
	assert.WithinDuration(t, now, round.LastVerifiedAt, time.Second)
}

func TestFromItemDefaultsStatusToActive(t *testing.T) {
	round := fromItem(mappingItem{ChildPhoneNumber: "+1", RuleID: "rule-1"})
	assert.Equal(t, model.MappingActive, round.Status)
}
