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

package events

import (
	"testing"

	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	raw := []byte(`{
		"eventType": "SESSION_START",
		"timestamp": "2026-08-01T10:00:00Z",
		"sessionId": "sess-1",
		"subscriberId": "404123456789012",
		"phoneId": "+15551234567",
		"privateIP": "10.0.0.5",
		"publicIP": "203.0.113.9"
	}`)
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, SessionStart, env.EventType)
	assert.Equal(t, "10.0.0.5", env.PrivateIP)
}

func TestDecodePoisonMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json at all`},
		{"missing phoneId", `{"eventType":"SESSION_START","sessionId":"s","subscriberId":"1","privateIP":"10.0.0.1"}`},
		{"missing subscriberId", `{"eventType":"SESSION_START","sessionId":"s","phoneId":"+1","privateIP":"10.0.0.1"}`},
		{"unknown event type", `{"eventType":"SESSION_PAUSE","sessionId":"s","subscriberId":"1","phoneId":"+1"}`},
		{"ip_change missing new ip", `{"eventType":"IP_CHANGE","sessionId":"s","subscriberId":"1","phoneId":"+1","oldPrivateIP":"10.0.0.1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, nserrors.Malformed, nserrors.KindOf(err))
		})
	}
}
