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
	"encoding/json"
	"fmt"

	nserrors "github.com/netshield/enforcer/pkg/errors"
)

// Decode parses and validates a raw Kafka message value. Any failure
// is returned as a Malformed *errors.Error so the Consumer routes the
// message to the dead-letter destination and advances its offset
// instead of retrying forever.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nserrors.Wrap(nserrors.Malformed, "events.decode", fmt.Errorf("invalid JSON: %w", err))
	}
	if err := env.Validate(); err != nil {
		return nil, nserrors.Wrap(nserrors.Malformed, "events.decode", err)
	}
	return &env, nil
}

// Validate checks that the mandatory fields for env.EventType are
// present. Unknown event kinds are rejected here, not downstream.
func (env *Envelope) Validate() error {
	if env.SubscriberID == "" {
		return fmt.Errorf("missing subscriberId")
	}
	if env.PhoneID == "" {
		return fmt.Errorf("missing phoneId")
	}
	if env.SessionID == "" {
		return fmt.Errorf("missing sessionId")
	}
	switch env.EventType {
	case SessionStart:
		if env.PrivateIP == "" {
			return fmt.Errorf("SESSION_START missing privateIP")
		}
	case SessionEnd:
		if env.PrivateIP == "" {
			return fmt.Errorf("SESSION_END missing privateIP")
		}
	case IPChange:
		if env.OldPrivateIP == "" || env.NewPrivateIP == "" {
			return fmt.Errorf("IP_CHANGE missing oldPrivateIP/newPrivateIP")
		}
	default:
		return fmt.Errorf("unknown eventType %q", env.EventType)
	}
	return nil
}
