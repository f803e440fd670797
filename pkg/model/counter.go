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

// BlockedCounter is the per (phoneId, date, appName) aggregate,
// incremented exactly once per successful INSTALL.
type BlockedCounter struct {
	PhoneID string
	Date    string // YYYY-MM-DD
	AppName string
	Count   int64
	Hourly  map[string]int64 // "00".."23" -> count
}
