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

// Package facade defines the JSON request/response shapes of the
// upstream rule-management facade's HTTP API. The facade itself is an
// out-of-scope external collaborator; this package only pins down its
// contract.
package facade

// PortSpec is one (protocol, port) pair in a block request.
type PortSpec struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// CreateBlockRequest is the body of POST /api/v1/rules/block.
type CreateBlockRequest struct {
	SourceIP string     `json:"sourceIP"`
	AppName  string     `json:"appName"`
	Ports    []PortSpec `json:"ports"`
	PhoneID  string     `json:"phoneId"`
}

// CreateBlockResponse is the 2xx body of POST /api/v1/rules/block.
type CreateBlockResponse struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
}

// UpdateBlockRequest is the body of PUT /api/v1/rules/{id}.
type UpdateBlockRequest struct {
	NewSourceIP string `json:"newSourceIP"`
}

// UpdateBlockResponse is the 2xx body of PUT /api/v1/rules/{id}.
type UpdateBlockResponse struct {
	RuleID string `json:"ruleId"`
}

// VerifyResponse is the body of GET /api/v1/rules/{id}.
type VerifyResponse struct {
	Status string `json:"status"` // "active" | "not_found"
}

// ErrorResponse is the best-effort shape of a non-2xx facade body,
// used to extract a human-readable message for history rows.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
