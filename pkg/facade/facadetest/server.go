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

// Package facadetest provides an in-memory fake of the rule facade's
// HTTP API, for exercising pkg/facade, pkg/executor and pkg/pipeline
// without a live FTD integration service. Mirrors Antrea's own
// hand-written fakes (pkg/querier/testing) rather than reaching for a
// service-virtualization framework.
package facadetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/netshield/enforcer/pkg/apis/facade"
)

// Server is a fake rule facade backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	rules           map[string]ruleState
	nextID          int
	calls           []Call
	forceErr        map[string][]int  // path -> queued HTTP statuses, each returned once
	forceRetryAfter map[string]string // path -> Retry-After header to send with the forced error
	conflictsAs     map[string]string // path -> existing ruleId to report on the next create conflict
}

type ruleState struct {
	phoneID string
	appName string
	address string
}

// Call records one request the fake observed, for assertions.
type Call struct {
	Method         string
	Path           string
	IdempotencyKey string
}

// New starts a fake facade server. Callers must Close it.
func New() *Server {
	s := &Server{
		rules:           make(map[string]ruleState),
		forceErr:        make(map[string][]int),
		forceRetryAfter: make(map[string]string),
		conflictsAs:     make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FailNextWith makes one upcoming request to path respond with status,
// for exercising retry/backoff behavior. Repeated calls for the same
// path queue up: each forced status is returned once, in call order.
func (s *Server) FailNextWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceErr[path] = append(s.forceErr[path], status)
}

// FailNextWithRetryAfter is FailNextWith plus a Retry-After header on
// the forced response, for exercising rate-limit backoff.
func (s *Server) FailNextWithRetryAfter(path string, status int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceErr[path] = append(s.forceErr[path], status)
	s.forceRetryAfter[path] = retryAfter
}

// ConflictNextCreateAs makes the next POST /api/v1/rules/block respond
// 409 reporting existingRuleID as the already-installed rule, for
// exercising the adopt-existing-id path.
func (s *Server) ConflictNextCreateAs(existingRuleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictsAs["/api/v1/rules/block"] = existingRuleID
}

// Calls returns every request observed so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// RuleCount returns the number of rules currently installed.
func (s *Server) RuleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, IdempotencyKey: r.Header.Get("X-Idempotency-Key")})
	if queued := s.forceErr[r.URL.Path]; len(queued) > 0 {
		status := queued[0]
		if len(queued) == 1 {
			delete(s.forceErr, r.URL.Path)
		} else {
			s.forceErr[r.URL.Path] = queued[1:]
		}
		retryAfter, hasRetryAfter := s.forceRetryAfter[r.URL.Path]
		delete(s.forceRetryAfter, r.URL.Path)
		s.mu.Unlock()
		if hasRetryAfter {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
		return
	}
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/health":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/rules/block":
		s.handleCreate(w, r)
	case r.Method == http.MethodPut && len(r.URL.Path) > len("/api/v1/rules/"):
		s.handleUpdate(w, r, r.URL.Path[len("/api/v1/rules/"):])
	case r.Method == http.MethodDelete && len(r.URL.Path) > len("/api/v1/rules/"):
		s.handleDelete(w, r.URL.Path[len("/api/v1/rules/"):])
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/api/v1/rules/"):
		s.handleVerify(w, r.URL.Path[len("/api/v1/rules/"):])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req facade.CreateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if existingRuleID, ok := s.conflictsAs["/api/v1/rules/block"]; ok {
		delete(s.conflictsAs, "/api/v1/rules/block")
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, facade.CreateBlockResponse{RuleID: existingRuleID, RuleName: "PARENTAL_BLOCK_" + req.PhoneID + "_" + req.AppName})
		return
	}
	s.nextID++
	ruleID := "rule-" + strconv.Itoa(s.nextID)
	s.rules[ruleID] = ruleState{phoneID: req.PhoneID, appName: req.AppName, address: req.SourceIP}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, facade.CreateBlockResponse{RuleID: ruleID, RuleName: "PARENTAL_BLOCK_" + req.PhoneID + "_" + req.AppName})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, ruleID string) {
	var req facade.UpdateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	state, ok := s.rules[ruleID]
	if ok {
		state.address = req.NewSourceIP
		s.rules[ruleID] = state
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, facade.UpdateBlockResponse{RuleID: ruleID})
}

func (s *Server) handleDelete(w http.ResponseWriter, ruleID string) {
	s.mu.Lock()
	_, ok := s.rules[ruleID]
	delete(s.rules, ruleID)
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleVerify(w http.ResponseWriter, ruleID string) {
	s.mu.Lock()
	_, ok := s.rules[ruleID]
	s.mu.Unlock()

	status := "not_found"
	if ok {
		status = "active"
	}
	writeJSON(w, http.StatusOK, facade.VerifyResponse{Status: status})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
