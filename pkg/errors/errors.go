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

// Package errors defines the closed error-kind taxonomy shared by the
// Consumer, Dispatcher and Executor.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for the purpose of local retry/propagation
// policy. The set is closed; every call site must be able to map its
// failure onto exactly one of these.
type Kind string

const (
	// Transient failures (facade 5xx, connection reset, store
	// throttling) are retried with exponential backoff up to maxRetries.
	Transient Kind = "Transient"
	// RateLimited (facade 429) is retried after Retry-After and does
	// not count against maxRetries.
	RateLimited Kind = "RateLimited"
	// NotFound (facade 404 on an existing ruleId) is treated as success
	// for DELETE and triggers a create fallback for MIGRATE.
	NotFound Kind = "NotFound"
	// Conflict (facade 409, duplicate rule) is resolved by adopting the
	// existing rule's id and treating the call as success.
	Conflict Kind = "Conflict"
	// Malformed input (missing field, JSON parse failure) is absorbed
	// by the Consumer: the event goes to the dead letter destination.
	Malformed Kind = "Malformed"
	// Fatal failures (auth failure, missing policy table) are not
	// retried. Nothing stops the pipeline on them: like any other
	// non-retryable kind, the Dispatcher drops the task and the Consumer
	// logs the event and commits past it.
	Fatal Kind = "Fatal"
)

// Error carries a Kind alongside the underlying cause so that callers
// can branch on classification without string matching.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	RetryAfter time.Duration // only meaningful for RateLimited
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a classified Error. op names the operation that failed
// (e.g. "facade.createBlock"), for log correlation.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapRateLimited is Wrap for the RateLimited kind, carrying the
// server-provided Retry-After duration.
func WrapRateLimited(op string, err error, retryAfter time.Duration) *Error {
	return &Error{Kind: RateLimited, Op: op, Err: err, RetryAfter: retryAfter}
}

// KindOf extracts the Kind from err, defaulting to Transient for any
// error that was not produced by this package: an unclassified error
// is treated as possibly-recoverable rather than silently dropped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// Retryable reports whether the dispatcher should re-enqueue the task
// that produced err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}
