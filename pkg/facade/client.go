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

// Package facade is the HTTP client for the remote rule facade: the
// only component of the system allowed to install, update, remove, or
// verify a firewall rule on the enforcement device.
//
// No generic HTTP-retry middleware is wired here: the Enforcement
// Dispatcher already owns attempt counting and exponential backoff per
// task, so a second, independent retrier at the transport layer would
// silently double the retry budget and defeat maxRetries.
package facade

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	nsfacade "github.com/netshield/enforcer/pkg/apis/facade"
	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/metrics"
)

// DefaultTimeout bounds every facade call, matching the reference
// FTDClient's api_timeout.
const DefaultTimeout = 30 * time.Second

// defaultRetryAfter is used when a 429 response omits a Retry-After
// header or sends one this client cannot parse.
const defaultRetryAfter = 30 * time.Second

// Client talks to the rule facade over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. "https://ftd-integration.internal").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (tests inject
// one pointed at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// RuleName builds the facade rule name for (msisdn, appName), matching
// the reference's PARENTAL_BLOCK_<msisdn>_<appName> convention
// (msisdn with any leading '+' stripped). Kept purely for operator
// fidelity: correlating installed rules against the source system.
func RuleName(msisdn, appName string) string {
	return fmt.Sprintf("PARENTAL_BLOCK_%s_%s", strings.TrimPrefix(msisdn, "+"), appName)
}

// IdempotencyKey derives the X-Idempotency-Key sent with every
// mutating call, so a redelivered task (same phoneId/appName/eventKind
// /address/attempt) is recognized as a replay by the facade rather than
// creating a duplicate rule.
func IdempotencyKey(phoneID, appName, eventKind, address string, attempt int) string {
	sum := sha256.Sum256([]byte(phoneID + "|" + appName + "|" + eventKind + "|" + address + "|" + strconv.Itoa(attempt)))
	return hex.EncodeToString(sum[:])
}

// CreateBlock installs a new block rule, returning the facade-assigned
// ruleId.
func (c *Client) CreateBlock(ctx context.Context, phoneID, appName, address string, ports []nsfacade.PortSpec, attempt int) (string, error) {
	defer metrics.ObserveFacadeCall("createBlock")()
	req := nsfacade.CreateBlockRequest{SourceIP: address, AppName: appName, Ports: ports, PhoneID: phoneID}
	var resp nsfacade.CreateBlockResponse
	key := IdempotencyKey(phoneID, appName, "INSTALL", address, attempt)
	err := c.do(ctx, http.MethodPost, "/api/v1/rules/block", key, req, &resp)
	// On 409 the facade is expected to return the already-installed
	// rule's id in the same CreateBlockResponse shape, so the caller
	// can adopt it instead of retrying a create that will never
	// succeed. do() best-effort-decodes the body in that case.
	return resp.RuleID, err
}

// UpdateBlock repoints an existing rule at a new source address.
func (c *Client) UpdateBlock(ctx context.Context, ruleID, phoneID, appName, newAddress string, attempt int) error {
	defer metrics.ObserveFacadeCall("updateBlock")()
	req := nsfacade.UpdateBlockRequest{NewSourceIP: newAddress}
	var resp nsfacade.UpdateBlockResponse
	key := IdempotencyKey(phoneID, appName, "MIGRATE", newAddress, attempt)
	return c.do(ctx, http.MethodPut, "/api/v1/rules/"+ruleID, key, req, &resp)
}

// DeleteBlock removes an existing rule.
func (c *Client) DeleteBlock(ctx context.Context, ruleID, phoneID, appName, address string, attempt int) error {
	defer metrics.ObserveFacadeCall("deleteBlock")()
	key := IdempotencyKey(phoneID, appName, "REMOVE", address, attempt)
	return c.do(ctx, http.MethodDelete, "/api/v1/rules/"+ruleID, key, nil, nil)
}

// Verify reports whether ruleID is currently active on the facade.
func (c *Client) Verify(ctx context.Context, ruleID string) (bool, error) {
	defer metrics.ObserveFacadeCall("verify")()
	var resp nsfacade.VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/rules/"+ruleID, "", nil, &resp); err != nil {
		return false, err
	}
	return resp.Status == "active", nil
}

// Health reports whether the facade's /health endpoint is reachable
// and returns 200. Unlike Verify/CreateBlock, a health failure never
// produces a retryable error: callers treat it as advisory, matching
// the reference's non-fatal health_check usage.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nserrors.Wrap(nserrors.Malformed, "facade.encode", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nserrors.Wrap(nserrors.Fatal, "facade.request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nserrors.Wrap(nserrors.Transient, "facade."+method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nserrors.Wrap(nserrors.Malformed, "facade.decode", err)
			}
		}
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nserrors.WrapRateLimited("facade."+method, fmt.Errorf("facade returned status %d", resp.StatusCode), retryAfter)
	}

	if resp.StatusCode == http.StatusConflict && out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}

	return nserrors.Wrap(classifyStatus(resp.StatusCode), "facade."+method, fmt.Errorf("facade returned status %d", resp.StatusCode))
}

// parseRetryAfter parses a Retry-After header value, which the facade
// may send as either a number of seconds or an HTTP-date, falling back
// to defaultRetryAfter when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return defaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

func classifyStatus(status int) nserrors.Kind {
	switch {
	case status == http.StatusNotFound:
		return nserrors.NotFound
	case status == http.StatusConflict:
		return nserrors.Conflict
	case status >= 500:
		return nserrors.Transient
	case status >= 400:
		return nserrors.Malformed
	default:
		return nserrors.Transient
	}
}
