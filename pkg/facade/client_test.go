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

package facade

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nsfacade "github.com/netshield/enforcer/pkg/apis/facade"
	nserrors "github.com/netshield/enforcer/pkg/errors"
	"github.com/netshield/enforcer/pkg/facade/facadetest"
)

func TestCreateUpdateVerifyDeleteRoundTrip(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()

	client := New(srv.URL)
	ctx := context.Background()

	ruleID, err := client.CreateBlock(ctx, "+15551234567", "tiktok", "10.0.0.5", []nsfacade.PortSpec{{Protocol: "TCP", Port: 443}}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, ruleID)

	active, err := client.Verify(ctx, ruleID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, client.UpdateBlock(ctx, ruleID, "+15551234567", "tiktok", "10.0.0.9", 0))

	require.NoError(t, client.DeleteBlock(ctx, ruleID, "+15551234567", "tiktok", "10.0.0.9", 0))

	active, err = client.Verify(ctx, ruleID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestVerifyUnknownRuleReturnsNotActive(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()

	client := New(srv.URL)
	active, err := client.Verify(context.Background(), "rule-missing")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestServerErrorClassifiedTransient(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.FailNextWith("/api/v1/rules/block", http.StatusServiceUnavailable)

	client := New(srv.URL)
	_, err := client.CreateBlock(context.Background(), "+1", "tiktok", "10.0.0.5", nil, 0)
	require.Error(t, err)
	assert.Equal(t, nserrors.Transient, nserrors.KindOf(err))
}

func TestRateLimitClassifiedRateLimited(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.FailNextWith("/api/v1/rules/block", http.StatusTooManyRequests)

	client := New(srv.URL)
	_, err := client.CreateBlock(context.Background(), "+1", "tiktok", "10.0.0.5", nil, 0)
	require.Error(t, err)
	assert.Equal(t, nserrors.RateLimited, nserrors.KindOf(err))
}

func TestRateLimitCarriesRetryAfterSeconds(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.FailNextWithRetryAfter("/api/v1/rules/block", http.StatusTooManyRequests, "7")

	client := New(srv.URL)
	_, err := client.CreateBlock(context.Background(), "+1", "tiktok", "10.0.0.5", nil, 0)
	require.Error(t, err)

	var classified *nserrors.Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, nserrors.RateLimited, classified.Kind)
	assert.Equal(t, 7*time.Second, classified.RetryAfter)
}

func TestRateLimitMissingRetryAfterFallsBackToDefault(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.FailNextWith("/api/v1/rules/block", http.StatusTooManyRequests)

	client := New(srv.URL)
	_, err := client.CreateBlock(context.Background(), "+1", "tiktok", "10.0.0.5", nil, 0)
	require.Error(t, err)

	var classified *nserrors.Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, defaultRetryAfter, classified.RetryAfter)
}

func TestCreateBlockConflictReturnsExistingRuleID(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	srv.ConflictNextCreateAs("rule-existing-7")

	client := New(srv.URL)
	ruleID, err := client.CreateBlock(context.Background(), "+1", "tiktok", "10.0.0.5", nil, 0)
	require.Error(t, err)
	assert.Equal(t, nserrors.Conflict, nserrors.KindOf(err))
	assert.Equal(t, "rule-existing-7", ruleID, "the existing rule's id must survive a 409 so the caller can adopt it")
}

func TestIdempotencyKeyStableForSameAttempt(t *testing.T) {
	k1 := IdempotencyKey("+1", "tiktok", "INSTALL", "10.0.0.5", 0)
	k2 := IdempotencyKey("+1", "tiktok", "INSTALL", "10.0.0.5", 0)
	k3 := IdempotencyKey("+1", "tiktok", "INSTALL", "10.0.0.5", 1)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestRuleNameStripsLeadingPlus(t *testing.T) {
	assert.Equal(t, "PARENTAL_BLOCK_15551234567_tiktok", RuleName("+15551234567", "tiktok"))
}

func TestHealthReflectsEndpoint(t *testing.T) {
	srv := facadetest.New()
	defer srv.Close()
	client := New(srv.URL)
	assert.True(t, client.Health(context.Background()))
}
