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

// Package health runs the enforcer's startup health-check sequence,
// matching the reference PolicyEnforcer.start()'s order: the Redis
// session-index replica (if one was requested) must be reachable or
// startup is fatal; the rule facade's reachability is only a warning,
// since the dispatcher's own retry/backoff already tolerates a
// temporarily unavailable facade.
package health

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// RedisPinger is satisfied by pkg/index/replica.Redis.
type RedisPinger interface {
	HealthCheck(ctx context.Context) bool
}

// FacadeHealth is satisfied by pkg/facade.Client.
type FacadeHealth interface {
	Health(ctx context.Context) bool
}

// CheckStartup runs the startup sequence. redis may be nil when the
// Redis replica is disabled. A non-nil error means the caller should
// exit with status 1.
func CheckStartup(ctx context.Context, redis RedisPinger, facadeClient FacadeHealth) error {
	if redis != nil {
		if !redis.HealthCheck(ctx) {
			return fmt.Errorf("session index Redis replica is unreachable")
		}
		klog.InfoS("Redis replica health check passed")
	}

	if !facadeClient.Health(ctx) {
		klog.InfoS("Rule facade health check failed at startup, continuing anyway", "warning", true)
	} else {
		klog.InfoS("Rule facade health check passed")
	}
	return nil
}
