/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return contracts.NewRetryableError("rate limited", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context, attempt int) error {
		calls++
		return contracts.NewNotFoundError("VM web not found", nil)
	})

	assert.True(t, contracts.IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context, attempt int) error {
		calls++
		return contracts.NewRetryableError("backend busy", nil)
	})

	assert.True(t, contracts.IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestCircuitBreaker_OpensOnTransientFailures(t *testing.T) {
	cb := NewCircuitBreaker("compute-test-open", &Config{FailureThreshold: 2, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
	ctx := context.Background()
	failing := func(ctx context.Context) error { return errors.New("connection reset") }

	_ = cb.Call(ctx, failing)
	assert.Equal(t, StateClosed, cb.GetState())
	_ = cb.Call(ctx, failing)
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Call(ctx, func(ctx context.Context) error { return nil })
	assert.True(t, contracts.IsType(err, contracts.ErrorTypeUnavailable))
}

func TestCircuitBreaker_IgnoresNotFound(t *testing.T) {
	cb := NewCircuitBreaker("compute-test-notfound", &Config{FailureThreshold: 1, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})

	for i := 0; i < 5; i++ {
		err := cb.Call(context.Background(), func(ctx context.Context) error {
			return contracts.NewNotFoundError("gone", nil)
		})
		assert.True(t, contracts.IsNotFound(err))
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetFailures())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("compute-test-halfopen", &Config{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }

	_ = cb.Call(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Second)
	err := cb.Call(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestPolicy_Execute(t *testing.T) {
	registry := NewRegistry(&Config{FailureThreshold: 10, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
	policy := NewPolicy("compute", fastRetry(), registry.GetOrCreate("compute-test-policy"))

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return contracts.NewRetryableError("503", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	_ = policy.Guard(context.Background(), func(ctx context.Context) error {
		calls++
		return contracts.NewRetryableError("503", nil)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, registry.States()["compute-test-policy"])
	assert.Same(t, registry.GetOrCreate("compute-test-policy"), policy.GetCircuitBreaker())
}
