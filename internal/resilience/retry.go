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
	"time"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts
	BaseDelay   time.Duration // Base delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
	Multiplier  float64       // Backoff multiplier
	Jitter      bool          // Whether to add jitter to delays
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NoRetryConfig returns a configuration with no retries
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 1,
		Multiplier:  1.0,
	}
}

func (c *RetryConfig) backoff() util.BackoffConfig {
	return util.BackoffConfig{
		InitialDelay: c.BaseDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
		Jitter:       c.Jitter,
	}
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	return err != nil && contracts.IsRetryable(err)
}

// RetryFunc represents a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, config *RetryConfig, fn RetryFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Don't delay after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		_, delay := util.IsRetryableAfter(attempt, config.MaxAttempts, config.backoff())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// Policy combines retry and circuit breaker policies
type Policy struct {
	retryConfig    *RetryConfig
	circuitBreaker *CircuitBreaker
	name           string
}

// NewPolicy creates a new resilience policy
func NewPolicy(name string, retryConfig *RetryConfig, circuitBreaker *CircuitBreaker) *Policy {
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
	}

	return &Policy{
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		name:           name,
	}
}

// Execute executes a function with the full resilience policy
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return Retry(ctx, p.retryConfig, func(ctx context.Context, attempt int) error {
		if p.circuitBreaker != nil {
			return p.circuitBreaker.Call(ctx, fn)
		}
		return fn(ctx)
	})
}

// Guard executes fn through the circuit breaker only, without retries
func (p *Policy) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.circuitBreaker != nil {
		return p.circuitBreaker.Call(ctx, fn)
	}
	return fn(ctx)
}

// Name returns the policy name
func (p *Policy) Name() string {
	return p.name
}

// GetCircuitBreaker returns the circuit breaker
func (p *Policy) GetCircuitBreaker() *CircuitBreaker {
	return p.circuitBreaker
}
