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

package util

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig configures exponential backoff
type BackoffConfig struct {
	// InitialDelay is the initial delay duration
	InitialDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier
	Multiplier float64
	// Jitter adds randomness to prevent thundering herd
	Jitter bool
}

// DefaultBackoffConfig returns sensible defaults for backoff
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// CalculateBackoff calculates the backoff delay for the given attempt
func CalculateBackoff(config BackoffConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		// Add up to 10% jitter
		jitter := delay * 0.1 * rand.Float64()
		delay += jitter
	}

	return time.Duration(delay)
}

// IsRetryableAfter returns true if the operation should be retried after the given duration
func IsRetryableAfter(attempt int, maxAttempts int, config BackoffConfig) (bool, time.Duration) {
	if maxAttempts > 0 && attempt >= maxAttempts {
		return false, 0
	}

	return true, CalculateBackoff(config, attempt)
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollBudget bounds a sleep based poll loop with a fixed counter.
// Each miss sleeps Interval and adds Step to the counter; no further check
// happens once the counter reaches Limit.
type PollBudget struct {
	// Limit is the counter value at which the loop gives up
	Limit int
	// Step is added to the counter after each sleep
	Step int
	// Interval is the sleep between two checks
	Interval time.Duration
}

// Attempts returns the number of checks the budget allows
func (b PollBudget) Attempts() int {
	if b.Step <= 0 {
		return 1
	}
	return (b.Limit + b.Step - 1) / b.Step
}

// PollOutcome reports how a bounded poll loop ended
type PollOutcome int

const (
	// PollSatisfied means the condition became true
	PollSatisfied PollOutcome = iota
	// PollExhausted means the budget ran out
	PollExhausted
	// PollAborted means the condition returned an error or ctx was cancelled
	PollAborted
)

// String returns string representation of the outcome
func (o PollOutcome) String() string {
	switch o {
	case PollSatisfied:
		return "satisfied"
	case PollExhausted:
		return "exhausted"
	default:
		return "aborted"
	}
}

// PollUntil checks cond until it reports true or the budget is spent
func PollUntil(ctx context.Context, budget PollBudget, sleep SleepFunc, cond func(ctx context.Context) (bool, error)) (PollOutcome, error) {
	if sleep == nil {
		sleep = Sleep
	}
	for i := 0; i < budget.Attempts(); i++ {
		ok, err := cond(ctx)
		if err != nil {
			return PollAborted, err
		}
		if ok {
			return PollSatisfied, nil
		}
		if err := sleep(ctx, budget.Interval); err != nil {
			return PollAborted, err
		}
	}
	return PollExhausted, nil
}
