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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingSleep(calls *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*calls = append(*calls, d)
		return nil
	}
}

func TestPollBudget_Attempts(t *testing.T) {
	assert.Equal(t, 13, PollBudget{Limit: 65, Step: 5}.Attempts())
	assert.Equal(t, 10, PollBudget{Limit: 100, Step: 10}.Attempts())
	assert.Equal(t, 12, PollBudget{Limit: 60, Step: 5}.Attempts())
	assert.Equal(t, 1, PollBudget{Limit: 60}.Attempts())
}

func TestPollUntil_Exhausted(t *testing.T) {
	var sleeps []time.Duration
	checks := 0
	budget := PollBudget{Limit: 100, Step: 10, Interval: 5 * time.Second}

	outcome, err := PollUntil(context.Background(), budget, countingSleep(&sleeps), func(ctx context.Context) (bool, error) {
		checks++
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, PollExhausted, outcome)
	assert.Equal(t, 10, checks)
	assert.Len(t, sleeps, 10)
	assert.Equal(t, 5*time.Second, sleeps[0])
}

func TestPollUntil_Satisfied(t *testing.T) {
	var sleeps []time.Duration
	checks := 0

	outcome, err := PollUntil(context.Background(), PollBudget{Limit: 60, Step: 5, Interval: time.Second}, countingSleep(&sleeps), func(ctx context.Context) (bool, error) {
		checks++
		return checks == 3, nil
	})

	require.NoError(t, err)
	assert.Equal(t, PollSatisfied, outcome)
	assert.Equal(t, 3, checks)
	assert.Len(t, sleeps, 2)
}

func TestPollUntil_Aborted(t *testing.T) {
	boom := errors.New("boom")
	outcome, err := PollUntil(context.Background(), PollBudget{Limit: 60, Step: 5}, countingSleep(new([]time.Duration)), func(ctx context.Context) (bool, error) {
		return false, boom
	})
	assert.Equal(t, PollAborted, outcome)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err = PollUntil(ctx, PollBudget{Limit: 60, Step: 5, Interval: time.Hour}, Sleep, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.Equal(t, PollAborted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, CalculateBackoff(cfg, 0))
	assert.Equal(t, 4*time.Second, CalculateBackoff(cfg, 2))
	assert.Equal(t, 10*time.Second, CalculateBackoff(cfg, 10))

	ok, _ := IsRetryableAfter(3, 3, cfg)
	assert.False(t, ok)
}
