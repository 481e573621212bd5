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

package gcp

import (
	"context"
	"strconv"
	"time"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/metrics"
	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
)

// caller runs SDK calls for one backend service through its resilience policy.
// Reads are retried; mutations only pass the circuit breaker since they are not idempotent.
type caller struct {
	policy  *resilience.Policy
	metrics *metrics.BackendCallMetrics
}

func newCaller(service string, policy *resilience.Policy) caller {
	if policy == nil {
		policy = resilience.NewPolicy(service, resilience.NoRetryConfig(), nil)
	}
	return caller{policy: policy, metrics: metrics.NewBackendCallMetrics(service)}
}

func (c caller) record(method string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = "error"
		if status := apiCode(err); status != 0 {
			code = strconv.Itoa(status)
		}
	}
	c.metrics.RecordCall(method, code, time.Since(start))
}

func callRead[T any](ctx context.Context, c caller, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	start := time.Now()
	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return classify(err)
		}
		out = v
		return nil
	})
	c.record(method, start, err)
	return out, err
}

func callMutate[T any](ctx context.Context, c caller, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	start := time.Now()
	err := c.policy.Guard(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return classify(err)
		}
		out = v
		return nil
	})
	c.record(method, start, err)
	return out, err
}
