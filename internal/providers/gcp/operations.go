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
	"fmt"
	"path"
	"strings"
	"time"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/metrics"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/tracing"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

// Locality is the scope an operation must be polled in
type Locality string

const (
	// LocalityZonal operations live under a zone
	LocalityZonal Locality = "zonal"
	// LocalityRegional operations live under a region
	LocalityRegional Locality = "regional"
	// LocalityGlobal operations live at project level
	LocalityGlobal Locality = "global"
)

// WaitOutcome tags how a wait ended
type WaitOutcome string

const (
	// WaitDone means the backend reported the operation DONE
	WaitDone WaitOutcome = "done"
	// WaitDoneWithErrors means the operation finished but carried an error payload
	WaitDoneWithErrors WaitOutcome = "done-with-errors"
	// WaitTimedOut means the poll budget ran out before DONE
	WaitTimedOut WaitOutcome = "timed-out"
	// WaitCancelled means the context ended the wait
	WaitCancelled WaitOutcome = "cancelled"
	// WaitPollFailed means fetching the operation itself failed
	WaitPollFailed WaitOutcome = "poll-failed"
)

const operationDone = "DONE"

// WaitResult reports the end state of a wait
type WaitResult struct {
	// Outcome tags the end state
	Outcome WaitOutcome
	// Locality is the scope the operation was polled in
	Locality Locality
	// Polls counts the operation fetches
	Polls int
	// Errors holds the distinct backend error messages seen while polling
	Errors []string
	// Cause is the poll or context error, if any
	Cause error
}

// Err converts a non clean outcome into an error
func (r WaitResult) Err() error {
	switch r.Outcome {
	case WaitDone:
		return nil
	case WaitDoneWithErrors:
		return contracts.NewBackendError(strings.Join(r.Errors, "; "), nil)
	case WaitTimedOut:
		return contracts.NewTimeoutError(fmt.Sprintf("operation still pending after %d polls", r.Polls), nil)
	case WaitCancelled:
		return contracts.NewTimeoutError("wait cancelled", r.Cause)
	default:
		return classify(r.Cause)
	}
}

// Waiter polls a backend operation to a terminal state within a fixed budget
type Waiter struct {
	compute     ComputeAPI
	project     string
	zone        string
	region      string
	interval    time.Duration
	maxAttempts int
	sleep       util.SleepFunc
}

// NewWaiter creates a waiter; a nil sleep uses real time
func NewWaiter(api ComputeAPI, project, zone, region string, cfg config.WaiterConfig, sleep util.SleepFunc) *Waiter {
	if sleep == nil {
		sleep = util.Sleep
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	return &Waiter{
		compute:     api,
		project:     project,
		zone:        zone,
		region:      region,
		interval:    cfg.PollInterval,
		maxAttempts: cfg.MaxAttempts,
		sleep:       sleep,
	}
}

// LocalityOf derives the polling scope of an operation from its selfLink
func LocalityOf(op *compute.Operation) Locality {
	switch {
	case strings.Contains(op.SelfLink, "/zones/"):
		return LocalityZonal
	case strings.Contains(op.SelfLink, "/regions/"):
		return LocalityRegional
	case op.SelfLink == "" && op.Zone != "":
		return LocalityZonal
	case op.SelfLink == "" && op.Region != "":
		return LocalityRegional
	default:
		return LocalityGlobal
	}
}

// Wait blocks until op is DONE, the budget of maxAttempts sleeps is spent, or ctx ends.
// Error payloads are logged and collected but never fail the wait.
func (w *Waiter) Wait(ctx context.Context, op *compute.Operation) WaitResult {
	if op == nil {
		return WaitResult{Outcome: WaitDone, Locality: LocalityGlobal}
	}

	locality := LocalityOf(op)
	ctx, span := tracing.StartWaitSpan(ctx, string(locality), op.Name)
	defer span.End()
	log := logging.FromContext(ctx).WithValues("operation", op.Name, "locality", locality)

	result := WaitResult{Locality: locality}
	seen := map[string]bool{}
	sleeps := 0
	for {
		current, err := w.poll(ctx, locality, op)
		result.Polls++
		if err != nil {
			result.Outcome = WaitPollFailed
			result.Cause = err
			break
		}
		for _, msg := range operationErrors(current) {
			log.Error(nil, "backend operation reported an error",
				"httpError", current.HttpErrorStatusCode, "code", msg.code, "message", msg.message)
			text := msg.String()
			if !seen[text] {
				seen[text] = true
				result.Errors = append(result.Errors, text)
			}
		}
		if current.Status == operationDone {
			result.Outcome = WaitDone
			if len(result.Errors) > 0 {
				result.Outcome = WaitDoneWithErrors
			}
			break
		}
		if sleeps >= w.maxAttempts {
			result.Outcome = WaitTimedOut
			log.Info("gave up waiting for operation", "warning", "timeout", "polls", result.Polls)
			break
		}
		if err := w.sleep(ctx, w.interval); err != nil {
			result.Outcome = WaitCancelled
			result.Cause = err
			break
		}
		sleeps++
	}

	metrics.RecordWait(string(locality), string(result.Outcome), result.Polls)
	span.SetAttributes(tracing.AttrPolls.Int(result.Polls), tracing.AttrOutcome.String(string(result.Outcome)))
	return result
}

func (w *Waiter) poll(ctx context.Context, locality Locality, op *compute.Operation) (*compute.Operation, error) {
	switch locality {
	case LocalityZonal:
		return w.compute.GetZoneOperation(ctx, w.project, scopeName(op.Zone, w.zone), op.Name)
	case LocalityRegional:
		return w.compute.GetRegionOperation(ctx, w.project, scopeName(op.Region, w.region), op.Name)
	default:
		return w.compute.GetGlobalOperation(ctx, w.project, op.Name)
	}
}

// scopeName returns the last path element of a zone or region URL, or fallback when empty
func scopeName(url, fallback string) string {
	if url == "" {
		return fallback
	}
	return path.Base(url)
}

type operationError struct {
	code    string
	message string
}

func (e operationError) String() string {
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

func operationErrors(op *compute.Operation) []operationError {
	var out []operationError
	if op.Error != nil {
		for _, e := range op.Error.Errors {
			if e == nil {
				continue
			}
			out = append(out, operationError{code: e.Code, message: e.Message})
		}
	}
	if len(out) == 0 && op.HttpErrorMessage != "" {
		out = append(out, operationError{
			code:    fmt.Sprintf("%d", op.HttpErrorStatusCode),
			message: op.HttpErrorMessage,
		})
	}
	return out
}
