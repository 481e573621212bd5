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

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/tracing"
)

// step is one backend mutation of a composite operation.
// cleanup undoes run and must be idempotent.
type step struct {
	name    string
	run     func(ctx context.Context) error
	cleanup func(ctx context.Context) error
}

// steps executes in order with no automatic rollback
type steps []step

// StepReport describes how far a composite operation got
type StepReport struct {
	// Completed lists the steps that ran successfully, in order
	Completed []string
	// Failed names the step that stopped the run
	Failed string
	// Err is the error of the failed step
	Err error
}

// OK reports whether every step completed
func (r StepReport) OK() bool {
	return r.Err == nil
}

// Run executes each step sequentially and stops at the first failure
func (s steps) Run(ctx context.Context) StepReport {
	report := StepReport{}
	for _, st := range s {
		if st.run == nil {
			continue
		}
		stepCtx, span := tracing.StartStepSpan(ctx, st.name)
		err := st.run(stepCtx)
		if err != nil {
			tracing.RecordError(stepCtx, err)
		}
		span.End()
		if err != nil {
			report.Failed = st.name
			report.Err = err
			logging.FromContext(ctx).V(1).Info("step failed", "step", st.name, "completed", report.Completed)
			return report
		}
		report.Completed = append(report.Completed, st.name)
	}
	return report
}

// Cleanup runs every cleanup handler in reverse order.
// Missing resources count as cleaned; other failures are logged and returned by step name.
func (s steps) Cleanup(ctx context.Context) []string {
	log := logging.FromContext(ctx)
	var failed []string
	for i := len(s) - 1; i >= 0; i-- {
		st := s[i]
		if st.cleanup == nil {
			continue
		}
		stepCtx, span := tracing.StartStepSpan(ctx, "cleanup."+st.name)
		err := st.cleanup(stepCtx)
		span.End()
		if err == nil || isNotFound(err) {
			continue
		}
		log.Error(err, "cleanup step failed", "step", st.name)
		failed = append(failed, st.name)
	}
	return failed
}
