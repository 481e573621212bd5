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

package contracts

import (
	"fmt"
)

// ResultStatus tags the outcome of a mutating operation
type ResultStatus string

const (
	// ResultSuccess indicates the operation completed
	ResultSuccess ResultStatus = "success"
	// ResultFailure indicates the operation failed; Reason explains why
	ResultFailure ResultStatus = "failure"
)

// Result is the return value of every mutating provider operation
type Result struct {
	// Status tags success or failure
	Status ResultStatus `json:"result"`
	// Reason is a human readable explanation, set on failure
	Reason string `json:"reason,omitempty"`
	// Kind categorizes a failure
	Kind ErrorType `json:"kind,omitempty"`
	// Details carries operation specific output (for example an allocated ip)
	Details map[string]string `json:"details,omitempty"`
	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Success returns a success result
func Success() Result {
	return Result{Status: ResultSuccess}
}

// SuccessWith returns a success result carrying a single detail
func SuccessWith(key, value string) Result {
	return Success().With(key, value)
}

// Failure returns a failure result with the given reason
func Failure(kind ErrorType, format string, args ...interface{}) Result {
	return Result{
		Status: ResultFailure,
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// ResultFrom converts an error into a result; nil yields success
func ResultFrom(err error) Result {
	if err == nil {
		return Success()
	}
	if pe, ok := AsProviderError(err); ok {
		return Result{
			Status: ResultFailure,
			Kind:   pe.Type,
			Reason: pe.Reason(),
			Cause:  err,
		}
	}
	return Result{
		Status: ResultFailure,
		Kind:   ErrorTypeBackend,
		Reason: err.Error(),
		Cause:  err,
	}
}

// With returns a copy of the result with an added detail
func (r Result) With(key, value string) Result {
	details := make(map[string]string, len(r.Details)+1)
	for k, v := range r.Details {
		details[k] = v
	}
	details[key] = value
	r.Details = details
	return r
}

// OK reports whether the result is a success
func (r Result) OK() bool {
	return r.Status == ResultSuccess
}

// Err returns nil on success or an error describing the failure
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	if r.Cause != nil {
		if pe, ok := AsProviderError(r.Cause); ok {
			return pe
		}
	}
	kind := r.Kind
	if kind == "" {
		kind = ErrorTypeBackend
	}
	return &ProviderError{Type: kind, Message: r.Reason, Cause: r.Cause}
}

// String renders the result the way the CLI prints it
func (r Result) String() string {
	if r.OK() {
		return string(r.Status)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Reason)
}
