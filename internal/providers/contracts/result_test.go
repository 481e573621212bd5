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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFrom(t *testing.T) {
	assert.True(t, ResultFrom(nil).OK())

	r := ResultFrom(NewNotFoundError("VM web not found", nil))
	assert.False(t, r.OK())
	assert.Equal(t, ErrorTypeNotFound, r.Kind)
	assert.Equal(t, "VM web not found", r.Reason)

	wrapped := fmt.Errorf("failed to delete: %w", NewPreconditionError("VM web up", nil))
	r = ResultFrom(wrapped)
	assert.Equal(t, ErrorTypePrecondition, r.Kind)
	assert.Equal(t, "VM web up", r.Reason)

	r = ResultFrom(errors.New("boom"))
	assert.Equal(t, ErrorTypeBackend, r.Kind)
	assert.Equal(t, "boom", r.Reason)
}

func TestResult_Err(t *testing.T) {
	require.NoError(t, Success().Err())

	err := Failure(ErrorTypeInvalidSpec, "Invalid Cidr %s", "10.0.0").Err()
	require.Error(t, err)
	assert.True(t, IsType(err, ErrorTypeInvalidSpec))
	assert.Equal(t, "InvalidSpec: Invalid Cidr 10.0.0", err.Error())
}

func TestResult_With(t *testing.T) {
	r := SuccessWith("ip", "10.0.0.1")
	r2 := r.With("name", "lb")

	assert.Equal(t, map[string]string{"ip": "10.0.0.1"}, r.Details)
	assert.Equal(t, map[string]string{"ip": "10.0.0.1", "name": "lb"}, r2.Details)
	assert.Equal(t, "success", r2.String())
	assert.Equal(t, "failure: nope", Failure(ErrorTypeBackend, "nope").String())
}

func TestProviderError_Classification(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError("slow down", nil)))
	assert.True(t, IsRetryable(NewUnavailableError("circuit open", nil)))
	assert.False(t, IsRetryable(NewNotFoundError("gone", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))

	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", NewNotFoundError("gone", nil))))
	assert.True(t, IsAlreadyExists(NewAlreadyExistsError("dup", nil)))

	cause := errors.New("root")
	pe := NewBackendError("", cause)
	assert.Equal(t, "root", pe.Reason())
	assert.ErrorIs(t, pe, cause)
}
