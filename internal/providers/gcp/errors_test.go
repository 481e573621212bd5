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
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want contracts.ErrorType
	}{
		{name: "not found", err: &googleapi.Error{Code: 404}, want: contracts.ErrorTypeNotFound},
		{name: "conflict", err: &googleapi.Error{Code: 409}, want: contracts.ErrorTypeAlreadyExists},
		{name: "fingerprint", err: &googleapi.Error{Code: 412}, want: contracts.ErrorTypePrecondition},
		{name: "unauthenticated", err: &googleapi.Error{Code: 401}, want: contracts.ErrorTypeUnauthorized},
		{name: "forbidden", err: &googleapi.Error{Code: 403}, want: contracts.ErrorTypeUnauthorized},
		{name: "rate limited", err: &googleapi.Error{Code: 429}, want: contracts.ErrorTypeRetryable},
		{name: "server error", err: &googleapi.Error{Code: 503}, want: contracts.ErrorTypeRetryable},
		{name: "bad request", err: &googleapi.Error{Code: 400}, want: contracts.ErrorTypeInvalidSpec},
		{name: "wrapped", err: fmt.Errorf("listing: %w", &googleapi.Error{Code: 404}), want: contracts.ErrorTypeNotFound},
		{name: "missing bucket", err: storage.ErrBucketNotExist, want: contracts.ErrorTypeNotFound},
		{name: "missing object", err: storage.ErrObjectNotExist, want: contracts.ErrorTypeNotFound},
		{name: "plain error", err: errors.New("connection reset"), want: contracts.ErrorTypeBackend},
		{name: "already categorized", err: contracts.NewTimeoutError("slow", nil), want: contracts.ErrorTypeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, contracts.IsType(classify(tt.err), tt.want))
		})
	}
	assert.NoError(t, classify(nil))
}

func TestClassify_KeepsBackendMessage(t *testing.T) {
	err := classify(&googleapi.Error{Code: 400, Message: "Invalid value for field 'resource.name'"})
	assert.Contains(t, err.Error(), "Invalid value for field 'resource.name'")

	err = classify(&googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "invalid", Message: "bad zone"}}})
	assert.Contains(t, err.Error(), "bad zone")

	err = classify(&googleapi.Error{Code: 400})
	assert.Contains(t, err.Error(), "backend returned HTTP 400")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: 404}))
	assert.True(t, isNotFound(contracts.NewNotFoundError("gone", nil)))
	assert.False(t, isNotFound(&googleapi.Error{Code: 400}))
	assert.Equal(t, 412, apiCode(fmt.Errorf("x: %w", &googleapi.Error{Code: 412})))
	assert.Zero(t, apiCode(errors.New("x")))
}
