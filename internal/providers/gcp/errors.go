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
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// classify maps a Google API error onto the provider error taxonomy.
// Errors that are already categorized pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := contracts.AsProviderError(err); ok {
		return err
	}
	if errors.Is(err, storage.ErrBucketNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		return contracts.NewNotFoundError(err.Error(), err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return contracts.NewBackendError(err.Error(), err)
	}

	message := apiMessage(gerr)
	switch code := gerr.Code; {
	case code == http.StatusNotFound:
		return contracts.NewNotFoundError(message, err)
	case code == http.StatusConflict:
		return contracts.NewAlreadyExistsError(message, err)
	case code == http.StatusPreconditionFailed:
		return contracts.NewPreconditionError(message, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return contracts.NewUnauthorizedError(message, err)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return contracts.NewRetryableError(message, err)
	case code >= http.StatusBadRequest:
		return contracts.NewInvalidSpecError(message, err)
	default:
		return contracts.NewBackendError(message, err)
	}
}

func apiMessage(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	if len(gerr.Errors) > 0 && gerr.Errors[0].Message != "" {
		return gerr.Errors[0].Message
	}
	return fmt.Sprintf("backend returned HTTP %d", gerr.Code)
}

// apiCode returns the HTTP status carried by err, or 0
func apiCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// isNotFound reports whether err means the resource is absent, before or after classification
func isNotFound(err error) bool {
	return contracts.IsNotFound(classify(err))
}
