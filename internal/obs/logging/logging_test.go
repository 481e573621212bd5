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

package logging

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_AddsCorrelationFields(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})

	ctx := IntoContext(context.Background(), logger)
	ctx = WithCorrelationID(ctx, "abc-123")
	ctx = WithOperation(ctx, "create", "web-1")
	ctx = WithLocation(ctx, "my-project", "europe-west1-b")

	FromContext(ctx).Info("creating vm")

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"correlationID"="abc-123"`)
	assert.Contains(t, lines[0], `"operation"="create"`)
	assert.Contains(t, lines[0], `"resource"="web-1"`)
	assert.Contains(t, lines[0], `"zone"="europe-west1-b"`)
	assert.Equal(t, "abc-123", CorrelationID(ctx))
}

func TestFromContext_FallsBackToBaseLogger(t *testing.T) {
	var lines []string
	SetLogger(funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{}))
	defer SetLogger(logr.Discard())

	FromContext(context.Background()).Info("hello")
	assert.Len(t, lines, 1)
}

func TestRedactMap(t *testing.T) {
	out := RedactMap(map[string]string{
		"ssh-keys":  "core:ssh-rsa AAAA",
		"user-data": "#cloud-config",
		"plan":      "kvirt",
	})

	assert.Equal(t, "[REDACTED]", out["ssh-keys"])
	assert.Equal(t, "[REDACTED]", out["user-data"])
	assert.Equal(t, "kvirt", out["plan"])
}

func TestSetup(t *testing.T) {
	logger, err := Setup(&Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.V(1).Enabled())
	SetLogger(logr.Discard())
}
