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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Routes(t *testing.T) {
	hc := NewHealthChecker(time.Minute)
	hc.RegisterCheck("gcp", func(ctx context.Context) error { return nil })

	router := mux.NewRouter()
	hc.Routes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status OverallStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, 1, status.Summary[StatusHealthy])
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	hc := NewHealthChecker(time.Minute)
	hc.RegisterCheck("events", FunctionCheck(func() error { return errors.New("nats disconnected") }))

	rec := httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	result := hc.RunCheck(context.Background(), "events")
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "nats disconnected", result.Message)

	assert.Equal(t, StatusUnknown, hc.RunCheck(context.Background(), "missing").Status)
}

func TestHealthChecker_CachesResults(t *testing.T) {
	hc := NewHealthChecker(time.Minute)
	calls := 0
	hc.RegisterCheck("gcp", func(ctx context.Context) error {
		calls++
		return nil
	})

	hc.RunCheck(context.Background(), "gcp")
	hc.RunCheck(context.Background(), "gcp")
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerCheck(t *testing.T) {
	check := CircuitBreakerCheck(func() map[string]string {
		return map[string]string{"compute": "open", "dns": "closed", "storage": "open"}
	})
	err := check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "circuit open for compute, storage", err.Error())

	check = CircuitBreakerCheck(func() map[string]string { return map[string]string{"compute": "closed"} })
	assert.NoError(t, check(context.Background()))
}
