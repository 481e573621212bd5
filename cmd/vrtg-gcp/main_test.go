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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
	"github.com/projectbeskar/virtrigaud-gcp/internal/version"
)

func clearLocationEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GCP_PROJECT", "GCP_ZONE", "GCP_REGION", "VIRTRIGAUD_TRACING_ENABLED", "EVENTS_ENABLED"} {
		t.Setenv(key, "")
	}
}

// execute runs the CLI against a fresh in-memory backend
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	clearLocationEnv(t)
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append([]string{"--fake"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestFlavorInfo(t *testing.T) {
	out, err := execute(t, "flavor", "info", "e2-small")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `e2-small\s+2\s+2048`, out)
}

func TestImageListJSON(t *testing.T) {
	out, err := execute(t, "-o", "json", "image", "list")
	require.NoError(t, err)

	var images []string
	require.NoError(t, json.Unmarshal([]byte(out), &images))
	assert.Contains(t, images, "debian-12")
	assert.Contains(t, images, "ubuntu-2204-lts")
}

func TestNetworkListYAML(t *testing.T) {
	out, err := execute(t, "-o", "yaml", "network", "list")
	require.NoError(t, err)

	var networks map[string]contracts.NetworkInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &networks))
	require.Contains(t, networks, "default")
	assert.Equal(t, "auto", networks["default"].Mode)
	assert.Equal(t, fakeProject, networks["default"].Project)
}

func TestVMCreate(t *testing.T) {
	out, err := execute(t, "vm", "create", "vm1", "--cpus", "4", "--memory", "4096", "--public=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Result:")
	assert.Contains(t, out, "success")
}

func TestFailuresReturnTheReason(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing vm", []string{"vm", "info", "ghost"}, "VM ghost not found"},
		{"odd cpus", []string{"vm", "create", "vm1", "--cpus", "3"}, "Number of cpus is not even"},
		{"lb without members", []string{"lb", "create", "web"}, "Creating a load balancer requires to specify some vms"},
		{"resize without target", []string{"vm", "resize", "vm1"}, "one of --flavor, --memory or --cpus is required"},
		{"missing bucket", []string{"bucket", "files", "nope"}, "Inexistent bucket nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestUnsupportedOutput(t *testing.T) {
	_, err := execute(t, "-o", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported output format "xml"`)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
	assert.Contains(t, out, "Git Sha:")
}

func TestBucketURL(t *testing.T) {
	out, err := execute(t, "bucket", "url", "mybucket", "iso/boot.iso")
	require.NoError(t, err)
	assert.Contains(t, out, "/mybucket/iso/boot.iso")
}

func setupFake(t *testing.T) *rootOptions {
	t.Helper()
	clearLocationEnv(t)
	opts := &rootOptions{out: &bytes.Buffer{}, output: outputTable, timeout: time.Minute, fake: true}
	require.NoError(t, opts.setup(context.Background()))
	t.Cleanup(func() { _ = opts.teardown() })
	return opts
}

func TestReload(t *testing.T) {
	opts := setupFake(t)
	breaker := opts.breakers.GetOrCreate("compute")
	for i := 0; i < 10; i++ {
		_ = breaker.Call(context.Background(), func(context.Context) error {
			return contracts.NewRetryableError("backend unavailable", nil)
		})
	}
	require.Equal(t, resilience.StateOpen, breaker.GetState())

	next := config.DefaultConfig()
	next.GCP.Region = "europe-west4"
	next.GCP.Zone = "europe-west4-a"
	require.NoError(t, opts.reload(next))
	assert.Equal(t, "europe-west4-a", opts.config().GCP.Zone)
	assert.Equal(t, fakeProject, opts.config().GCP.Project)
	assert.Equal(t, resilience.StateClosed, breaker.GetState())

	bad := config.DefaultConfig()
	bad.GCP.Zone = "us-east1-b"
	require.Error(t, opts.reload(bad))
	assert.Equal(t, "europe-west4-a", opts.config().GCP.Zone)
}

func TestRouter(t *testing.T) {
	opts := setupFake(t)

	router := opts.router()
	for _, path := range []string{"/healthz", "/readyz", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
