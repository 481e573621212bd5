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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("GCP_PROJECT", "kvirt-test")
	t.Setenv("GCP_ZONE", "")
	t.Setenv("WAITER_MAX_ATTEMPTS", "")

	cfg := DefaultConfig()
	assert.Equal(t, "kvirt-test", cfg.GCP.Project)
	assert.Equal(t, "europe-west1-b", cfg.GCP.Zone)
	assert.Equal(t, "europe-west1", cfg.GCP.Region)
	assert.True(t, cfg.GCP.Public)
	assert.Equal(t, time.Second, cfg.Waiter.PollInterval)
	assert.Equal(t, 60, cfg.Waiter.MaxAttempts)
	assert.Equal(t, PollBudgetConfig{Limit: 65, Step: 5, Interval: 5 * time.Second}, cfg.Polling.DiskReady)
	assert.Equal(t, PollBudgetConfig{Limit: 100, Step: 10, Interval: 5 * time.Second}, cfg.Polling.Address)
	assert.Equal(t, PollBudgetConfig{Limit: 60, Step: 5, Interval: 5 * time.Second}, cfg.Polling.ForwardingRuleGone)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GCP_PUBLIC", "false")
	t.Setenv("WAITER_POLL_INTERVAL", "250ms")
	t.Setenv("WAITER_MAX_ATTEMPTS", "not-a-number")

	cfg := DefaultConfig()
	assert.False(t, cfg.GCP.Public)
	assert.Equal(t, 250*time.Millisecond, cfg.Waiter.PollInterval)
	assert.Equal(t, 60, cfg.Waiter.MaxAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing project",
			mutate:  func(c *Config) { c.GCP.Project = "" },
			wantErr: "gcp.project is required",
		},
		{
			name:    "zone outside region",
			mutate:  func(c *Config) { c.GCP.Zone = "us-east1-b" },
			wantErr: "gcp.zone us-east1-b is not in region europe-west1",
		},
		{
			name:    "no waiter attempts",
			mutate:  func(c *Config) { c.Waiter.MaxAttempts = 0 },
			wantErr: "waiter.maxAttempts must be positive",
		},
		{
			name: "events without url",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.NATSURL = ""
			},
			wantErr: "events.natsURL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.GCP.Project = "kvirt"
			cfg.GCP.Zone = "europe-west1-b"
			cfg.GCP.Region = "europe-west1"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewManager_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	data := `
gcp:
  project: from-file
  zone: us-central1-a
  region: us-central1
waiter:
  pollInterval: 2s
polling:
  address:
    limit: 50
    step: 10
    interval: 1s
events:
  enabled: true
  subjectPrefix: lab.gcp
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o600))

	m, err := NewManager(file)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	cfg := m.Get()
	assert.Equal(t, "from-file", cfg.GCP.Project)
	assert.Equal(t, "us-central1-a", cfg.GCP.Zone)
	assert.Equal(t, 2*time.Second, cfg.Waiter.PollInterval)
	assert.Equal(t, 60, cfg.Waiter.MaxAttempts)
	assert.Equal(t, 5, cfg.Polling.Address.Limit/cfg.Polling.Address.Step)
	assert.Equal(t, time.Second, cfg.Polling.Address.Interval)
	assert.Equal(t, 65, cfg.Polling.DiskReady.Limit)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "lab.gcp", cfg.Events.SubjectPrefix)
}

func TestNewManager_BadFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestManager_WatchAndUpdate(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	ch := m.Watch()
	first := <-ch
	assert.Same(t, m.Get(), first)

	next := DefaultConfig()
	next.GCP.Project = "updated"
	m.Update(next)

	got := <-ch
	assert.Equal(t, "updated", got.GCP.Project)
	assert.Equal(t, "updated", m.Get().GCP.Project)

	require.NoError(t, m.Close())
	_, open := <-ch
	assert.False(t, open)
}
