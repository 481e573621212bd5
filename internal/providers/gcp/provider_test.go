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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/events"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
)

const (
	testProject = "myproject"
	testZone    = "europe-west1-b"
	testRegion  = "europe-west1"
	testKey     = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAItest jdoe@laptop"
)

type staticKey string

func (k staticKey) PublicKey() (string, error) { return string(k), nil }

// sleepRecorder counts sleeps instead of blocking
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sleeps {
		if v == d {
			n++
		}
	}
	return n
}

type testEnv struct {
	provider *Provider
	cloud    *gcpfake.Cloud
	sleeper  *sleepRecorder
	events   *events.Recorder
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.GCP.Project = testProject
	cfg.GCP.Zone = testZone
	cfg.GCP.Region = testRegion
	cfg.GCP.Public = true
	cfg.Waiter = config.WaiterConfig{PollInterval: time.Second, MaxAttempts: 60}
	return cfg
}

func newTestEnvWith(t *testing.T, cloud *gcpfake.Cloud, cfg *config.Config) *testEnv {
	t.Helper()
	env := &testEnv{cloud: cloud, sleeper: &sleepRecorder{}, events: &events.Recorder{}}
	p, err := New(context.Background(), cfg, Options{
		Compute:  cloud,
		DNS:      cloud,
		Storage:  cloud,
		UserData: userdata.NewGenerator(),
		Keys:     staticKey(testKey),
		Events:   env.events,
		Sleep:    env.sleeper.sleep,
	})
	require.NoError(t, err)
	env.provider = p
	return env
}

func newTestEnv(t *testing.T, fakeCfg gcpfake.Config) *testEnv {
	t.Helper()
	return newTestEnvWith(t, gcpfake.NewSeeded(fakeCfg, testProject, testRegion), testConfig())
}

func TestNew_RequiresClients(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Options{})
	require.Error(t, err)
	assert.True(t, contracts.IsType(err, contracts.ErrorTypeInvalidSpec))

	_, err = New(context.Background(), nil, Options{})
	require.Error(t, err)
}

func TestNew_ResolvesSharedProject(t *testing.T) {
	cloud := gcpfake.NewSeeded(gcpfake.Config{}, testProject, testRegion)
	cloud.SetXpnHost(testProject, "hostproject")

	env := newTestEnvWith(t, cloud, testConfig())
	assert.Equal(t, "hostproject", env.provider.SharedProject())
}

func TestValidate_RefreshesSharedProject(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	assert.Empty(t, env.provider.SharedProject())

	env.cloud.SetXpnHost(testProject, "hostproject")
	require.NoError(t, env.provider.Validate(context.Background()))
	assert.Equal(t, "hostproject", env.provider.SharedProject())

	env.cloud.InjectError("GetXpnHost", &googleapi.Error{Code: 403, Message: "forbidden"})
	err := env.provider.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, contracts.IsType(err, contracts.ErrorTypeUnauthorized))
}

func TestInfoHost(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	require.True(t, env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1"}).OK())

	info, err := env.provider.InfoHost(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.HostInfo{Project: testProject, Zone: testZone, Region: testRegion, VMCount: 1}, info)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()

	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1"}).OK())
	res := env.provider.Delete(ctx, "missing")
	require.False(t, res.OK())

	evts := env.events.Events()
	require.Len(t, evts, 2)
	assert.Equal(t, "create", evts[0].Operation)
	assert.Equal(t, "vm1", evts[0].Resource)
	assert.Equal(t, "success", evts[0].Outcome)
	assert.NotEmpty(t, evts[0].CorrelationID)
	assert.Equal(t, "failure", evts[1].Outcome)
	assert.Equal(t, "VM missing not found", evts[1].Reason)
	assert.NotEqual(t, evts[0].CorrelationID, evts[1].CorrelationID)
}

func TestRun_RecoversPanics(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	res := env.provider.run(context.Background(), "boom", "vm1", func(ctx context.Context) contracts.Result {
		panic("unexpected")
	})
	require.False(t, res.OK())
	assert.Equal(t, contracts.ErrorTypeInternal, res.Kind)
	assert.Contains(t, res.Reason, "unexpected")
}
