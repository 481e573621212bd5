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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
)

func newTestWaiter(cloud *gcpfake.Cloud, sleeper *sleepRecorder) *Waiter {
	return NewWaiter(cloud, testProject, testZone, testRegion,
		config.WaiterConfig{PollInterval: time.Second, MaxAttempts: 60}, sleeper.sleep)
}

func insertTestDisk(t *testing.T, cloud *gcpfake.Cloud) *compute.Operation {
	t.Helper()
	op, err := cloud.InsertDisk(context.Background(), testProject, testZone, &compute.Disk{Name: "disk1", SizeGb: 10})
	require.NoError(t, err)
	return op
}

func TestWaiter_Done(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{OperationPolls: 3})
	sleeper := &sleepRecorder{}

	res := newTestWaiter(cloud, sleeper).Wait(context.Background(), insertTestDisk(t, cloud))

	assert.Equal(t, WaitDone, res.Outcome)
	assert.Equal(t, LocalityZonal, res.Locality)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 3, sleeper.count(time.Second))
	assert.NoError(t, res.Err())
}

func TestWaiter_TimesOutAfterBudget(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{OperationPolls: 100})
	sleeper := &sleepRecorder{}

	res := newTestWaiter(cloud, sleeper).Wait(context.Background(), insertTestDisk(t, cloud))

	assert.Equal(t, WaitTimedOut, res.Outcome)
	assert.Equal(t, 61, res.Polls)
	assert.Equal(t, 60, sleeper.count(time.Second))
	assert.True(t, contracts.IsType(res.Err(), contracts.ErrorTypeTimeout))
}

func TestWaiter_CollectsOperationErrors(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{OperationPolls: 2})
	cloud.InjectOperationError("InsertDisk", &compute.OperationError{
		Errors: []*compute.OperationErrorErrors{{Code: "QUOTA_EXCEEDED", Message: "Quota 'SSD_TOTAL_GB' exceeded"}},
	})

	res := newTestWaiter(cloud, &sleepRecorder{}).Wait(context.Background(), insertTestDisk(t, cloud))

	assert.Equal(t, WaitDoneWithErrors, res.Outcome)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, []string{"QUOTA_EXCEEDED: Quota 'SSD_TOTAL_GB' exceeded"}, res.Errors)
	assert.True(t, contracts.IsType(res.Err(), contracts.ErrorTypeBackend))
}

func TestWaiter_Cancelled(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{OperationPolls: 5})
	op := insertTestDisk(t, cloud)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestWaiter(cloud, &sleepRecorder{}).Wait(ctx, op)

	assert.Equal(t, WaitCancelled, res.Outcome)
	assert.Equal(t, 1, res.Polls)
	assert.ErrorIs(t, res.Cause, context.Canceled)
}

func TestWaiter_PollFailure(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{OperationPolls: 5})
	op := insertTestDisk(t, cloud)
	cloud.InjectError("GetZoneOperation", &googleapi.Error{Code: 503, Message: "backend unavailable"})

	res := newTestWaiter(cloud, &sleepRecorder{}).Wait(context.Background(), op)

	assert.Equal(t, WaitPollFailed, res.Outcome)
	assert.Equal(t, 1, res.Polls)
	assert.True(t, contracts.IsType(res.Err(), contracts.ErrorTypeRetryable))
}

func TestWaiter_NilOperation(t *testing.T) {
	cloud := gcpfake.New(gcpfake.Config{})
	res := newTestWaiter(cloud, &sleepRecorder{}).Wait(context.Background(), nil)
	assert.Equal(t, WaitDone, res.Outcome)
	assert.Zero(t, res.Polls)
	assert.Empty(t, cloud.Calls())
}

func TestWaiter_PollsInOperationScope(t *testing.T) {
	cloud := gcpfake.NewSeeded(gcpfake.Config{}, testProject, testRegion)
	waiter := newTestWaiter(cloud, &sleepRecorder{})
	ctx := context.Background()

	op, err := cloud.InsertFirewall(ctx, testProject, &compute.Firewall{Name: "fw1", Network: "global/networks/default"})
	require.NoError(t, err)
	assert.Equal(t, LocalityGlobal, waiter.Wait(ctx, op).Locality)

	op, err = cloud.InsertAddress(ctx, testProject, testRegion, &compute.Address{Name: "addr1"})
	require.NoError(t, err)
	assert.Equal(t, LocalityRegional, waiter.Wait(ctx, op).Locality)

	assert.Equal(t, 1, cloud.CallCount("GetGlobalOperation"))
	assert.Equal(t, 1, cloud.CallCount("GetRegionOperation"))
	assert.Zero(t, cloud.CallCount("GetZoneOperation"))
}

func TestLocalityOf(t *testing.T) {
	tests := []struct {
		name string
		op   *compute.Operation
		want Locality
	}{
		{
			name: "zonal self link",
			op:   &compute.Operation{SelfLink: computeURL + "/projects/p/zones/z/operations/op"},
			want: LocalityZonal,
		},
		{
			name: "regional self link",
			op:   &compute.Operation{SelfLink: computeURL + "/projects/p/regions/r/operations/op"},
			want: LocalityRegional,
		},
		{
			name: "global self link",
			op:   &compute.Operation{SelfLink: computeURL + "/projects/p/global/operations/op"},
			want: LocalityGlobal,
		},
		{
			name: "zone field only",
			op:   &compute.Operation{Zone: "z"},
			want: LocalityZonal,
		},
		{
			name: "region field only",
			op:   &compute.Operation{Region: "r"},
			want: LocalityRegional,
		},
		{
			name: "nothing",
			op:   &compute.Operation{},
			want: LocalityGlobal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalityOf(tt.op))
		})
	}
}

func TestApply_AnnotatesTimeouts(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{OperationPolls: 100})
	res := env.provider.Start(context.Background(), "missing")
	assert.Equal(t, contracts.ErrorTypeNotFound, res.Kind)

	require.True(t, env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1", Image: "debian-12"}).OK())
	res = env.provider.Stop(context.Background(), "vm1")
	require.True(t, res.OK())
	assert.Equal(t, "timed-out", res.Details["wait"])
}

func TestApply_AnnotatesBackendErrors(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	require.True(t, env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1", Image: "debian-12"}).OK())
	env.cloud.InjectOperationError("StopInstance", &compute.OperationError{
		Errors: []*compute.OperationErrorErrors{{Code: "RESOURCE_NOT_READY", Message: "not ready"}},
	})

	res := env.provider.Stop(context.Background(), "vm1")
	require.True(t, res.OK())
	assert.Equal(t, "RESOURCE_NOT_READY: not ready", res.Details["backend-errors"])
}
