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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

func (e *testEnv) instance(t *testing.T, name string) *compute.Instance {
	t.Helper()
	vm, err := e.cloud.GetInstance(context.Background(), testProject, testZone, name)
	require.NoError(t, err)
	return vm
}

func metadataValue(vm *compute.Instance, key string) (string, bool) {
	if vm.Metadata == nil {
		return "", false
	}
	for _, item := range vm.Metadata.Items {
		if item.Key == key {
			return *item.Value, true
		}
	}
	return "", false
}

func TestCreate_Defaults(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()

	res := env.provider.Create(ctx, contracts.VMSpec{Name: "vm1"})
	require.True(t, res.OK(), res.Reason)

	vm := env.instance(t, "vm1")
	assert.Equal(t, "zones/"+testZone+"/machineTypes/custom-2-2048", vm.MachineType)
	require.Len(t, vm.Disks, 1)
	assert.Equal(t, "vm1-disk0", vm.Disks[0].Source[strings.LastIndex(vm.Disks[0].Source, "/")+1:])
	assert.True(t, vm.Disks[0].AutoDelete)
	require.Len(t, vm.NetworkInterfaces, 1)
	assert.Contains(t, vm.NetworkInterfaces[0].Subnetwork, "/subnetworks/default")
	require.Len(t, vm.NetworkInterfaces[0].AccessConfigs, 1)
	assert.Equal(t, "ONE_TO_ONE_NAT", vm.NetworkInterfaces[0].AccessConfigs[0].Type)

	keys, ok := metadataValue(vm, "ssh-keys")
	require.True(t, ok)
	assert.Contains(t, keys, testKey)
	serial, _ := metadataValue(vm, "serial-port-enable")
	assert.Equal(t, "1", serial)
	_, ok = metadataValue(vm, "user-data")
	assert.False(t, ok)

	disk, err := env.cloud.GetDisk(ctx, testProject, testZone, "vm1-disk0")
	require.NoError(t, err)
	assert.Equal(t, int64(10), disk.SizeGb)
}

func TestCreate_FromImageWithCloudInit(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()

	res := env.provider.Create(ctx, contracts.VMSpec{
		Name:      "web",
		Image:     "debian-12",
		CPUs:      4,
		MemoryMiB: 8192,
		CloudInit: true,
		Cmds:      []string{"echo hello"},
		Disks:     []contracts.DiskSpec{{SizeGB: 20}, {SizeGB: 30}},
	})
	require.True(t, res.OK(), res.Reason)

	vm := env.instance(t, "web")
	assert.Equal(t, "zones/"+testZone+"/machineTypes/custom-4-8192", vm.MachineType)
	require.Len(t, vm.Disks, 2)
	assert.True(t, vm.Disks[0].Boot)
	assert.Equal(t, int64(20), vm.Disks[0].DiskSizeGb)

	payload, ok := metadataValue(vm, "user-data")
	require.True(t, ok)
	assert.Contains(t, payload, "echo hello")
	_, ok = metadataValue(vm, "startup-script")
	assert.True(t, ok)

	info, err := env.provider.Info(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "debian-12-bookworm-v20250101", info.Image)
	assert.Equal(t, "debian", info.User)
	assert.Equal(t, 4, info.CPUs)
	assert.Equal(t, 8192, info.MemoryMiB)
	require.Len(t, info.Disks, 2)
	assert.Equal(t, "web-disk1", info.Disks[1].Name)
	assert.Equal(t, 30, info.Disks[1].SizeGB)
}

func TestCreate_Rejections(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1"}).OK())

	tests := []struct {
		name   string
		spec   contracts.VMSpec
		kind   contracts.ErrorType
		reason string
	}{
		{
			name:   "duplicate",
			spec:   contracts.VMSpec{Name: "vm1"},
			kind:   contracts.ErrorTypeAlreadyExists,
			reason: "VM vm1 already exists",
		},
		{
			name:   "unknown network",
			spec:   contracts.VMSpec{Name: "vm2", Nets: []contracts.NetSpec{{Name: "nowhere"}}},
			kind:   contracts.ErrorTypeInvalidSpec,
			reason: "nowhere not in subnets nor in networks",
		},
		{
			name:   "odd cpus",
			spec:   contracts.VMSpec{Name: "vm2", CPUs: 3, MemoryMiB: 4096},
			kind:   contracts.ErrorTypeInvalidSpec,
			reason: "Number of cpus is not even",
		},
		{
			name:   "unknown image",
			spec:   contracts.VMSpec{Name: "vm2", Image: "fedora-99"},
			kind:   contracts.ErrorTypeInvalidSpec,
			reason: "Issue with image fedora-99",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.cloud.Mutations())
			res := env.provider.Create(ctx, tt.spec)
			require.False(t, res.OK())
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Len(t, env.cloud.Mutations(), before)
		})
	}
}

func TestCreate_PartialFailureKeepsEarlierSteps(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	env.cloud.InjectError("InsertInstance", &googleapi.Error{Code: 400, Message: "Invalid value for field 'resource.machineType'"})

	res := env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1"})

	require.False(t, res.OK())
	assert.Equal(t, contracts.ErrorTypeInvalidSpec, res.Kind)
	assert.Equal(t, "disk/vm1-disk0", res.Details["completed"])
	_, err := env.cloud.GetDisk(context.Background(), testProject, testZone, "vm1-disk0")
	assert.NoError(t, err)
}

func TestCreate_WaitsForDataDisks(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{DiskReadyPolls: 2})
	require.True(t, env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1"}).OK())
	assert.Equal(t, 2, env.sleeper.count(5*time.Second))

	env = newTestEnv(t, gcpfake.Config{DiskReadyPolls: 20})
	res := env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1"})
	require.False(t, res.OK())
	assert.Equal(t, contracts.ErrorTypeTimeout, res.Kind)
	assert.Equal(t, "timeout waiting for disk vm1-disk0 to be ready", res.Reason)
	assert.Equal(t, 13, env.sleeper.count(5*time.Second))
	assert.Zero(t, env.cloud.CallCount("InsertInstance"))
}

func TestCreate_KubeFirewall(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()

	res := env.provider.Create(ctx, contracts.VMSpec{
		Name:     "mykube-ctlplane-0",
		Metadata: map[string]string{"kube": "mykube", "kubetype": "generic", "plan": "lab", "ignored": "x"},
		ServiceAccounts: []contracts.ServiceAccount{
			{Email: "builder"},
			{Email: "ops@example.iam.gserviceaccount.com", Scopes: []string{"https://www.googleapis.com/auth/cloud-platform"}},
		},
	})
	require.True(t, res.OK(), res.Reason)

	vm := env.instance(t, "mykube-ctlplane-0")
	assert.True(t, vm.CanIpForward)
	assert.Equal(t, []string{"mykube"}, vm.Tags.Items)
	assert.Equal(t, map[string]string{"kube": "mykube", "kubetype": "generic", "plan": "lab"}, vm.Labels)
	require.Len(t, vm.ServiceAccounts, 2)
	assert.Equal(t, "builder@"+testProject+".iam.gserviceaccount.com", vm.ServiceAccounts[0].Email)
	assert.Equal(t, []string{scopeCompute}, vm.ServiceAccounts[0].Scopes)

	groups, err := env.provider.ListSecurityGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "mykube", groups[0].Name)
	assert.Contains(t, groups[0].Ports, "tcp/2379")

	// a second node reuses the firewall
	res = env.provider.Create(ctx, contracts.VMSpec{
		Name:     "mykube-worker-0",
		Metadata: map[string]string{"kube": "mykube", "kubetype": "generic"},
	})
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, 1, env.cloud.CallCount("InsertFirewall"))

	require.True(t, env.provider.Delete(ctx, "mykube-worker-0").OK())
	groups, err = env.provider.ListSecurityGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestCreate_ReservesDNS(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{AddressPolls: 3})
	ctx := context.Background()

	res := env.provider.Create(ctx, contracts.VMSpec{
		Name:       "vm1",
		Domain:     "example.com",
		ReserveDNS: true,
		Alias:      []string{"www", "*"},
	})
	require.True(t, res.OK(), res.Reason)
	assert.Empty(t, res.Details["dns"])
	assert.Equal(t, 3, env.sleeper.count(5*time.Second))

	vm := env.instance(t, "vm1")
	assert.Equal(t, "example-com", vm.Labels["domain"])
	ip := natIP(vm)
	require.NotEmpty(t, ip)

	records, err := env.provider.ListDNS(ctx, "example.com")
	require.NoError(t, err)
	byName := map[string]contracts.DNSRecord{}
	for _, r := range records {
		byName[r.Name+"/"+r.Type] = r
	}
	assert.Equal(t, []string{ip}, byName["vm1.example.com./A"].Data)
	assert.Equal(t, []string{"vm1.example.com."}, byName["www.example.com./CNAME"].Data)
	assert.Equal(t, []string{ip}, byName["*.vm1.example.com./A"].Data)

	addr, err := env.cloud.GetAddress(ctx, testProject, testRegion, "vm1")
	require.NoError(t, err)
	assert.Equal(t, ip, addr.Address)

	require.True(t, env.provider.Delete(ctx, "vm1").OK())
	records, err = env.provider.ListDNS(ctx, "example.com")
	require.NoError(t, err)
	for _, r := range records {
		assert.Contains(t, []string{"NS", "SOA"}, r.Type)
	}
	_, err = env.cloud.GetAddress(ctx, testProject, testRegion, "vm1")
	assert.True(t, isNotFound(err))
}

func TestCreate_DNSFailureIsReported(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{AddressPolls: 50})
	res := env.provider.Create(context.Background(), contracts.VMSpec{Name: "vm1", Domain: "example.com", ReserveDNS: true})
	require.True(t, res.OK())
	assert.Equal(t, "Couldn't assign DNS for vm1", res.Details["dns"])
	assert.Equal(t, 10, env.sleeper.count(5*time.Second))
}

func TestDelete_NotFound(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	res := env.provider.Delete(context.Background(), "vm1")
	require.False(t, res.OK())
	assert.Equal(t, contracts.ErrorTypeNotFound, res.Kind)
	assert.Equal(t, "VM vm1 not found", res.Reason)
	assert.Empty(t, env.cloud.Mutations())
}

func TestPowerCycle(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1"}).OK())

	status, err := env.provider.Status(ctx, "vm1")
	require.NoError(t, err)
	assert.Equal(t, contracts.VMStatus("RUNNING"), status)

	require.True(t, env.provider.Stop(ctx, "vm1").OK())
	status, err = env.provider.Status(ctx, "vm1")
	require.NoError(t, err)
	assert.Equal(t, contracts.VMStatus("TERMINATED"), status)

	require.True(t, env.provider.Start(ctx, "vm1").OK())
	require.True(t, env.provider.Restart(ctx, "vm1").OK())

	res := env.provider.Stop(ctx, "vm2")
	assert.Equal(t, contracts.ErrorTypeNotFound, res.Kind)
	assert.Equal(t, "VM vm2 not found", res.Reason)

	_, err = env.provider.Status(ctx, "vm2")
	assert.True(t, contracts.IsNotFound(err))
}

func TestResize(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1", CPUs: 2, MemoryMiB: 4096}).OK())

	res := env.provider.UpdateMemory(ctx, "vm1", 8192)
	require.False(t, res.OK())
	assert.Equal(t, contracts.ErrorTypePrecondition, res.Kind)
	assert.Equal(t, "VM vm1 up", res.Reason)

	require.True(t, env.provider.Stop(ctx, "vm1").OK())
	require.True(t, env.provider.UpdateMemory(ctx, "vm1", 8192).OK())
	assert.True(t, strings.HasSuffix(env.instance(t, "vm1").MachineType, "/machineTypes/custom-2-8192"))

	require.True(t, env.provider.UpdateCPUs(ctx, "vm1", 4).OK())
	assert.True(t, strings.HasSuffix(env.instance(t, "vm1").MachineType, "/machineTypes/custom-4-8192"))

	calls := env.cloud.CallCount("SetMachineType")
	require.True(t, env.provider.UpdateCPUs(ctx, "vm1", 4).OK())
	assert.Equal(t, calls, env.cloud.CallCount("SetMachineType"))

	require.True(t, env.provider.UpdateFlavor(ctx, "vm1", "n1-standard-1").OK())
	info, err := env.provider.Info(ctx, "vm1")
	require.NoError(t, err)
	assert.Equal(t, "n1-standard-1", info.Flavor)
	assert.Equal(t, 1, info.CPUs)
	assert.Equal(t, 3840, info.MemoryMiB)

	// catalog flavors cannot be resized in place
	require.True(t, env.provider.UpdateMemory(ctx, "vm1", 16384).OK())
	assert.True(t, strings.HasSuffix(env.instance(t, "vm1").MachineType, "/machineTypes/n1-standard-1"))
}

func TestResize_Gates(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1", CPUs: 2, MemoryMiB: 4096}).OK())
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm2", Flavor: "e2-small"}).OK())
	require.True(t, env.provider.Stop(ctx, "vm2").OK())

	tests := []struct {
		name   string
		update func() contracts.Result
		reason string
	}{
		{
			name:   "flavor of running vm",
			update: func() contracts.Result { return env.provider.UpdateFlavor(ctx, "vm1", "n1-standard-1") },
			reason: "VM vm1 up",
		},
		{
			name:   "cpus of running vm",
			update: func() contracts.Result { return env.provider.UpdateCPUs(ctx, "vm1", 4) },
			reason: "VM vm1 up",
		},
		{
			name:   "memory of running vm",
			update: func() contracts.Result { return env.provider.UpdateMemory(ctx, "vm1", 8192) },
			reason: "VM vm1 up",
		},
		{
			name:   "same flavor",
			update: func() contracts.Result { return env.provider.UpdateFlavor(ctx, "vm2", "e2-small") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.cloud.Mutations())
			res := tt.update()
			if tt.reason == "" {
				require.True(t, res.OK(), res.Reason)
			} else {
				require.False(t, res.OK())
				assert.Equal(t, contracts.ErrorTypePrecondition, res.Kind)
				assert.Equal(t, tt.reason, res.Reason)
			}
			assert.Len(t, env.cloud.Mutations(), before)
		})
	}
	assert.True(t, strings.HasSuffix(env.instance(t, "vm1").MachineType, "/machineTypes/custom-2-4096"))
}

func TestDelete_KeepsExternallyManagedDNS(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	res := env.provider.Create(ctx, contracts.VMSpec{Name: "vm1", Domain: "example.com", ReserveDNS: true, Alias: []string{"www"}})
	require.True(t, res.OK(), res.Reason)
	require.True(t, env.provider.UpdateMetadata(ctx, "vm1", contracts.LabelDNSClient, "route53").OK())

	before, err := env.provider.ListDNS(ctx, "example.com")
	require.NoError(t, err)

	require.True(t, env.provider.Delete(ctx, "vm1").OK())
	exists, err := env.provider.Exists(ctx, "vm1")
	require.NoError(t, err)
	assert.False(t, exists)

	after, err := env.provider.ListDNS(ctx, "example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
	names := map[string]bool{}
	for _, r := range after {
		names[r.Name+"/"+r.Type] = true
	}
	assert.True(t, names["vm1.example.com./A"])
	assert.True(t, names["www.example.com./CNAME"])
}

func TestUpdateMetadata(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1", Metadata: map[string]string{"plan": "lab"}}).OK())

	require.True(t, env.provider.UpdateMetadata(ctx, "vm1", "owner", "jane.doe").OK())
	require.True(t, env.provider.UpdateInformation(ctx, "vm1", "db host").OK())

	labels := env.instance(t, "vm1").Labels
	assert.Equal(t, "lab", labels["plan"])
	assert.Equal(t, "jane-doe", labels["owner"])
	assert.Equal(t, "db host", labels["information"])

	calls := env.cloud.CallCount("SetInstanceLabels")
	require.True(t, env.provider.UpdateMetadata(ctx, "vm1", "owner", "jane.doe").OK())
	assert.Equal(t, calls, env.cloud.CallCount("SetInstanceLabels"))

	env.cloud.InjectError("SetInstanceLabels", &googleapi.Error{Code: 412, Message: "Labels fingerprint either invalid or resource labels have changed"})
	res := env.provider.UpdateMetadata(ctx, "vm1", "owner", "john")
	assert.Equal(t, contracts.ErrorTypePrecondition, res.Kind)
}

func TestAddresses(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm1"}).OK())
	require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: "vm2", Public: util.BoolPtr(false)}).OK())

	ip, err := env.provider.IP(ctx, "vm1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ip, "34."), ip)

	internal, err := env.provider.InternalIP(ctx, "vm1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(internal, "10."), internal)

	ip, err = env.provider.IP(ctx, "vm2")
	require.NoError(t, err)
	assert.Empty(t, ip)

	private := testConfig()
	private.GCP.Public = false
	penv := newTestEnvWith(t, env.cloud, private)
	ip, err = penv.provider.IP(ctx, "vm1")
	require.NoError(t, err)
	assert.Equal(t, internal, ip)
}

func TestListAndExists(t *testing.T) {
	env := newTestEnv(t, gcpfake.Config{})
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.True(t, env.provider.Create(ctx, contracts.VMSpec{Name: name}).OK())
	}

	vms, err := env.provider.List(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(vms))
	for _, vm := range vms {
		names = append(names, vm.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
	assert.Equal(t, "custom-2-2048", vms[0].Flavor)
	require.Len(t, vms[0].Nets, 1)
	assert.Equal(t, "nic0", vms[0].Nets[0].Device)

	ok, err := env.provider.Exists(ctx, "mid")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.provider.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	env.cloud.InjectError("GetInstance", &googleapi.Error{Code: 500, Message: "internal"})
	_, err = env.provider.Exists(ctx, "mid")
	assert.True(t, contracts.IsType(err, contracts.ErrorTypeRetryable))
}
