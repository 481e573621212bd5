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
	"io"

	compute "google.golang.org/api/compute/v1"
	dns "google.golang.org/api/dns/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/events"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
)

// ComputeAPI is the subset of the Compute Engine API the adapter drives.
// Every mutating call returns the backend operation handle; callers hand it to the Waiter.
type ComputeAPI interface {
	GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error)
	ListInstances(ctx context.Context, project, zone string) ([]*compute.Instance, error)
	InsertInstance(ctx context.Context, project, zone string, instance *compute.Instance) (*compute.Operation, error)
	DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	StartInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	StopInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	ResetInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	SetMachineType(ctx context.Context, project, zone, name, machineType string) (*compute.Operation, error)
	SetInstanceLabels(ctx context.Context, project, zone, name string, req *compute.InstancesSetLabelsRequest) (*compute.Operation, error)
	AttachDisk(ctx context.Context, project, zone, name string, disk *compute.AttachedDisk) (*compute.Operation, error)
	DetachDisk(ctx context.Context, project, zone, name, deviceName string) (*compute.Operation, error)
	UpdateNetworkInterface(ctx context.Context, project, zone, name, nic string, iface *compute.NetworkInterface) (*compute.Operation, error)
	UpdateAccessConfig(ctx context.Context, project, zone, name, nic string, ac *compute.AccessConfig) (*compute.Operation, error)

	GetDisk(ctx context.Context, project, zone, name string) (*compute.Disk, error)
	ListDisks(ctx context.Context, project, zone string) ([]*compute.Disk, error)
	InsertDisk(ctx context.Context, project, zone string, disk *compute.Disk) (*compute.Operation, error)
	DeleteDisk(ctx context.Context, project, zone, name string) (*compute.Operation, error)

	GetImage(ctx context.Context, project, name string) (*compute.Image, error)
	GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error)
	ListImages(ctx context.Context, project string) ([]*compute.Image, error)
	// InsertImage creates an image; force allows a source disk attached to a running instance
	InsertImage(ctx context.Context, project string, image *compute.Image, force bool) (*compute.Operation, error)
	DeleteImage(ctx context.Context, project, name string) (*compute.Operation, error)

	GetMachineType(ctx context.Context, project, zone, name string) (*compute.MachineType, error)
	ListMachineTypes(ctx context.Context, project, zone string) ([]*compute.MachineType, error)

	GetNetwork(ctx context.Context, project, name string) (*compute.Network, error)
	ListNetworks(ctx context.Context, project string) ([]*compute.Network, error)
	InsertNetwork(ctx context.Context, project string, network *compute.Network) (*compute.Operation, error)
	DeleteNetwork(ctx context.Context, project, name string) (*compute.Operation, error)

	GetSubnetwork(ctx context.Context, project, region, name string) (*compute.Subnetwork, error)
	ListSubnetworks(ctx context.Context, project, region string) ([]*compute.Subnetwork, error)
	InsertSubnetwork(ctx context.Context, project, region string, subnet *compute.Subnetwork) (*compute.Operation, error)
	DeleteSubnetwork(ctx context.Context, project, region, name string) (*compute.Operation, error)

	ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error)
	InsertFirewall(ctx context.Context, project string, firewall *compute.Firewall) (*compute.Operation, error)
	DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error)

	GetAddress(ctx context.Context, project, region, name string) (*compute.Address, error)
	InsertAddress(ctx context.Context, project, region string, address *compute.Address) (*compute.Operation, error)
	DeleteAddress(ctx context.Context, project, region, name string) (*compute.Operation, error)
	SetAddressLabels(ctx context.Context, project, region, name string, req *compute.RegionSetLabelsRequest) (*compute.Operation, error)

	GetInstanceGroup(ctx context.Context, project, zone, name string) (*compute.InstanceGroup, error)
	ListInstanceGroups(ctx context.Context, project, zone string) ([]*compute.InstanceGroup, error)
	InsertInstanceGroup(ctx context.Context, project, zone string, group *compute.InstanceGroup) (*compute.Operation, error)
	DeleteInstanceGroup(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	AddInstancesToGroup(ctx context.Context, project, zone, group string, req *compute.InstanceGroupsAddInstancesRequest) (*compute.Operation, error)

	ListHealthChecks(ctx context.Context, project string) ([]*compute.HealthCheck, error)
	InsertHealthCheck(ctx context.Context, project string, check *compute.HealthCheck) (*compute.Operation, error)
	DeleteHealthCheck(ctx context.Context, project, name string) (*compute.Operation, error)
	ListRegionHealthChecks(ctx context.Context, project, region string) ([]*compute.HealthCheck, error)
	InsertRegionHealthCheck(ctx context.Context, project, region string, check *compute.HealthCheck) (*compute.Operation, error)
	DeleteRegionHealthCheck(ctx context.Context, project, region, name string) (*compute.Operation, error)

	ListBackendServices(ctx context.Context, project, region string) ([]*compute.BackendService, error)
	InsertBackendService(ctx context.Context, project, region string, service *compute.BackendService) (*compute.Operation, error)
	DeleteBackendService(ctx context.Context, project, region, name string) (*compute.Operation, error)

	ListForwardingRules(ctx context.Context, project, region string) ([]*compute.ForwardingRule, error)
	ListGlobalForwardingRules(ctx context.Context, project string) ([]*compute.ForwardingRule, error)
	InsertForwardingRule(ctx context.Context, project, region string, rule *compute.ForwardingRule) (*compute.Operation, error)
	DeleteForwardingRule(ctx context.Context, project, region, name string) (*compute.Operation, error)

	GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error)
	GetRegionOperation(ctx context.Context, project, region, name string) (*compute.Operation, error)
	GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error)

	// GetXpnHost returns the shared VPC host project, or "" when project is not a service project
	GetXpnHost(ctx context.Context, project string) (string, error)
}

// DNSAPI is the subset of Cloud DNS the adapter drives
type DNSAPI interface {
	ListManagedZones(ctx context.Context, project string) ([]*dns.ManagedZone, error)
	ListRecordSets(ctx context.Context, project, zone string) ([]*dns.ResourceRecordSet, error)
	// ApplyChange submits additions and deletions as one atomic change-set
	ApplyChange(ctx context.Context, project, zone string, change *dns.Change) (*dns.Change, error)
}

// StorageAPI is the subset of Cloud Storage the adapter drives
type StorageAPI interface {
	ListBuckets(ctx context.Context, project string) ([]string, error)
	CreateBucket(ctx context.Context, project, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	ListObjects(ctx context.Context, bucket string) ([]contracts.BucketFile, error)
	DeleteObject(ctx context.Context, bucket, object string) error
	UploadObject(ctx context.Context, bucket, object string, r io.Reader) error
	DownloadObject(ctx context.Context, bucket, object string, w io.Writer) error
	MakeBucketPublic(ctx context.Context, bucket string) error
	MakeObjectPublic(ctx context.Context, bucket, object string) error
	Close() error
}

// UserDataGenerator renders first boot configuration for an instance
type UserDataGenerator interface {
	NeedsIgnition(image string) bool
	CloudInit(req userdata.Request) (string, error)
	Ignition(req userdata.Request) (string, error)
	DefaultUser(image string) string
}

// KeyFinder locates the operator's SSH public key
type KeyFinder interface {
	// PublicKey returns the key content, or "" when no key is available
	PublicKey() (string, error)
}

var (
	_ UserDataGenerator = (*userdata.Generator)(nil)
	_ KeyFinder         = (*userdata.KeyFinder)(nil)
	_ events.Sink       = events.Nop{}
)
