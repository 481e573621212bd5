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

package contracts

import (
	"context"
	"io"
)

// InstanceManager manages VM instances, their disks and images
type InstanceManager interface {
	// Create provisions a VM; disks, firewall and DNS are created as ordered steps
	Create(ctx context.Context, spec VMSpec) Result
	// Delete removes a VM and best-effort cleans its DNS record and firewall
	Delete(ctx context.Context, name string) Result
	Start(ctx context.Context, name string) Result
	Stop(ctx context.Context, name string) Result
	Restart(ctx context.Context, name string) Result

	// UpdateFlavor replaces the machine type of a stopped VM
	UpdateFlavor(ctx context.Context, name, flavor string) Result
	// UpdateMemory resizes the memory of a stopped VM using a custom shape
	UpdateMemory(ctx context.Context, name string, memoryMiB int) Result
	// UpdateCPUs resizes the CPUs of a stopped VM using a custom shape
	UpdateCPUs(ctx context.Context, name string, cpus int) Result
	// UpdateMetadata sets a single label on a VM
	UpdateMetadata(ctx context.Context, name, key, value string) Result
	// UpdateInformation stores a free text note in the information label
	UpdateInformation(ctx context.Context, name, information string) Result

	Exists(ctx context.Context, name string) (bool, error)
	Info(ctx context.Context, name string) (VMInfo, error)
	Status(ctx context.Context, name string) (VMStatus, error)
	IP(ctx context.Context, name string) (string, error)
	InternalIP(ctx context.Context, name string) (string, error)
	// List returns every VM in the zone sorted by name
	List(ctx context.Context) ([]VMInfo, error)

	AddDisk(ctx context.Context, name string, sizeGB int) Result
	DeleteDisk(ctx context.Context, name, disk string) Result
	ListDisks(ctx context.Context) ([]DiskInfo, error)

	Volumes(ctx context.Context) ([]string, error)
	AddImage(ctx context.Context, url string) Result
	DeleteImage(ctx context.Context, image string) Result
	Export(ctx context.Context, name, image string) Result
	CreateSnapshot(ctx context.Context, name, base string) Result
	ListFlavors(ctx context.Context) ([]FlavorInfo, error)
	InfoFlavor(ctx context.Context, flavor string) (FlavorInfo, error)
}

// NetworkManager manages networks, subnets and firewall rules
type NetworkManager interface {
	CreateNetwork(ctx context.Context, name, cidr, dualCIDR string, createSubnet bool) Result
	DeleteNetwork(ctx context.Context, name string) Result
	ListNetworks(ctx context.Context) (map[string]NetworkInfo, error)
	InfoNetwork(ctx context.Context, name string) (NetworkInfo, error)

	CreateSubnet(ctx context.Context, name, cidr, network, dualCIDR string) Result
	DeleteSubnet(ctx context.Context, name string) Result
	// ListSubnets merges the own project and the shared project
	ListSubnets(ctx context.Context) (map[string]SubnetInfo, error)
	InfoSubnet(ctx context.Context, name string) (SubnetInfo, error)
	// UpdateAliases replaces the secondary ranges of a VM's primary interface
	UpdateAliases(ctx context.Context, name string, aliases []string) Result
	VMPorts(ctx context.Context, name string) ([]string, error)

	CreateSecurityGroup(ctx context.Context, name string, ports []string) Result
	DeleteSecurityGroup(ctx context.Context, name string) Result
	ListSecurityGroups(ctx context.Context) ([]SecurityGroupInfo, error)
}

// DNSManager manages records tied to VM addresses
type DNSManager interface {
	ReserveDNS(ctx context.Context, name string, nets []NetSpec, domain, ip string, alias []string) Result
	DeleteDNS(ctx context.Context, name, domain string) Result
	ListDNS(ctx context.Context, domain string) ([]DNSRecord, error)
}

// LoadBalancerManager manages composite load balancers
type LoadBalancerManager interface {
	CreateLoadBalancer(ctx context.Context, spec LoadBalancerSpec) Result
	// DeleteLoadBalancer is idempotent
	DeleteLoadBalancer(ctx context.Context, name string) Result
	ListLoadBalancers(ctx context.Context) ([]LoadBalancerInfo, error)
}

// StorageManager manages buckets and objects
type StorageManager interface {
	CreateBucket(ctx context.Context, bucket string, public bool) Result
	// DeleteBucket removes every object before the bucket
	DeleteBucket(ctx context.Context, bucket string) Result
	DeleteFromBucket(ctx context.Context, bucket, path string) Result
	DownloadFromBucket(ctx context.Context, bucket, path string, w io.Writer) Result
	UploadToBucket(ctx context.Context, bucket, path, overrideName string, public bool) Result
	ListBuckets(ctx context.Context) ([]string, error)
	ListBucketFiles(ctx context.Context, bucket string) ([]BucketFile, error)
	PublicBucketFileURL(bucket, path string) string
}

// Provider defines the interface that all providers must implement
type Provider interface {
	InstanceManager
	NetworkManager
	DNSManager
	LoadBalancerManager
	StorageManager

	// Validate ensures the provider session/credentials are healthy
	Validate(ctx context.Context) error
	// InfoHost summarizes the connection
	InfoHost(ctx context.Context) (HostInfo, error)
	// Close releases cached connection handles
	Close() error
}
