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

// VMSpec contains all information needed to create a VM
type VMSpec struct {
	// Name of the VM to create
	Name string
	// Flavor is a canonical machine type; when empty a custom shape is synthesized from CPUs and MemoryMiB
	Flavor string
	// CPUs is the number of virtual CPUs for a custom shape
	CPUs int
	// MemoryMiB is the memory for a custom shape
	MemoryMiB int
	// CPUModel sets the minimum CPU platform unless it is "host-model"
	CPUModel string
	// Image is the boot image reference
	Image string
	// Nets lists network attachments in interface order
	Nets []NetSpec
	// Disks lists disks; index 0 is the boot disk when Image is set
	Disks []DiskSpec
	// Keys are additional SSH public keys
	Keys []string
	// Cmds are commands run on first boot
	Cmds []string
	// Files are injected on first boot
	Files []FileSpec
	// Metadata is free-form metadata; only allow-listed keys are kept as labels
	Metadata map[string]string
	// Tags are network tags applied to the instance
	Tags []string
	// Domain is the DNS domain for the instance
	Domain string
	// ReserveDNS requests a DNS record after creation
	ReserveDNS bool
	// Alias lists extra DNS names ('*' for a wildcard)
	Alias []string
	// EnableRoot allows root SSH login
	EnableRoot bool
	// CloudInit enables user data generation
	CloudInit bool
	// StoreMetadata copies Overrides into instance metadata
	StoreMetadata bool
	// Public attaches an external address to the first interface by default
	Public *bool
	// Accelerators lists guest accelerators
	Accelerators []Accelerator
	// ServiceAccounts are used for Kubernetes flavored instances
	ServiceAccounts []ServiceAccount
	// Shielded configures shielded VM options
	Shielded *ShieldedSpec
	// Confidential enables confidential compute
	Confidential bool
	// Overrides are extra key/values stored as metadata when StoreMetadata is set
	Overrides map[string]string
}

// NetSpec defines a network attachment
type NetSpec struct {
	// Name identifies the network or subnet
	Name string
	// IP is an optional static internal address
	IP string
	// Public requests an external address; nil means provider default
	Public *bool
	// DualCIDR is a secondary range for dual stack addressing
	DualCIDR string
	// DualName names the dual stack secondary range
	DualName string
	// PodCIDR is a secondary range for pods
	PodCIDR string
	// PodCIDRName names the pod secondary range
	PodCIDRName string
	// ServiceCIDR is a secondary range for services
	ServiceCIDR string
	// ServiceCIDRName names the service secondary range
	ServiceCIDRName string
}

// DiskSpec defines disk requirements
type DiskSpec struct {
	// SizeGB specifies disk size in GB
	SizeGB int
}

// FileSpec is a file injected through user data
type FileSpec struct {
	// Path on the guest
	Path string
	// Content of the file
	Content string
	// Mode is the octal permission
	Mode int
}

// Accelerator is a guest accelerator request
type Accelerator struct {
	// Type is the accelerator type
	Type string
	// Count defaults to 1
	Count int
}

// ServiceAccount grants scopes to an instance
type ServiceAccount struct {
	// Email of the account; a bare name is expanded within the project
	Email string
	// Scopes granted
	Scopes []string
}

// ShieldedSpec defines shielded VM options
type ShieldedSpec struct {
	// TPM enables the virtual TPM
	TPM bool
	// SecureBoot enables secure boot
	SecureBoot bool
	// IntegrityMonitoring enables integrity monitoring
	IntegrityMonitoring bool
}

// VMStatus is the remote lifecycle state of an instance
type VMStatus string

const (
	// VMStatusProvisioning indicates resources are being allocated
	VMStatusProvisioning VMStatus = "PROVISIONING"
	// VMStatusStaging indicates the instance is about to start
	VMStatusStaging VMStatus = "STAGING"
	// VMStatusRunning indicates the instance is running
	VMStatusRunning VMStatus = "RUNNING"
	// VMStatusStopping indicates the instance is shutting down
	VMStatusStopping VMStatus = "STOPPING"
	// VMStatusStopped indicates the instance is stopped
	VMStatusStopped VMStatus = "STOPPED"
	// VMStatusSuspended indicates the instance is suspended
	VMStatusSuspended VMStatus = "SUSPENDED"
	// VMStatusTerminated indicates the instance is terminated
	VMStatusTerminated VMStatus = "TERMINATED"
)

// IsUp reports whether the instance must be stopped before a resize
func (s VMStatus) IsUp() bool {
	return s == VMStatusRunning || s == VMStatusStopping
}

// VMInfo describes an instance
type VMInfo struct {
	Name         string            `json:"name"`
	Status       VMStatus          `json:"status"`
	Flavor       string            `json:"flavor"`
	CPUs         int               `json:"cpus"`
	MemoryMiB    int               `json:"memory"`
	Autostart    bool              `json:"autostart"`
	IP           string            `json:"ip,omitempty"`
	PrivateIP    string            `json:"private_ip,omitempty"`
	Image        string            `json:"image,omitempty"`
	User         string            `json:"user,omitempty"`
	CreationDate string            `json:"creationdate,omitempty"`
	Nets         []NicInfo         `json:"nets,omitempty"`
	Disks        []DiskInfo        `json:"disks,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// NicInfo describes an instance network interface
type NicInfo struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
	Net    string `json:"net"`
}

// DiskInfo describes an instance or project disk
type DiskInfo struct {
	Name   string `json:"name"`
	Device string `json:"device,omitempty"`
	SizeGB int    `json:"size"`
	Format string `json:"format,omitempty"`
	Type   string `json:"type,omitempty"`
	Path   string `json:"path,omitempty"`
	Status string `json:"status,omitempty"`
	VM     string `json:"vm,omitempty"`
}

// FlavorInfo describes a machine type
type FlavorInfo struct {
	Name      string `json:"name"`
	CPUs      int    `json:"cpus"`
	MemoryMiB int    `json:"memory"`
}

// NetworkInfo describes a network
type NetworkInfo struct {
	Name    string `json:"name"`
	CIDR    string `json:"cidr"`
	Mode    string `json:"mode"`
	Project string `json:"project,omitempty"`
}

// SubnetInfo describes a subnet and the project that owns it
type SubnetInfo struct {
	Name      string   `json:"name"`
	CIDR      string   `json:"cidr"`
	Network   string   `json:"network"`
	Region    string   `json:"region"`
	Project   string   `json:"az"`
	DualCIDRs []string `json:"dual_cidrs,omitempty"`
}

// SecurityGroupInfo describes a firewall rule
type SecurityGroupInfo struct {
	Name       string   `json:"name"`
	Network    string   `json:"network"`
	Direction  string   `json:"direction"`
	Ports      []string `json:"ports"`
	TargetTags []string `json:"target_tags,omitempty"`
}

// DNSRecord describes a DNS record set
type DNSRecord struct {
	Name string   `json:"name"`
	Type string   `json:"type"`
	TTL  int64    `json:"ttl"`
	Data []string `json:"data"`
}

// LoadBalancerSpec defines a composite load balancer
type LoadBalancerSpec struct {
	// Name is sanitized into every sub-resource name
	Name string
	// VMs back the load balancer; at least one is required
	VMs []string
	// Ports are forwarded
	Ports []int
	// CheckPort is the TCP health check port; defaults to 80
	CheckPort int
	// Alias lists extra DNS names
	Alias []string
	// Domain registers a DNS record when set
	Domain string
	// DNSClient names an external DNS client that owns the record
	DNSClient string
	// IP reuses an existing address
	IP string
	// Internal creates an internal load balancer
	Internal bool
}

// LoadBalancerInfo describes a load balancer
type LoadBalancerInfo struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Protocol string `json:"protocol"`
	Ports    string `json:"ports"`
	Target   string `json:"target"`
}

// BucketFile describes an object in a bucket
type BucketFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// HostInfo summarizes the provider connection
type HostInfo struct {
	Project       string `json:"project"`
	Zone          string `json:"zone"`
	Region        string `json:"region"`
	SharedProject string `json:"xproject,omitempty"`
	VMCount       int    `json:"vms"`
}
