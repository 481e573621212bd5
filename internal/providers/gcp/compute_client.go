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

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
)

// ComputeClient implements ComputeAPI on the Compute Engine REST client
type ComputeClient struct {
	svc *compute.Service
	c   caller
}

var _ ComputeAPI = (*ComputeClient)(nil)

// NewComputeClient wraps svc; policy may be nil
func NewComputeClient(svc *compute.Service, policy *resilience.Policy) *ComputeClient {
	return &ComputeClient{svc: svc, c: newCaller("compute", policy)}
}

func (cc *ComputeClient) mutate(ctx context.Context, method string, fn func(ctx context.Context) (*compute.Operation, error)) (*compute.Operation, error) {
	return callMutate(ctx, cc.c, method, fn)
}

func (cc *ComputeClient) GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error) {
	return callRead(ctx, cc.c, "instances.get", func(ctx context.Context) (*compute.Instance, error) {
		return cc.svc.Instances.Get(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListInstances(ctx context.Context, project, zone string) ([]*compute.Instance, error) {
	return callRead(ctx, cc.c, "instances.list", func(ctx context.Context) ([]*compute.Instance, error) {
		var out []*compute.Instance
		err := cc.svc.Instances.List(project, zone).Pages(ctx, func(page *compute.InstanceList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertInstance(ctx context.Context, project, zone string, instance *compute.Instance) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.Insert(project, zone, instance).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.Delete(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) StartInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.start", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.Start(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) StopInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.stop", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.Stop(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ResetInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.reset", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.Reset(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) SetMachineType(ctx context.Context, project, zone, name, machineType string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.setMachineType", func(ctx context.Context) (*compute.Operation, error) {
		req := &compute.InstancesSetMachineTypeRequest{MachineType: machineType}
		return cc.svc.Instances.SetMachineType(project, zone, name, req).Context(ctx).Do()
	})
}

func (cc *ComputeClient) SetInstanceLabels(ctx context.Context, project, zone, name string, req *compute.InstancesSetLabelsRequest) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.setLabels", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.SetLabels(project, zone, name, req).Context(ctx).Do()
	})
}

func (cc *ComputeClient) AttachDisk(ctx context.Context, project, zone, name string, disk *compute.AttachedDisk) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.attachDisk", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.AttachDisk(project, zone, name, disk).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DetachDisk(ctx context.Context, project, zone, name, deviceName string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.detachDisk", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.DetachDisk(project, zone, name, deviceName).Context(ctx).Do()
	})
}

func (cc *ComputeClient) UpdateNetworkInterface(ctx context.Context, project, zone, name, nic string, iface *compute.NetworkInterface) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.updateNetworkInterface", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.UpdateNetworkInterface(project, zone, name, nic, iface).Context(ctx).Do()
	})
}

func (cc *ComputeClient) UpdateAccessConfig(ctx context.Context, project, zone, name, nic string, ac *compute.AccessConfig) (*compute.Operation, error) {
	return cc.mutate(ctx, "instances.updateAccessConfig", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Instances.UpdateAccessConfig(project, zone, name, nic, ac).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetDisk(ctx context.Context, project, zone, name string) (*compute.Disk, error) {
	return callRead(ctx, cc.c, "disks.get", func(ctx context.Context) (*compute.Disk, error) {
		return cc.svc.Disks.Get(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListDisks(ctx context.Context, project, zone string) ([]*compute.Disk, error) {
	return callRead(ctx, cc.c, "disks.list", func(ctx context.Context) ([]*compute.Disk, error) {
		var out []*compute.Disk
		err := cc.svc.Disks.List(project, zone).Pages(ctx, func(page *compute.DiskList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertDisk(ctx context.Context, project, zone string, disk *compute.Disk) (*compute.Operation, error) {
	return cc.mutate(ctx, "disks.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Disks.Insert(project, zone, disk).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteDisk(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "disks.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Disks.Delete(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetImage(ctx context.Context, project, name string) (*compute.Image, error) {
	return callRead(ctx, cc.c, "images.get", func(ctx context.Context) (*compute.Image, error) {
		return cc.svc.Images.Get(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error) {
	return callRead(ctx, cc.c, "images.getFromFamily", func(ctx context.Context) (*compute.Image, error) {
		return cc.svc.Images.GetFromFamily(project, family).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListImages(ctx context.Context, project string) ([]*compute.Image, error) {
	return callRead(ctx, cc.c, "images.list", func(ctx context.Context) ([]*compute.Image, error) {
		var out []*compute.Image
		err := cc.svc.Images.List(project).Pages(ctx, func(page *compute.ImageList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertImage(ctx context.Context, project string, image *compute.Image, force bool) (*compute.Operation, error) {
	return cc.mutate(ctx, "images.insert", func(ctx context.Context) (*compute.Operation, error) {
		call := cc.svc.Images.Insert(project, image)
		if force {
			call = call.ForceCreate(true)
		}
		return call.Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteImage(ctx context.Context, project, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "images.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Images.Delete(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetMachineType(ctx context.Context, project, zone, name string) (*compute.MachineType, error) {
	return callRead(ctx, cc.c, "machineTypes.get", func(ctx context.Context) (*compute.MachineType, error) {
		return cc.svc.MachineTypes.Get(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListMachineTypes(ctx context.Context, project, zone string) ([]*compute.MachineType, error) {
	return callRead(ctx, cc.c, "machineTypes.list", func(ctx context.Context) ([]*compute.MachineType, error) {
		var out []*compute.MachineType
		err := cc.svc.MachineTypes.List(project, zone).Pages(ctx, func(page *compute.MachineTypeList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) GetNetwork(ctx context.Context, project, name string) (*compute.Network, error) {
	return callRead(ctx, cc.c, "networks.get", func(ctx context.Context) (*compute.Network, error) {
		return cc.svc.Networks.Get(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListNetworks(ctx context.Context, project string) ([]*compute.Network, error) {
	return callRead(ctx, cc.c, "networks.list", func(ctx context.Context) ([]*compute.Network, error) {
		var out []*compute.Network
		err := cc.svc.Networks.List(project).Pages(ctx, func(page *compute.NetworkList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertNetwork(ctx context.Context, project string, network *compute.Network) (*compute.Operation, error) {
	return cc.mutate(ctx, "networks.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Networks.Insert(project, network).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteNetwork(ctx context.Context, project, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "networks.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Networks.Delete(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetSubnetwork(ctx context.Context, project, region, name string) (*compute.Subnetwork, error) {
	return callRead(ctx, cc.c, "subnetworks.get", func(ctx context.Context) (*compute.Subnetwork, error) {
		return cc.svc.Subnetworks.Get(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListSubnetworks(ctx context.Context, project, region string) ([]*compute.Subnetwork, error) {
	return callRead(ctx, cc.c, "subnetworks.list", func(ctx context.Context) ([]*compute.Subnetwork, error) {
		var out []*compute.Subnetwork
		err := cc.svc.Subnetworks.List(project, region).Pages(ctx, func(page *compute.SubnetworkList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertSubnetwork(ctx context.Context, project, region string, subnet *compute.Subnetwork) (*compute.Operation, error) {
	return cc.mutate(ctx, "subnetworks.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Subnetworks.Insert(project, region, subnet).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteSubnetwork(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "subnetworks.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Subnetworks.Delete(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error) {
	return callRead(ctx, cc.c, "firewalls.list", func(ctx context.Context) ([]*compute.Firewall, error) {
		var out []*compute.Firewall
		err := cc.svc.Firewalls.List(project).Pages(ctx, func(page *compute.FirewallList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertFirewall(ctx context.Context, project string, firewall *compute.Firewall) (*compute.Operation, error) {
	return cc.mutate(ctx, "firewalls.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Firewalls.Insert(project, firewall).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "firewalls.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Firewalls.Delete(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetAddress(ctx context.Context, project, region, name string) (*compute.Address, error) {
	return callRead(ctx, cc.c, "addresses.get", func(ctx context.Context) (*compute.Address, error) {
		return cc.svc.Addresses.Get(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) InsertAddress(ctx context.Context, project, region string, address *compute.Address) (*compute.Operation, error) {
	return cc.mutate(ctx, "addresses.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Addresses.Insert(project, region, address).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteAddress(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "addresses.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Addresses.Delete(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) SetAddressLabels(ctx context.Context, project, region, name string, req *compute.RegionSetLabelsRequest) (*compute.Operation, error) {
	return cc.mutate(ctx, "addresses.setLabels", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.Addresses.SetLabels(project, region, name, req).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetInstanceGroup(ctx context.Context, project, zone, name string) (*compute.InstanceGroup, error) {
	return callRead(ctx, cc.c, "instanceGroups.get", func(ctx context.Context) (*compute.InstanceGroup, error) {
		return cc.svc.InstanceGroups.Get(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListInstanceGroups(ctx context.Context, project, zone string) ([]*compute.InstanceGroup, error) {
	return callRead(ctx, cc.c, "instanceGroups.list", func(ctx context.Context) ([]*compute.InstanceGroup, error) {
		var out []*compute.InstanceGroup
		err := cc.svc.InstanceGroups.List(project, zone).Pages(ctx, func(page *compute.InstanceGroupList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertInstanceGroup(ctx context.Context, project, zone string, group *compute.InstanceGroup) (*compute.Operation, error) {
	return cc.mutate(ctx, "instanceGroups.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.InstanceGroups.Insert(project, zone, group).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteInstanceGroup(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "instanceGroups.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.InstanceGroups.Delete(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) AddInstancesToGroup(ctx context.Context, project, zone, group string, req *compute.InstanceGroupsAddInstancesRequest) (*compute.Operation, error) {
	return cc.mutate(ctx, "instanceGroups.addInstances", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.InstanceGroups.AddInstances(project, zone, group, req).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListHealthChecks(ctx context.Context, project string) ([]*compute.HealthCheck, error) {
	return callRead(ctx, cc.c, "healthChecks.list", func(ctx context.Context) ([]*compute.HealthCheck, error) {
		var out []*compute.HealthCheck
		err := cc.svc.HealthChecks.List(project).Pages(ctx, func(page *compute.HealthCheckList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertHealthCheck(ctx context.Context, project string, check *compute.HealthCheck) (*compute.Operation, error) {
	return cc.mutate(ctx, "healthChecks.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.HealthChecks.Insert(project, check).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteHealthCheck(ctx context.Context, project, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "healthChecks.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.HealthChecks.Delete(project, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListRegionHealthChecks(ctx context.Context, project, region string) ([]*compute.HealthCheck, error) {
	return callRead(ctx, cc.c, "regionHealthChecks.list", func(ctx context.Context) ([]*compute.HealthCheck, error) {
		var out []*compute.HealthCheck
		err := cc.svc.RegionHealthChecks.List(project, region).Pages(ctx, func(page *compute.HealthCheckList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertRegionHealthCheck(ctx context.Context, project, region string, check *compute.HealthCheck) (*compute.Operation, error) {
	return cc.mutate(ctx, "regionHealthChecks.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.RegionHealthChecks.Insert(project, region, check).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteRegionHealthCheck(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "regionHealthChecks.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.RegionHealthChecks.Delete(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListBackendServices(ctx context.Context, project, region string) ([]*compute.BackendService, error) {
	return callRead(ctx, cc.c, "regionBackendServices.list", func(ctx context.Context) ([]*compute.BackendService, error) {
		var out []*compute.BackendService
		err := cc.svc.RegionBackendServices.List(project, region).Pages(ctx, func(page *compute.BackendServiceList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertBackendService(ctx context.Context, project, region string, service *compute.BackendService) (*compute.Operation, error) {
	return cc.mutate(ctx, "regionBackendServices.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.RegionBackendServices.Insert(project, region, service).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteBackendService(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "regionBackendServices.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.RegionBackendServices.Delete(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) ListForwardingRules(ctx context.Context, project, region string) ([]*compute.ForwardingRule, error) {
	return callRead(ctx, cc.c, "forwardingRules.list", func(ctx context.Context) ([]*compute.ForwardingRule, error) {
		var out []*compute.ForwardingRule
		err := cc.svc.ForwardingRules.List(project, region).Pages(ctx, func(page *compute.ForwardingRuleList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) ListGlobalForwardingRules(ctx context.Context, project string) ([]*compute.ForwardingRule, error) {
	return callRead(ctx, cc.c, "globalForwardingRules.list", func(ctx context.Context) ([]*compute.ForwardingRule, error) {
		var out []*compute.ForwardingRule
		err := cc.svc.GlobalForwardingRules.List(project).Pages(ctx, func(page *compute.ForwardingRuleList) error {
			out = append(out, page.Items...)
			return nil
		})
		return out, err
	})
}

func (cc *ComputeClient) InsertForwardingRule(ctx context.Context, project, region string, rule *compute.ForwardingRule) (*compute.Operation, error) {
	return cc.mutate(ctx, "forwardingRules.insert", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.ForwardingRules.Insert(project, region, rule).Context(ctx).Do()
	})
}

func (cc *ComputeClient) DeleteForwardingRule(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return cc.mutate(ctx, "forwardingRules.delete", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.ForwardingRules.Delete(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return callRead(ctx, cc.c, "zoneOperations.get", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.ZoneOperations.Get(project, zone, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetRegionOperation(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return callRead(ctx, cc.c, "regionOperations.get", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.RegionOperations.Get(project, region, name).Context(ctx).Do()
	})
}

func (cc *ComputeClient) GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error) {
	return callRead(ctx, cc.c, "globalOperations.get", func(ctx context.Context) (*compute.Operation, error) {
		return cc.svc.GlobalOperations.Get(project, name).Context(ctx).Do()
	})
}

// GetXpnHost returns "" for projects that are not attached to a shared VPC host
func (cc *ComputeClient) GetXpnHost(ctx context.Context, project string) (string, error) {
	return callRead(ctx, cc.c, "projects.getXpnHost", func(ctx context.Context) (string, error) {
		host, err := cc.svc.Projects.GetXpnHost(project).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return host.Name, nil
	})
}
