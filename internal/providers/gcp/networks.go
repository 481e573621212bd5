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
	"fmt"
	"net/netip"
	"path"
	"strings"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

const (
	networkModeAuto   = "auto"
	networkModeCustom = "custom"
)

// validCIDR accepts a network prefix with no host bits set
func validCIDR(cidr string) bool {
	prefix, err := netip.ParsePrefix(cidr)
	return err == nil && prefix.Masked() == prefix
}

// urlSegment returns the element following key in a resource URL, e.g. the region of a subnetwork link
func urlSegment(url, key string) string {
	parts := strings.Split(url, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == key {
			return parts[i+1]
		}
	}
	return ""
}

// projects returns the own project followed by the shared VPC host, when set
func (p *Provider) projects() []string {
	out := []string{p.project}
	if x := p.SharedProject(); x != "" && x != p.project {
		out = append(out, x)
	}
	return out
}

// CreateNetwork creates a network in auto mode when cidr is empty, else in custom mode with a
// matching subnet, then opens inbound SSH on it. CIDRs are validated before any mutation.
func (p *Provider) CreateNetwork(ctx context.Context, name, cidr, dualCIDR string, createSubnet bool) contracts.Result {
	return p.run(ctx, "create-network", name, func(ctx context.Context) contracts.Result {
		withSubnet := createSubnet && cidr != ""
		if withSubnet {
			if !validCIDR(cidr) {
				return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid Cidr %s", cidr)
			}
			if dualCIDR != "" && !validCIDR(dualCIDR) {
				return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid Dual Cidr %s", dualCIDR)
			}
		}

		network := &compute.Network{
			Name:                  name,
			AutoCreateSubnetworks: cidr == "",
			ForceSendFields:       []string{"AutoCreateSubnetworks"},
		}
		op, err := p.compute.InsertNetwork(ctx, p.project, network)
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err)
		}

		if withSubnet {
			networkLink := fmt.Sprintf("%s/projects/%s/global/networks/%s", computeURL, p.project, name)
			if op != nil && op.TargetLink != "" {
				networkLink = op.TargetLink
			}
			subnet := &compute.Subnetwork{
				Name:        name,
				IpCidrRange: cidr,
				Network:     networkLink,
				Region:      regionURL(p.project, p.region),
			}
			if dualCIDR != "" {
				subnet.SecondaryIpRanges = []*compute.SubnetworkSecondaryRange{{RangeName: "dual-" + name, IpCidrRange: dualCIDR}}
			}
			op, err := p.compute.InsertSubnetwork(ctx, p.project, p.region, subnet)
			if err := p.apply(ctx, op, err); err != nil {
				return contracts.ResultFrom(err)
			}
		}

		op, err = p.compute.InsertFirewall(ctx, p.project, sshFirewall(name))
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

func sshFirewall(network string) *compute.Firewall {
	return &compute.Firewall{
		Name:         "allow-ssh-" + network,
		Network:      "global/networks/" + network,
		SourceRanges: []string{"0.0.0.0/0"},
		Allowed:      []*compute.FirewallAllowed{{IPProtocol: "tcp", Ports: []string{"22"}}},
	}
}

// DeleteNetwork removes custom subnets, then the SSH rule (best effort), then the network
func (p *Provider) DeleteNetwork(ctx context.Context, name string) contracts.Result {
	return p.run(ctx, "delete-network", name, func(ctx context.Context) contracts.Result {
		network, err := p.compute.GetNetwork(ctx, p.project, name)
		if err != nil {
			if isNotFound(err) {
				return contracts.Failure(contracts.ErrorTypeNotFound, "Network %s not found", name)
			}
			return contracts.ResultFrom(classify(err))
		}
		if !network.AutoCreateSubnetworks {
			for _, link := range network.Subnetworks {
				region := urlSegment(link, "regions")
				if region == "" {
					region = p.region
				}
				op, err := p.compute.DeleteSubnetwork(ctx, p.project, region, path.Base(link))
				if err := p.apply(ctx, op, err); err != nil {
					return contracts.ResultFrom(err)
				}
			}
		}
		op, err := p.compute.DeleteFirewall(ctx, p.project, "allow-ssh-"+name)
		if err := p.apply(ctx, op, err); err != nil && !isNotFound(err) {
			p.warn(ctx, "failed to delete ssh firewall", "error", err.Error())
		}
		op, err = p.compute.DeleteNetwork(ctx, p.project, name)
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// ListNetworks merges the networks of the own project and the shared VPC host
func (p *Provider) ListNetworks(ctx context.Context) (map[string]contracts.NetworkInfo, error) {
	return query(ctx, p, "list-networks", p.project, func(ctx context.Context) (map[string]contracts.NetworkInfo, error) {
		out := map[string]contracts.NetworkInfo{}
		for _, project := range p.projects() {
			networks, err := p.compute.ListNetworks(ctx, project)
			if err != nil {
				return nil, err
			}
			for _, n := range networks {
				info := contracts.NetworkInfo{Name: n.Name, CIDR: n.IPv4Range, Mode: networkModeCustom, Project: project}
				if n.AutoCreateSubnetworks {
					info.Mode = networkModeAuto
				}
				if info.CIDR == "" {
					if subnet, err := p.compute.GetSubnetwork(ctx, project, p.region, n.Name); err == nil {
						info.CIDR = subnet.IpCidrRange
					}
				}
				out[n.Name] = info
			}
		}
		return out, nil
	})
}

// InfoNetwork describes one network
func (p *Provider) InfoNetwork(ctx context.Context, name string) (contracts.NetworkInfo, error) {
	networks, err := p.ListNetworks(ctx)
	if err != nil {
		return contracts.NetworkInfo{}, err
	}
	info, ok := networks[name]
	if !ok {
		return contracts.NetworkInfo{}, contracts.NewNotFoundError(fmt.Sprintf("Network %s not found", name), nil)
	}
	return info, nil
}

// ListSubnets merges the subnets of the own project and the shared VPC host, recording the owner of each
func (p *Provider) ListSubnets(ctx context.Context) (map[string]contracts.SubnetInfo, error) {
	return query(ctx, p, "list-subnets", p.region, func(ctx context.Context) (map[string]contracts.SubnetInfo, error) {
		out := map[string]contracts.SubnetInfo{}
		for _, project := range p.projects() {
			subnets, err := p.compute.ListSubnetworks(ctx, project, p.region)
			if err != nil {
				return nil, err
			}
			for _, s := range subnets {
				out[s.Name] = subnetInfo(s, project)
			}
			networks, err := p.compute.ListNetworks(ctx, project)
			if err != nil {
				return nil, err
			}
			for _, n := range networks {
				for _, link := range n.Subnetworks {
					name := path.Base(link)
					if _, ok := out[name]; ok {
						continue
					}
					out[name] = contracts.SubnetInfo{
						Name:    name,
						Network: n.Name,
						Region:  urlSegment(link, "regions"),
						Project: project,
					}
				}
			}
		}
		return out, nil
	})
}

func subnetInfo(s *compute.Subnetwork, project string) contracts.SubnetInfo {
	info := contracts.SubnetInfo{
		Name:    s.Name,
		CIDR:    s.IpCidrRange,
		Network: path.Base(s.Network),
		Region:  path.Base(s.Region),
		Project: project,
	}
	for _, r := range s.SecondaryIpRanges {
		info.DualCIDRs = append(info.DualCIDRs, r.IpCidrRange)
	}
	return info
}

// getSubnet looks in the own project first, then in the shared VPC host
func (p *Provider) getSubnet(ctx context.Context, name string) (*compute.Subnetwork, string, error) {
	var lastErr error
	for _, project := range p.projects() {
		subnet, err := p.compute.GetSubnetwork(ctx, project, p.region, name)
		if err == nil {
			return subnet, project, nil
		}
		if !isNotFound(err) {
			return nil, "", classify(err)
		}
		lastErr = err
	}
	return nil, "", contracts.NewNotFoundError(fmt.Sprintf("Subnet %s not found", name), lastErr)
}

// InfoSubnet describes a subnet, reporting the project that owns it
func (p *Provider) InfoSubnet(ctx context.Context, name string) (contracts.SubnetInfo, error) {
	return query(ctx, p, "info-subnet", name, func(ctx context.Context) (contracts.SubnetInfo, error) {
		subnet, project, err := p.getSubnet(ctx, name)
		if err != nil {
			return contracts.SubnetInfo{}, err
		}
		return subnetInfo(subnet, project), nil
	})
}

// CreateSubnet creates a subnet in the configured region under network (defaults to name).
// The subnet lives in the project owning the network, which is the shared VPC host for shared networks.
func (p *Provider) CreateSubnet(ctx context.Context, name, cidr, network, dualCIDR string) contracts.Result {
	return p.run(ctx, "create-subnet", name, func(ctx context.Context) contracts.Result {
		if network == "" {
			network = name
		}
		networks, err := p.ListNetworks(ctx)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		owner, ok := networks[network]
		if !ok {
			return contracts.Failure(contracts.ErrorTypeNotFound, "Network %s not found", network)
		}
		if !validCIDR(cidr) {
			return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid Cidr %s", cidr)
		}
		if dualCIDR != "" && !validCIDR(dualCIDR) {
			return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid Dual Cidr %s", dualCIDR)
		}
		net, err := p.compute.GetNetwork(ctx, owner.Project, network)
		if err != nil {
			return contracts.ResultFrom(classify(err))
		}
		subnet := &compute.Subnetwork{
			Name:        name,
			IpCidrRange: cidr,
			Network:     net.SelfLink,
			Region:      regionURL(owner.Project, p.region),
		}
		if dualCIDR != "" {
			subnet.SecondaryIpRanges = []*compute.SubnetworkSecondaryRange{{RangeName: "dual-" + name, IpCidrRange: dualCIDR}}
		}
		op, err := p.compute.InsertSubnetwork(ctx, owner.Project, p.region, subnet)
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// DeleteSubnet removes a subnet from the project that owns it
func (p *Provider) DeleteSubnet(ctx context.Context, name string) contracts.Result {
	return p.run(ctx, "delete-subnet", name, func(ctx context.Context) contracts.Result {
		subnets, err := p.ListSubnets(ctx)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		subnet, ok := subnets[name]
		if !ok {
			return contracts.Failure(contracts.ErrorTypeNotFound, "Subnet %s not found", name)
		}
		op, err := p.compute.DeleteSubnetwork(ctx, subnet.Project, p.region, name)
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// UpdateAliases replaces the alias ranges of a VM's primary interface.
// Each cidr is bound to the subnet's secondary range at the same position, or its last one.
func (p *Provider) UpdateAliases(ctx context.Context, name string, aliases []string) contracts.Result {
	return p.run(ctx, "update-aliases", name, func(ctx context.Context) contracts.Result {
		for _, cidr := range aliases {
			if !validCIDR(cidr) {
				return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid Cidr %s", cidr)
			}
		}
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		if len(vm.NetworkInterfaces) == 0 || vm.NetworkInterfaces[0].Subnetwork == "" {
			return contracts.Failure(contracts.ErrorTypePrecondition, "VM %s has no subnetwork", name)
		}
		nic := vm.NetworkInterfaces[0]
		subnet, _, err := p.getSubnet(ctx, path.Base(nic.Subnetwork))
		if err != nil {
			return contracts.ResultFrom(err)
		}
		if len(subnet.SecondaryIpRanges) == 0 {
			return contracts.Failure(contracts.ErrorTypePrecondition, "Subnet %s has no secondary ranges", subnet.Name)
		}
		update := &compute.NetworkInterface{
			Fingerprint:     nic.Fingerprint,
			AliasIpRanges:   []*compute.AliasIpRange{},
			ForceSendFields: []string{"AliasIpRanges"},
		}
		for i, cidr := range aliases {
			r := subnet.SecondaryIpRanges[min(i, len(subnet.SecondaryIpRanges)-1)]
			update.AliasIpRanges = append(update.AliasIpRanges, &compute.AliasIpRange{
				IpCidrRange:         cidr,
				SubnetworkRangeName: r.RangeName,
			})
		}
		nicName := nic.Name
		if nicName == "" {
			nicName = "nic0"
		}
		op, err := p.compute.UpdateNetworkInterface(ctx, p.project, p.zone, name, nicName, update)
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// VMPorts returns the subnets a VM is attached to
func (p *Provider) VMPorts(ctx context.Context, name string) ([]string, error) {
	return query(ctx, p, "vm-ports", name, func(ctx context.Context) ([]string, error) {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, nic := range vm.NetworkInterfaces {
			if nic.Subnetwork != "" {
				out = append(out, path.Base(nic.Subnetwork))
			}
		}
		return out, nil
	})
}
