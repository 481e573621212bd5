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

package gcpfake

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	compute "google.golang.org/api/compute/v1"
)

// AddNetwork stores network in project
func (c *Cloud) AddNetwork(project string, network *compute.Network) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := clone(network)
	n.SelfLink = globalLink(project, "networks", n.Name)
	c.networks[key(project, n.Name)] = n
}

// AddSubnetwork stores subnet in project and region
func (c *Cloud) AddSubnetwork(project, region string, subnet *compute.Subnetwork) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := clone(subnet)
	s.Region = regionLink(project, region)
	s.SelfLink = regionalLink(project, region, "subnetworks", s.Name)
	c.subnets[key(project, region, s.Name)] = s
	if n := c.networkByLink(s.Network); n != nil {
		n.Subnetworks = append(n.Subnetworks, s.SelfLink)
	}
}

// AddFirewall stores firewall in project
func (c *Cloud) AddFirewall(project string, firewall *compute.Firewall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fw := clone(firewall)
	fw.SelfLink = globalLink(project, "firewalls", fw.Name)
	c.firewalls[key(project, fw.Name)] = fw
}

// AddGlobalForwardingRule stores a global forwarding rule in project
func (c *Cloud) AddGlobalForwardingRule(project string, rule *compute.ForwardingRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := clone(rule)
	r.SelfLink = globalLink(project, "forwardingRules", r.Name)
	c.globalRules[key(project, r.Name)] = r
}

// GroupMembers returns the instance links added to an instance group
func (c *Cloud) GroupMembers(project, zone, group string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.members[key(project, zone, group)]...)
}

func (c *Cloud) GetNetwork(ctx context.Context, project, name string) (*compute.Network, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetNetwork", name, false); err != nil {
		return nil, err
	}
	n, ok := c.networks[key(project, name)]
	if !ok {
		return nil, notFound("network", name)
	}
	return clone(n), nil
}

func (c *Cloud) ListNetworks(ctx context.Context, project string) ([]*compute.Network, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListNetworks", project, false); err != nil {
		return nil, err
	}
	return sortedValues(c.networks, project+"/"), nil
}

func (c *Cloud) InsertNetwork(ctx context.Context, project string, network *compute.Network) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertNetwork", network.Name, true); err != nil {
		return nil, err
	}
	k := key(project, network.Name)
	if _, ok := c.networks[k]; ok {
		return nil, alreadyExists("network", network.Name)
	}
	n := clone(network)
	n.SelfLink = globalLink(project, "networks", n.Name)
	n.CreationTimestamp = c.timestamp()
	c.networks[k] = n
	return c.newOperation("InsertNetwork", project, "", "", n.SelfLink), nil
}

func (c *Cloud) DeleteNetwork(ctx context.Context, project, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteNetwork", name, true); err != nil {
		return nil, err
	}
	k := key(project, name)
	n, ok := c.networks[k]
	if !ok {
		return nil, notFound("network", name)
	}
	for _, s := range c.subnets {
		if s.Network == n.SelfLink {
			return nil, inUse("network", name, s.SelfLink)
		}
	}
	for _, fw := range c.firewalls {
		if fw.Network == n.SelfLink {
			return nil, inUse("network", name, fw.SelfLink)
		}
	}
	delete(c.networks, k)
	return c.newOperation("DeleteNetwork", project, "", "", n.SelfLink), nil
}

func (c *Cloud) GetSubnetwork(ctx context.Context, project, region, name string) (*compute.Subnetwork, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetSubnetwork", name, false); err != nil {
		return nil, err
	}
	s, ok := c.subnets[key(project, region, name)]
	if !ok {
		return nil, notFound("subnetwork", name)
	}
	return clone(s), nil
}

func (c *Cloud) ListSubnetworks(ctx context.Context, project, region string) ([]*compute.Subnetwork, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListSubnetworks", region, false); err != nil {
		return nil, err
	}
	return sortedValues(c.subnets, key(project, region)+"/"), nil
}

func (c *Cloud) networkByLink(link string) *compute.Network {
	for _, n := range c.networks {
		if n.SelfLink == link || strings.HasSuffix(n.SelfLink, "/"+strings.TrimPrefix(link, "/")) {
			return n
		}
	}
	return nil
}

func (c *Cloud) InsertSubnetwork(ctx context.Context, project, region string, subnet *compute.Subnetwork) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertSubnetwork", subnet.Name, true); err != nil {
		return nil, err
	}
	k := key(project, region, subnet.Name)
	if _, ok := c.subnets[k]; ok {
		return nil, alreadyExists("subnetwork", subnet.Name)
	}
	network := c.networkByLink(subnet.Network)
	if network == nil {
		return nil, notFound("network", lastSegment(subnet.Network))
	}
	if owner := linkSegment(network.SelfLink, "projects"); owner != project {
		return nil, apiError(http.StatusBadRequest, "invalid",
			"Invalid value for field 'resource.network': '%s'. Network must belong to project '%s'", network.SelfLink, project)
	}
	s := clone(subnet)
	s.Network = network.SelfLink
	s.Region = regionLink(project, region)
	s.SelfLink = regionalLink(project, region, "subnetworks", s.Name)
	s.CreationTimestamp = c.timestamp()
	s.Fingerprint = c.fingerprint("subfp")
	c.subnets[k] = s
	network.Subnetworks = append(network.Subnetworks, s.SelfLink)
	return c.newOperation("InsertSubnetwork", project, "", region, s.SelfLink), nil
}

func (c *Cloud) DeleteSubnetwork(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteSubnetwork", name, true); err != nil {
		return nil, err
	}
	k := key(project, region, name)
	s, ok := c.subnets[k]
	if !ok {
		return nil, notFound("subnetwork", name)
	}
	for _, inst := range c.instances {
		for _, nic := range inst.NetworkInterfaces {
			if nic.Subnetwork != "" && lastSegment(nic.Subnetwork) == name {
				return nil, inUse("subnetwork", name, inst.SelfLink)
			}
		}
	}
	delete(c.subnets, k)
	if n := c.networkByLink(s.Network); n != nil {
		n.Subnetworks = removeString(n.Subnetworks, s.SelfLink)
	}
	return c.newOperation("DeleteSubnetwork", project, "", region, s.SelfLink), nil
}

func (c *Cloud) ListFirewalls(ctx context.Context, project string) ([]*compute.Firewall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListFirewalls", project, false); err != nil {
		return nil, err
	}
	return sortedValues(c.firewalls, project+"/"), nil
}

func (c *Cloud) InsertFirewall(ctx context.Context, project string, firewall *compute.Firewall) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertFirewall", firewall.Name, true); err != nil {
		return nil, err
	}
	k := key(project, firewall.Name)
	if _, ok := c.firewalls[k]; ok {
		return nil, alreadyExists("firewall", firewall.Name)
	}
	fw := clone(firewall)
	if fw.Network == "" {
		fw.Network = globalLink(project, "networks", "default")
	} else if n := c.networkByLink(fw.Network); n != nil {
		fw.Network = n.SelfLink
	}
	if fw.Direction == "" {
		fw.Direction = "INGRESS"
	}
	fw.SelfLink = globalLink(project, "firewalls", fw.Name)
	fw.CreationTimestamp = c.timestamp()
	c.firewalls[k] = fw
	return c.newOperation("InsertFirewall", project, "", "", fw.SelfLink), nil
}

func (c *Cloud) DeleteFirewall(ctx context.Context, project, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteFirewall", name, true); err != nil {
		return nil, err
	}
	k := key(project, name)
	fw, ok := c.firewalls[k]
	if !ok {
		return nil, notFound("firewall", name)
	}
	delete(c.firewalls, k)
	return c.newOperation("DeleteFirewall", project, "", "", fw.SelfLink), nil
}

func (c *Cloud) GetAddress(ctx context.Context, project, region, name string) (*compute.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetAddress", name, false); err != nil {
		return nil, err
	}
	a, ok := c.addresses[key(project, region, name)]
	if !ok {
		return nil, notFound("address", name)
	}
	return clone(a), nil
}

func (c *Cloud) InsertAddress(ctx context.Context, project, region string, address *compute.Address) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertAddress", address.Name, true); err != nil {
		return nil, err
	}
	k := key(project, region, address.Name)
	if _, ok := c.addresses[k]; ok {
		return nil, alreadyExists("address", address.Name)
	}
	a := clone(address)
	if a.AddressType == "" {
		a.AddressType = "EXTERNAL"
	}
	if a.Address == "" {
		if a.AddressType == "INTERNAL" {
			a.Address = fmt.Sprintf("10.132.0.%d", c.next()%250+2)
		} else {
			a.Address = fmt.Sprintf("35.%d.%d.%d", 180+c.next()%50, c.next()%250, c.next()%250+1)
		}
	}
	a.Status = "RESERVED"
	a.Region = regionLink(project, region)
	a.SelfLink = regionalLink(project, region, "addresses", a.Name)
	a.LabelFingerprint = c.fingerprint("alfp")
	a.CreationTimestamp = c.timestamp()
	c.addresses[k] = a
	return c.newOperation("InsertAddress", project, "", region, a.SelfLink), nil
}

func (c *Cloud) DeleteAddress(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteAddress", name, true); err != nil {
		return nil, err
	}
	k := key(project, region, name)
	a, ok := c.addresses[k]
	if !ok {
		return nil, notFound("address", name)
	}
	for _, r := range c.rules {
		if r.IPAddress == a.Address {
			return nil, inUse("address", name, r.SelfLink)
		}
	}
	delete(c.addresses, k)
	return c.newOperation("DeleteAddress", project, "", region, a.SelfLink), nil
}

func (c *Cloud) SetAddressLabels(ctx context.Context, project, region, name string, req *compute.RegionSetLabelsRequest) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SetAddressLabels", name, true); err != nil {
		return nil, err
	}
	a, ok := c.addresses[key(project, region, name)]
	if !ok {
		return nil, notFound("address", name)
	}
	if req.LabelFingerprint != a.LabelFingerprint {
		return nil, fingerprintMismatch("labels")
	}
	a.Labels = map[string]string{}
	for k, v := range req.Labels {
		a.Labels[k] = v
	}
	a.LabelFingerprint = c.fingerprint("alfp")
	return c.newOperation("SetAddressLabels", project, "", region, a.SelfLink), nil
}

func (c *Cloud) GetInstanceGroup(ctx context.Context, project, zone, name string) (*compute.InstanceGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetInstanceGroup", name, false); err != nil {
		return nil, err
	}
	g, ok := c.groups[key(project, zone, name)]
	if !ok {
		return nil, notFound("instance group", name)
	}
	return clone(g), nil
}

func (c *Cloud) ListInstanceGroups(ctx context.Context, project, zone string) ([]*compute.InstanceGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListInstanceGroups", zone, false); err != nil {
		return nil, err
	}
	return sortedValues(c.groups, key(project, zone)+"/"), nil
}

func (c *Cloud) InsertInstanceGroup(ctx context.Context, project, zone string, group *compute.InstanceGroup) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertInstanceGroup", group.Name, true); err != nil {
		return nil, err
	}
	k := key(project, zone, group.Name)
	if _, ok := c.groups[k]; ok {
		return nil, alreadyExists("instance group", group.Name)
	}
	g := clone(group)
	g.Zone = zoneLink(project, zone)
	g.SelfLink = zonalLink(project, zone, "instanceGroups", g.Name)
	g.CreationTimestamp = c.timestamp()
	c.groups[k] = g
	return c.newOperation("InsertInstanceGroup", project, zone, "", g.SelfLink), nil
}

func (c *Cloud) DeleteInstanceGroup(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteInstanceGroup", name, true); err != nil {
		return nil, err
	}
	k := key(project, zone, name)
	g, ok := c.groups[k]
	if !ok {
		return nil, notFound("instance group", name)
	}
	for _, b := range c.backends {
		for _, backend := range b.Backends {
			if backend.Group == g.SelfLink {
				return nil, inUse("instance group", name, b.SelfLink)
			}
		}
	}
	delete(c.groups, k)
	delete(c.members, k)
	return c.newOperation("DeleteInstanceGroup", project, zone, "", g.SelfLink), nil
}

func (c *Cloud) AddInstancesToGroup(ctx context.Context, project, zone, group string, req *compute.InstanceGroupsAddInstancesRequest) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("AddInstancesToGroup", group, true); err != nil {
		return nil, err
	}
	k := key(project, zone, group)
	g, ok := c.groups[k]
	if !ok {
		return nil, notFound("instance group", group)
	}
	for _, ref := range req.Instances {
		if _, ok := c.instances[key(project, zone, lastSegment(ref.Instance))]; !ok {
			return nil, apiError(http.StatusBadRequest, "invalid", "Instance '%s' does not exist", ref.Instance)
		}
	}
	for _, ref := range req.Instances {
		c.members[k] = append(c.members[k], ref.Instance)
	}
	g.Size = int64(len(c.members[k]))
	return c.newOperation("AddInstancesToGroup", project, zone, "", g.SelfLink), nil
}

func (c *Cloud) healthCheckInUse(link string) string {
	for _, b := range c.backends {
		for _, hc := range b.HealthChecks {
			if hc == link {
				return b.SelfLink
			}
		}
	}
	return ""
}

func (c *Cloud) ListHealthChecks(ctx context.Context, project string) ([]*compute.HealthCheck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListHealthChecks", project, false); err != nil {
		return nil, err
	}
	return sortedValues(c.healthChecks, project+"/"), nil
}

func (c *Cloud) InsertHealthCheck(ctx context.Context, project string, check *compute.HealthCheck) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertHealthCheck", check.Name, true); err != nil {
		return nil, err
	}
	k := key(project, check.Name)
	if _, ok := c.healthChecks[k]; ok {
		return nil, alreadyExists("health check", check.Name)
	}
	hc := clone(check)
	hc.SelfLink = globalLink(project, "healthChecks", hc.Name)
	hc.CreationTimestamp = c.timestamp()
	c.healthChecks[k] = hc
	return c.newOperation("InsertHealthCheck", project, "", "", hc.SelfLink), nil
}

func (c *Cloud) DeleteHealthCheck(ctx context.Context, project, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteHealthCheck", name, true); err != nil {
		return nil, err
	}
	k := key(project, name)
	hc, ok := c.healthChecks[k]
	if !ok {
		return nil, notFound("health check", name)
	}
	if by := c.healthCheckInUse(hc.SelfLink); by != "" {
		return nil, inUse("health check", name, by)
	}
	delete(c.healthChecks, k)
	return c.newOperation("DeleteHealthCheck", project, "", "", hc.SelfLink), nil
}

func (c *Cloud) ListRegionHealthChecks(ctx context.Context, project, region string) ([]*compute.HealthCheck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListRegionHealthChecks", region, false); err != nil {
		return nil, err
	}
	return sortedValues(c.regionHealthChecks, key(project, region)+"/"), nil
}

func (c *Cloud) InsertRegionHealthCheck(ctx context.Context, project, region string, check *compute.HealthCheck) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertRegionHealthCheck", check.Name, true); err != nil {
		return nil, err
	}
	k := key(project, region, check.Name)
	if _, ok := c.regionHealthChecks[k]; ok {
		return nil, alreadyExists("health check", check.Name)
	}
	hc := clone(check)
	hc.Region = regionLink(project, region)
	hc.SelfLink = regionalLink(project, region, "healthChecks", hc.Name)
	hc.CreationTimestamp = c.timestamp()
	c.regionHealthChecks[k] = hc
	return c.newOperation("InsertRegionHealthCheck", project, "", region, hc.SelfLink), nil
}

func (c *Cloud) DeleteRegionHealthCheck(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteRegionHealthCheck", name, true); err != nil {
		return nil, err
	}
	k := key(project, region, name)
	hc, ok := c.regionHealthChecks[k]
	if !ok {
		return nil, notFound("health check", name)
	}
	if by := c.healthCheckInUse(hc.SelfLink); by != "" {
		return nil, inUse("health check", name, by)
	}
	delete(c.regionHealthChecks, k)
	return c.newOperation("DeleteRegionHealthCheck", project, "", region, hc.SelfLink), nil
}

func (c *Cloud) ListBackendServices(ctx context.Context, project, region string) ([]*compute.BackendService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListBackendServices", region, false); err != nil {
		return nil, err
	}
	return sortedValues(c.backends, key(project, region)+"/"), nil
}

func (c *Cloud) InsertBackendService(ctx context.Context, project, region string, service *compute.BackendService) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertBackendService", service.Name, true); err != nil {
		return nil, err
	}
	k := key(project, region, service.Name)
	if _, ok := c.backends[k]; ok {
		return nil, alreadyExists("backend service", service.Name)
	}
	b := clone(service)
	b.Region = regionLink(project, region)
	b.SelfLink = regionalLink(project, region, "backendServices", b.Name)
	b.CreationTimestamp = c.timestamp()
	c.backends[k] = b
	return c.newOperation("InsertBackendService", project, "", region, b.SelfLink), nil
}

func (c *Cloud) DeleteBackendService(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteBackendService", name, true); err != nil {
		return nil, err
	}
	k := key(project, region, name)
	b, ok := c.backends[k]
	if !ok {
		return nil, notFound("backend service", name)
	}
	for _, r := range c.rules {
		if r.BackendService == b.SelfLink {
			return nil, inUse("backend service", name, r.SelfLink)
		}
	}
	delete(c.backends, k)
	return c.newOperation("DeleteBackendService", project, "", region, b.SelfLink), nil
}

// ListForwardingRules also returns recently deleted rules until they stop lingering
func (c *Cloud) ListForwardingRules(ctx context.Context, project, region string) ([]*compute.ForwardingRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListForwardingRules", region, false); err != nil {
		return nil, err
	}
	prefix := key(project, region) + "/"
	out := sortedValues(c.rules, prefix)
	for k, l := range c.lingering {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if l.lists <= 0 {
			delete(c.lingering, k)
			continue
		}
		l.lists--
		out = append(out, clone(l.rule))
	}
	return out, nil
}

func (c *Cloud) ListGlobalForwardingRules(ctx context.Context, project string) ([]*compute.ForwardingRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListGlobalForwardingRules", project, false); err != nil {
		return nil, err
	}
	return sortedValues(c.globalRules, project+"/"), nil
}

func (c *Cloud) InsertForwardingRule(ctx context.Context, project, region string, rule *compute.ForwardingRule) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertForwardingRule", rule.Name, true); err != nil {
		return nil, err
	}
	k := key(project, region, rule.Name)
	if _, ok := c.rules[k]; ok {
		return nil, alreadyExists("forwarding rule", rule.Name)
	}
	r := clone(rule)
	switch {
	case strings.HasPrefix(r.IPAddress, "https://"):
		var found bool
		for _, a := range c.addresses {
			if a.SelfLink == r.IPAddress {
				r.IPAddress, found = a.Address, true
				break
			}
		}
		if !found {
			return nil, notFound("address", lastSegment(r.IPAddress))
		}
	case r.IPAddress == "":
		r.IPAddress = fmt.Sprintf("35.%d.%d.%d", 200+c.next()%50, c.next()%250, c.next()%250+1)
	}
	r.Region = regionLink(project, region)
	r.SelfLink = regionalLink(project, region, "forwardingRules", r.Name)
	r.CreationTimestamp = c.timestamp()
	c.rules[k] = r
	delete(c.lingering, k)
	return c.newOperation("InsertForwardingRule", project, "", region, r.SelfLink), nil
}

func (c *Cloud) DeleteForwardingRule(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteForwardingRule", name, true); err != nil {
		return nil, err
	}
	k := key(project, region, name)
	r, ok := c.rules[k]
	if !ok {
		return nil, notFound("forwarding rule", name)
	}
	delete(c.rules, k)
	if c.cfg.ForwardingRuleLingers > 0 {
		c.lingering[k] = &lingering{rule: r, lists: c.cfg.ForwardingRuleLingers}
	}
	return c.newOperation("DeleteForwardingRule", project, "", region, r.SelfLink), nil
}
