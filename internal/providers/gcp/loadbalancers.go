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
	"path"
	"regexp"
	"strconv"
	"strings"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

const defaultCheckPort = 80

var trailingDigits = regexp.MustCompile(`\d+$`)

// loadBalancer carries the names and links shared by the steps of one load balancer
type loadBalancer struct {
	spec   contracts.LoadBalancerSpec
	name   string
	scheme string

	members       []string
	instanceGroup string
	xprojectNet   string
	xprojectOwner string

	healthURL  string
	groupURL   string
	backendURL string
	ipURL      string
	ip         string
}

func newLoadBalancer(spec contracts.LoadBalancerSpec) *loadBalancer {
	lb := &loadBalancer{
		spec:   spec,
		name:   strings.ReplaceAll(spec.Name, ".", "-"),
		scheme: "EXTERNAL",
	}
	if spec.Internal {
		lb.scheme = "INTERNAL"
	}
	if lb.spec.CheckPort == 0 {
		lb.spec.CheckPort = defaultCheckPort
	}
	return lb
}

// kubeTag returns the cluster tag of a control plane or worker VM name, or ""
func kubeTag(vm string) string {
	if strings.Contains(vm, "-ctlplane-") || (strings.Contains(vm, "-worker-") && trailingDigits.MatchString(vm)) {
		return strings.SplitN(vm, "-", 2)[0]
	}
	return ""
}

// CreateLoadBalancer composes health check, instance group, backend service, address,
// forwarding rule, firewall and DNS record, in that order. A failure leaves earlier parts in place.
func (p *Provider) CreateLoadBalancer(ctx context.Context, spec contracts.LoadBalancerSpec) contracts.Result {
	lb := newLoadBalancer(spec)
	return p.run(ctx, "create-loadbalancer", lb.name, func(ctx context.Context) contracts.Result {
		if len(spec.VMs) == 0 {
			return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Creating a load balancer requires to specify some vms")
		}
		if err := p.resolveMembers(ctx, lb); err != nil {
			return contracts.ResultFrom(err)
		}
		report := p.loadBalancerSteps(lb).Run(ctx)
		if !report.OK() {
			return contracts.ResultFrom(report.Err).With("completed", strings.Join(report.Completed, ","))
		}
		result := contracts.SuccessWith("ip", lb.ip)
		if spec.Domain != "" && spec.DNSClient == "" {
			if _, err := p.reserveDNS(ctx, spec.Name, nil, spec.Domain, lb.ip, spec.Alias); err != nil {
				p.warn(ctx, "dns reservation failed", "error", err.Error())
				result = result.With("dns", contracts.ResultFrom(err).Reason)
			}
		}
		return result
	})
}

// resolveMembers checks every VM exists, finds a reusable instance group and detects shared VPC use.
// Shared VPC ownership is taken from the first VM only; disagreeing VMs are logged.
func (p *Provider) resolveMembers(ctx context.Context, lb *loadBalancer) error {
	subnets, err := p.ListSubnets(ctx)
	if err != nil {
		return err
	}
	xproject := p.SharedProject()
	firstOwner := ""
	for index, name := range lb.spec.VMs {
		vm, err := p.compute.GetInstance(ctx, p.project, p.zone, name)
		if err != nil {
			if isNotFound(err) {
				return contracts.NewNotFoundError(fmt.Sprintf("Vm %s not found", name), err)
			}
			return classify(err)
		}
		if group := contracts.ParseLabels(vm.Labels).LoadBalancer; group != "" {
			lb.instanceGroup = group
		} else {
			lb.members = append(lb.members, name)
		}

		owner, subnet := "", ""
		for _, nic := range vm.NetworkInterfaces {
			if nic.Subnetwork != "" {
				subnet = path.Base(nic.Subnetwork)
				owner = subnets[subnet].Project
				break
			}
		}
		if index == 0 {
			firstOwner = owner
			if xproject != "" && owner == xproject {
				lb.xprojectNet, lb.xprojectOwner = subnet, owner
			}
		} else if owner != firstOwner {
			p.warn(ctx, "load balancer members use subnets owned by different projects",
				"vm", name, "owner", owner, "firstOwner", firstOwner)
		}
	}
	return nil
}

func (p *Provider) loadBalancerSteps(lb *loadBalancer) steps {
	s := steps{
		{name: "labels", run: func(ctx context.Context) error {
			for _, vm := range lb.members {
				if err := p.setLabel(ctx, vm, contracts.LabelLoadBalancer, lb.name); err != nil {
					return err
				}
			}
			return nil
		}},
		{name: "healthcheck", run: p.createHealthCheck(lb), cleanup: p.deleteHealthChecks(lb)},
		{name: "instancegroup", run: p.createInstanceGroup(lb), cleanup: p.deleteInstanceGroup(lb)},
		{name: "backendservice", run: p.createBackendService(lb), cleanup: func(ctx context.Context) error {
			op, err := p.compute.DeleteBackendService(ctx, p.project, p.region, lb.name)
			return p.apply(ctx, op, err)
		}},
		{name: "address", run: p.createLBAddress(lb), cleanup: p.deleteLBAddress(lb)},
		{name: "forwardingrule", run: p.createForwardingRule(lb), cleanup: p.deleteForwardingRules(lb)},
	}
	if lb.xprojectNet == "" {
		s = append(s, step{name: "firewall", run: p.createLBFirewall(lb), cleanup: func(ctx context.Context) error {
			op, err := p.compute.DeleteFirewall(ctx, p.project, lb.name)
			return p.apply(ctx, op, err)
		}})
	}
	return s
}

func (p *Provider) createHealthCheck(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		check := &compute.HealthCheck{
			Name:               lb.name,
			CheckIntervalSec:   10,
			TimeoutSec:         10,
			UnhealthyThreshold: 3,
			HealthyThreshold:   3,
			Type:               "TCP",
			TcpHealthCheck:     &compute.TCPHealthCheck{Port: int64(lb.spec.CheckPort)},
		}
		var (
			op  *compute.Operation
			err error
		)
		if lb.spec.Internal {
			op, err = p.compute.InsertHealthCheck(ctx, p.project, check)
		} else {
			op, err = p.compute.InsertRegionHealthCheck(ctx, p.project, p.region, check)
		}
		if err := p.apply(ctx, op, err); err != nil {
			return err
		}
		lb.healthURL = op.TargetLink
		return nil
	}
}

func (p *Provider) deleteHealthChecks(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		op, err := p.compute.DeleteRegionHealthCheck(ctx, p.project, p.region, lb.name)
		if err := p.apply(ctx, op, err); err != nil && !isNotFound(err) {
			return err
		}
		op, err = p.compute.DeleteHealthCheck(ctx, p.project, lb.name)
		if err := p.apply(ctx, op, err); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	}
}

func (p *Provider) createInstanceGroup(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if lb.instanceGroup != "" {
			group, err := p.compute.GetInstanceGroup(ctx, p.project, p.zone, lb.instanceGroup)
			if err != nil {
				return classify(err)
			}
			lb.groupURL = group.SelfLink
			return nil
		}
		op, err := p.compute.InsertInstanceGroup(ctx, p.project, p.zone, &compute.InstanceGroup{Name: lb.name})
		if err := p.apply(ctx, op, err); err != nil {
			return err
		}
		lb.groupURL = op.TargetLink
		if len(lb.members) == 0 {
			return nil
		}
		req := &compute.InstanceGroupsAddInstancesRequest{}
		for _, vm := range lb.members {
			req.Instances = append(req.Instances, &compute.InstanceReference{
				Instance: fmt.Sprintf("%s/instances/%s", zoneURL(p.project, p.zone), vm),
			})
		}
		op, err = p.compute.AddInstancesToGroup(ctx, p.project, p.zone, lb.name, req)
		return p.apply(ctx, op, err)
	}
}

func (p *Provider) deleteInstanceGroup(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		op, err := p.compute.DeleteInstanceGroup(ctx, p.project, p.zone, lb.name)
		if err := p.apply(ctx, op, err); err != nil && !isNotFound(err) {
			p.warn(ctx, "failed to delete instance group", "group", lb.name, "error", err.Error())
		}
		return nil
	}
}

func (p *Provider) createBackendService(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		op, err := p.compute.InsertBackendService(ctx, p.project, p.region, &compute.BackendService{
			Name:                lb.name,
			Backends:            []*compute.Backend{{Group: lb.groupURL}},
			LoadBalancingScheme: lb.scheme,
			Protocol:            "TCP",
			HealthChecks:        []string{lb.healthURL},
		})
		if err := p.apply(ctx, op, err); err != nil {
			return err
		}
		lb.backendURL = op.TargetLink
		return nil
	}
}

// createLBAddress reserves an address unless one was supplied, labelling it with the DNS owner
func (p *Provider) createLBAddress(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if lb.spec.IP != "" {
			lb.ip, lb.ipURL = lb.spec.IP, lb.spec.IP
			return nil
		}
		op, err := p.compute.InsertAddress(ctx, p.project, p.region, &compute.Address{Name: lb.name, AddressType: lb.scheme})
		if err := p.apply(ctx, op, err); err != nil {
			return err
		}
		lb.ipURL = op.TargetLink
		address, err := p.compute.GetAddress(ctx, p.project, p.region, lb.name)
		if err != nil {
			return classify(err)
		}
		lb.ip = address.Address
		logging.FromContext(ctx).Info("Using load balancer ip", "ip", lb.ip)
		if lb.spec.Domain == "" {
			return nil
		}
		labels := contracts.Labels{Domain: lb.spec.Domain, DNSClient: lb.spec.DNSClient}
		op, err = p.compute.SetAddressLabels(ctx, p.project, p.region, lb.name, &compute.RegionSetLabelsRequest{
			Labels:           labels.Encode(),
			LabelFingerprint: address.LabelFingerprint,
		})
		return p.apply(ctx, op, err)
	}
}

// deleteLBAddress removes the DNS records recorded on the address, then the address
func (p *Provider) deleteLBAddress(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		address, err := p.compute.GetAddress(ctx, p.project, p.region, lb.name)
		if err != nil {
			return classify(err)
		}
		labels := contracts.ParseLabels(address.Labels)
		if labels.Domain != "" && labels.DNSClient == "" {
			if err := p.deleteDNS(ctx, lb.spec.Name, labels.Domain); err != nil {
				p.warn(ctx, "failed to delete dns records", "domain", labels.Domain, "error", err.Error())
			}
		}
		op, err := p.compute.DeleteAddress(ctx, p.project, p.region, lb.name)
		return p.apply(ctx, op, err)
	}
}

func (p *Provider) createForwardingRule(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		rule := &compute.ForwardingRule{
			Name:                lb.name,
			IPAddress:           lb.ipURL,
			IPProtocol:          "TCP",
			BackendService:      lb.backendURL,
			LoadBalancingScheme: lb.scheme,
		}
		for _, port := range lb.spec.Ports {
			rule.Ports = append(rule.Ports, strconv.Itoa(port))
		}
		if lb.xprojectNet != "" {
			rule.Subnetwork = fmt.Sprintf("projects/%s/regions/%s/subnetworks/%s", lb.xprojectOwner, p.region, lb.xprojectNet)
		}
		op, err := p.compute.InsertForwardingRule(ctx, p.project, p.region, rule)
		return p.apply(ctx, op, err)
	}
}

// deleteForwardingRules removes every rule named after the load balancer and waits for each to be gone
func (p *Provider) deleteForwardingRules(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		rules, err := p.compute.ListForwardingRules(ctx, p.project, p.region)
		if err != nil {
			return classify(err)
		}
		for _, rule := range rules {
			if rule.Name != lb.name && !strings.HasPrefix(rule.Name, lb.name+"-") {
				continue
			}
			op, err := p.compute.DeleteForwardingRule(ctx, p.project, p.region, rule.Name)
			if err := p.apply(ctx, op, err); err != nil && !isNotFound(err) {
				return err
			}
			if err := p.waitForwardingRuleGone(ctx, rule.Name); err != nil {
				return err
			}
		}
		return nil
	}
}

func (p *Provider) waitForwardingRuleGone(ctx context.Context, name string) error {
	outcome, err := p.poll(ctx, "forwarding-rule-gone", p.forwardingRuleGone, func(ctx context.Context) (bool, error) {
		rules, err := p.compute.ListForwardingRules(ctx, p.project, p.region)
		if err != nil {
			return false, err
		}
		for _, r := range rules {
			if r.Name == name {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return classify(err)
	}
	if outcome == util.PollExhausted {
		p.warn(ctx, "Timeout waiting for forwarding rule to be gone", "rule", name)
	}
	return nil
}

func (p *Provider) createLBFirewall(lb *loadBalancer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		rule := &compute.Firewall{
			Name:      lb.name,
			Direction: "INGRESS",
			Allowed:   []*compute.FirewallAllowed{{IPProtocol: "tcp"}},
		}
		for _, port := range lb.spec.Ports {
			rule.Allowed[0].Ports = append(rule.Allowed[0].Ports, strconv.Itoa(port))
		}
		if tag := kubeTag(lb.spec.VMs[0]); tag != "" {
			rule.TargetTags = []string{tag}
		}
		op, err := p.compute.InsertFirewall(ctx, p.project, rule)
		return p.apply(ctx, op, err)
	}
}

// DeleteLoadBalancer tears every part down in reverse order; missing parts are skipped
func (p *Provider) DeleteLoadBalancer(ctx context.Context, name string) contracts.Result {
	lb := newLoadBalancer(contracts.LoadBalancerSpec{Name: name})
	return p.run(ctx, "delete-loadbalancer", lb.name, func(ctx context.Context) contracts.Result {
		if failed := p.loadBalancerSteps(lb).Cleanup(ctx); len(failed) > 0 {
			return contracts.Failure(contracts.ErrorTypeBackend, "failed to delete %s of load balancer %s",
				strings.Join(failed, ", "), lb.name)
		}
		return contracts.Success()
	})
}

// ListLoadBalancers returns global and regional forwarding rules
func (p *Provider) ListLoadBalancers(ctx context.Context) ([]contracts.LoadBalancerInfo, error) {
	return query(ctx, p, "list-loadbalancers", p.region, func(ctx context.Context) ([]contracts.LoadBalancerInfo, error) {
		global, err := p.compute.ListGlobalForwardingRules(ctx, p.project)
		if err != nil {
			return nil, err
		}
		regional, err := p.compute.ListForwardingRules(ctx, p.project, p.region)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.LoadBalancerInfo, 0, len(global)+len(regional))
		for _, rule := range append(global, regional...) {
			out = append(out, contracts.LoadBalancerInfo{
				Name:     rule.Name,
				IP:       rule.IPAddress,
				Protocol: rule.IPProtocol,
				Ports:    util.FirstNonEmpty(rule.PortRange, strings.Join(rule.Ports, ",")),
				Target:   path.Base(util.FirstNonEmpty(rule.Target, rule.BackendService)),
			})
		}
		return out, nil
	})
}
