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
	"path"
	"sort"
	"strings"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// ListSecurityGroups returns the firewall rules of the project sorted by name
func (p *Provider) ListSecurityGroups(ctx context.Context) ([]contracts.SecurityGroupInfo, error) {
	return query(ctx, p, "list-security-groups", p.project, func(ctx context.Context) ([]contracts.SecurityGroupInfo, error) {
		firewalls, err := p.compute.ListFirewalls(ctx, p.project)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.SecurityGroupInfo, 0, len(firewalls))
		for _, fw := range firewalls {
			out = append(out, contracts.SecurityGroupInfo{
				Name:       fw.Name,
				Network:    path.Base(fw.Network),
				Direction:  fw.Direction,
				Ports:      firewallPorts(fw),
				TargetTags: fw.TargetTags,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}

func firewallPorts(fw *compute.Firewall) []string {
	var out []string
	for _, a := range fw.Allowed {
		if len(a.Ports) == 0 {
			out = append(out, a.IPProtocol)
			continue
		}
		for _, port := range a.Ports {
			out = append(out, a.IPProtocol+"/"+port)
		}
	}
	return out
}

// securityGroupTarget returns the tag an api-/apps- rule is scoped to
func securityGroupTarget(name string) string {
	for _, prefix := range []string{"api-", "apps-"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return ""
}

// CreateSecurityGroup opens tcp ports inbound; api- and apps- rules target the cluster tag
func (p *Provider) CreateSecurityGroup(ctx context.Context, name string, ports []string) contracts.Result {
	sane := strings.ReplaceAll(name, ".", "-")
	return p.run(ctx, "create-security-group", sane, func(ctx context.Context) contracts.Result {
		rule := &compute.Firewall{
			Name:      sane,
			Direction: "INGRESS",
			Allowed:   []*compute.FirewallAllowed{{IPProtocol: "tcp", Ports: ports}},
		}
		if tag := securityGroupTarget(sane); tag != "" {
			rule.TargetTags = []string{tag}
		}
		op, err := p.compute.InsertFirewall(ctx, p.project, rule)
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err)
		}
		return contracts.SuccessWith("name", sane)
	})
}

// DeleteSecurityGroup removes a firewall rule
func (p *Provider) DeleteSecurityGroup(ctx context.Context, name string) contracts.Result {
	return p.run(ctx, "delete-security-group", name, func(ctx context.Context) contracts.Result {
		op, err := p.compute.DeleteFirewall(ctx, p.project, name)
		if err != nil && isNotFound(err) {
			return contracts.Failure(contracts.ErrorTypeNotFound, "Security group %s not found", name)
		}
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}
