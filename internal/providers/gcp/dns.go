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
	"strings"

	compute "google.golang.org/api/compute/v1"
	dns "google.golang.org/api/dns/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

const recordTTL = 300

// findZone returns the managed zone serving domain, or nil
func (p *Provider) findZone(ctx context.Context, domain string) (*dns.ManagedZone, error) {
	zones, err := p.dns.ListManagedZones(ctx, p.project)
	if err != nil {
		return nil, classify(err)
	}
	for _, z := range zones {
		if z.DnsName == domain+"." || z.Name == domain {
			return z, nil
		}
	}
	return nil, nil
}

// ReserveDNS registers an A record for a VM plus its aliases in one change-set
func (p *Provider) ReserveDNS(ctx context.Context, name string, nets []contracts.NetSpec, domain, ip string, alias []string) contracts.Result {
	return p.run(ctx, "reserve-dns", name, func(ctx context.Context) contracts.Result {
		addr, err := p.reserveDNS(ctx, name, nets, domain, ip, alias)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		return contracts.SuccessWith("ip", addr)
	})
}

// reserveDNS resolves the address of name and submits its records; it returns the address used
func (p *Provider) reserveDNS(ctx context.Context, name string, nets []contracts.NetSpec, domain, ip string, alias []string) (string, error) {
	if domain == "" && len(nets) > 0 {
		domain = nets[0].Name
	}
	rn := contracts.ParseRecordName(name, domain)
	zone, err := p.findZone(ctx, rn.Domain)
	if err != nil {
		return "", err
	}
	if zone == nil {
		return "", contracts.NewNotFoundError(fmt.Sprintf("Domain %s not found", rn.Domain), nil)
	}

	internalIP := ""
	if rn.IsClusterNode() {
		internalIP, err = p.waitForAddress(ctx, "internal-ip", name, primaryInternalIP)
		if err != nil {
			return "", err
		}
	}
	if ip == "" && len(nets) > 0 {
		ip = nets[0].IP
	}
	if ip == "" {
		ip, err = p.waitForAddress(ctx, "public-ip", name, p.instanceIP)
		if err != nil {
			return "", err
		}
		if ip != "" {
			p.promoteAddress(ctx, name, rn.Host, ip)
		}
	}
	if ip == "" {
		return "", contracts.NewTimeoutError(fmt.Sprintf("Couldn't assign DNS for %s", name), nil)
	}

	recordIP := util.FirstNonEmpty(internalIP, ip)
	change := &dns.Change{Additions: []*dns.ResourceRecordSet{
		{Name: rn.Entry(), Type: "A", Ttl: recordTTL, Rrdatas: []string{recordIP}},
	}}
	for _, a := range alias {
		if a == "*" {
			change.Additions = append(change.Additions, &dns.ResourceRecordSet{
				Name: rn.Wildcard(), Type: "A", Ttl: recordTTL, Rrdatas: []string{ip},
			})
			continue
		}
		change.Additions = append(change.Additions, &dns.ResourceRecordSet{
			Name: rn.Alias(a), Type: "CNAME", Ttl: recordTTL, Rrdatas: []string{rn.Entry()},
		})
	}
	if _, err := p.dns.ApplyChange(ctx, p.project, zone.Name, change); err != nil {
		return "", classify(err)
	}
	return recordIP, nil
}

func (p *Provider) instanceIP(vm *compute.Instance) string {
	if !p.public {
		return primaryInternalIP(vm)
	}
	return natIP(vm)
}

// waitForAddress polls the VM until pick returns an address or the address budget runs out
func (p *Provider) waitForAddress(ctx context.Context, loop, name string, pick func(*compute.Instance) string) (string, error) {
	log := logging.FromContext(ctx)
	var found string
	_, err := p.poll(ctx, loop, p.address, func(ctx context.Context) (bool, error) {
		vm, err := p.compute.GetInstance(ctx, p.project, p.zone, name)
		if err != nil && !isNotFound(err) {
			return false, err
		}
		if vm != nil {
			found = pick(vm)
		}
		if found == "" {
			log.Info("Waiting to grab ip and create DNS record", "vm", name, "loop", loop)
		}
		return found != "", nil
	})
	if err != nil {
		return "", classify(err)
	}
	return found, nil
}

// promoteAddress reserves an ephemeral external address under the VM name and binds it to nic0
func (p *Provider) promoteAddress(ctx context.Context, vm, host, ip string) {
	if !p.public {
		return
	}
	op, err := p.compute.InsertAddress(ctx, p.project, p.region, &compute.Address{Name: host, Address: ip})
	if err := p.apply(ctx, op, err); err != nil {
		p.warn(ctx, "failed to reserve address", "address", ip, "error", err.Error())
		return
	}
	op, err = p.compute.UpdateAccessConfig(ctx, p.project, p.zone, vm, "nic0", &compute.AccessConfig{NatIP: ip})
	if err := p.apply(ctx, op, err); err != nil {
		p.warn(ctx, "failed to bind reserved address", "address", ip, "error", err.Error())
	}
}

// DeleteDNS removes every record referencing a VM; a missing zone is not an error
func (p *Provider) DeleteDNS(ctx context.Context, name, domain string) contracts.Result {
	return p.run(ctx, "delete-dns", name, func(ctx context.Context) contracts.Result {
		return contracts.ResultFrom(p.deleteDNS(ctx, name, domain))
	})
}

func (p *Provider) deleteDNS(ctx context.Context, name, domain string) error {
	rn := contracts.ParseRecordName(name, domain)
	zone, err := p.findZone(ctx, rn.Domain)
	if err != nil || zone == nil {
		return err
	}
	records, err := p.dns.ListRecordSets(ctx, p.project, zone.Name)
	if err != nil {
		return classify(err)
	}
	change := &dns.Change{Deletions: matchingRecords(rn, records)}
	if len(change.Deletions) > 0 {
		if _, err := p.dns.ApplyChange(ctx, p.project, zone.Name, change); err != nil {
			return classify(err)
		}
	}
	op, err := p.compute.DeleteAddress(ctx, p.project, p.region, rn.Host)
	if err := p.apply(ctx, op, err); err != nil {
		logging.FromContext(ctx).V(1).Info("address not released", "address", rn.Host, "error", err.Error())
	}
	return nil
}

// matchingRecords selects, once each, the records whose name or data reference rn.
// Zone apex records (SOA, NS) are never selected.
func matchingRecords(rn contracts.RecordName, records []*dns.ResourceRecordSet) []*dns.ResourceRecordSet {
	entry := rn.Entry()
	seen := map[string]bool{}
	var out []*dns.ResourceRecordSet
	for _, r := range records {
		if r.Type == "SOA" || r.Type == "NS" {
			continue
		}
		key := r.Name + "/" + r.Type
		if seen[key] || !recordMatches(rn, entry, r) {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func recordMatches(rn contracts.RecordName, entry string, r *dns.ResourceRecordSet) bool {
	if strings.Contains(r.Name, entry) {
		return true
	}
	if rn.SweepsCluster() && strings.HasSuffix(r.Name, rn.ClusterSuffix()) {
		return true
	}
	for _, data := range r.Rrdatas {
		if strings.Contains(data, rn.Host) {
			return true
		}
	}
	return false
}

// ListDNS returns the records of the zone serving domain; a missing zone yields no records
func (p *Provider) ListDNS(ctx context.Context, domain string) ([]contracts.DNSRecord, error) {
	return query(ctx, p, "list-dns", domain, func(ctx context.Context) ([]contracts.DNSRecord, error) {
		zone, err := p.findZone(ctx, domain)
		if err != nil || zone == nil {
			return nil, err
		}
		records, err := p.dns.ListRecordSets(ctx, p.project, zone.Name)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.DNSRecord, 0, len(records))
		for _, r := range records {
			out = append(out, contracts.DNSRecord{Name: r.Name, Type: r.Type, TTL: r.Ttl, Data: r.Rrdatas})
		}
		return out, nil
	})
}
