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
	"sort"

	dns "google.golang.org/api/dns/v1"
)

// AddManagedZone creates a zone with its SOA and NS records
func (c *Cloud) AddManagedZone(project, name, dnsName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones[project] = append(c.zones[project], &dns.ManagedZone{
		Name:        name,
		DnsName:     dnsName,
		Id:          uint64(c.next()),
		Visibility:  "public",
		NameServers: []string{"ns-cloud-a1.googledomains.com."},
	})
	c.records[key(project, name)] = []*dns.ResourceRecordSet{
		{Name: dnsName, Type: "NS", Ttl: 21600, Rrdatas: []string{"ns-cloud-a1.googledomains.com."}},
		{Name: dnsName, Type: "SOA", Ttl: 21600, Rrdatas: []string{"ns-cloud-a1.googledomains.com. cloud-dns-hostmaster.google.com. 1 21600 3600 259200 300"}},
	}
}

// AddRecord stores a record set in zone
func (c *Cloud) AddRecord(project, zone string, rrset *dns.ResourceRecordSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(project, zone)
	c.records[k] = append(c.records[k], clone(rrset))
}

func (c *Cloud) zone(project, name string) *dns.ManagedZone {
	for _, z := range c.zones[project] {
		if z.Name == name {
			return z
		}
	}
	return nil
}

func (c *Cloud) ListManagedZones(ctx context.Context, project string) ([]*dns.ManagedZone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListManagedZones", project, false); err != nil {
		return nil, err
	}
	out := cloneAll(c.zones[project])
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Cloud) ListRecordSets(ctx context.Context, project, zone string) ([]*dns.ResourceRecordSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListRecordSets", zone, false); err != nil {
		return nil, err
	}
	if c.zone(project, zone) == nil {
		return nil, notFound("managed zone", zone)
	}
	out := cloneAll(c.records[key(project, zone)])
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// ApplyChange applies deletions then additions atomically; a missing deletion or duplicate addition rejects the whole change
func (c *Cloud) ApplyChange(ctx context.Context, project, zone string, change *dns.Change) (*dns.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ApplyChange", zone, true); err != nil {
		return nil, err
	}
	if c.zone(project, zone) == nil {
		return nil, notFound("managed zone", zone)
	}
	k := key(project, zone)
	records := cloneAll(c.records[k])
	find := func(name, typ string) int {
		for i, r := range records {
			if r.Name == name && r.Type == typ {
				return i
			}
		}
		return -1
	}
	for i, del := range change.Deletions {
		at := find(del.Name, del.Type)
		if at < 0 {
			return nil, apiError(http.StatusNotFound, "notFound",
				"The 'entity.change.deletions[%d]' resource named '%s (%s)' does not exist", i, del.Name, del.Type)
		}
		records = append(records[:at], records[at+1:]...)
	}
	for i, add := range change.Additions {
		if find(add.Name, add.Type) >= 0 {
			return nil, apiError(http.StatusConflict, "alreadyExists",
				"The resource 'entity.change.additions[%d]' named '%s (%s)' already exists", i, add.Name, add.Type)
		}
		records = append(records, clone(add))
	}
	c.records[k] = records
	out := clone(change)
	out.Id = fmt.Sprintf("%d", c.next())
	out.Status = "done"
	out.StartTime = c.timestamp()
	return out, nil
}
