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

	dns "google.golang.org/api/dns/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
)

// DNSClient implements DNSAPI on the Cloud DNS REST client
type DNSClient struct {
	svc *dns.Service
	c   caller
}

var _ DNSAPI = (*DNSClient)(nil)

// NewDNSClient wraps svc; policy may be nil
func NewDNSClient(svc *dns.Service, policy *resilience.Policy) *DNSClient {
	return &DNSClient{svc: svc, c: newCaller("dns", policy)}
}

func (dc *DNSClient) ListManagedZones(ctx context.Context, project string) ([]*dns.ManagedZone, error) {
	return callRead(ctx, dc.c, "managedZones.list", func(ctx context.Context) ([]*dns.ManagedZone, error) {
		var out []*dns.ManagedZone
		err := dc.svc.ManagedZones.List(project).Pages(ctx, func(page *dns.ManagedZonesListResponse) error {
			out = append(out, page.ManagedZones...)
			return nil
		})
		return out, err
	})
}

func (dc *DNSClient) ListRecordSets(ctx context.Context, project, zone string) ([]*dns.ResourceRecordSet, error) {
	return callRead(ctx, dc.c, "resourceRecordSets.list", func(ctx context.Context) ([]*dns.ResourceRecordSet, error) {
		var out []*dns.ResourceRecordSet
		err := dc.svc.ResourceRecordSets.List(project, zone).Pages(ctx, func(page *dns.ResourceRecordSetsListResponse) error {
			out = append(out, page.Rrsets...)
			return nil
		})
		return out, err
	})
}

func (dc *DNSClient) ApplyChange(ctx context.Context, project, zone string, change *dns.Change) (*dns.Change, error) {
	return callMutate(ctx, dc.c, "changes.create", func(ctx context.Context) (*dns.Change, error) {
		return dc.svc.Changes.Create(project, zone, change).Context(ctx).Do()
	})
}
