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
	"fmt"
	"strings"
)

// RecordName is a DNS identifier with the cluster component made explicit
type RecordName struct {
	// Host is the first label of the record
	Host string
	// Cluster is set when the name follows the <cluster>-<role> convention
	Cluster string
	// Domain is the zone-relative parent domain, without the cluster label
	Domain string
}

// ParseRecordName splits name and domain into host, cluster and domain.
//
// With fqdn = name.domain, when the fragment of fqdn before the first '-'
// equals the second dot-separated label of fqdn, that fragment is the cluster.
func ParseRecordName(name, domain string) RecordName {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return RecordName{Host: name, Domain: domain}
	}
	fqdn := name + "." + domain
	labels := strings.Split(fqdn, ".")
	prefix := strings.SplitN(fqdn, "-", 2)[0]
	if prefix != fqdn && prefix == labels[1] {
		return RecordName{
			Host:    labels[0],
			Cluster: prefix,
			Domain:  strings.TrimPrefix(domain, prefix+"."),
		}
	}
	return RecordName{Host: name, Domain: domain}
}

// Short returns the record name relative to Domain
func (r RecordName) Short() string {
	if r.Cluster != "" {
		return r.Host + "." + r.Cluster
	}
	return r.Host
}

// Entry returns the fully qualified, dot terminated record name
func (r RecordName) Entry() string {
	return fmt.Sprintf("%s.%s.", r.Short(), r.Domain)
}

// ZoneName returns the dot terminated zone domain
func (r RecordName) ZoneName() string {
	return r.Domain + "."
}

// IsClusterNode reports whether the record belongs to a control plane or worker node
func (r RecordName) IsClusterNode() bool {
	return r.Cluster != "" && (strings.Contains(r.Host, "ctlplane") || strings.Contains(r.Host, "worker"))
}

// Wildcard returns the record a '*' alias expands to
func (r RecordName) Wildcard() string {
	if r.IsClusterNode() {
		return fmt.Sprintf("*.apps.%s.%s.", r.Cluster, r.Domain)
	}
	return fmt.Sprintf("*.%s.%s.", r.Host, r.Domain)
}

// Alias returns the record name for a CNAME alias
func (r RecordName) Alias(alias string) string {
	if strings.Contains(alias, ".") {
		return strings.TrimSuffix(alias, ".") + "."
	}
	return fmt.Sprintf("%s.%s.", alias, r.Domain)
}

// SweepsCluster reports whether deleting this record also removes cluster wide records
func (r RecordName) SweepsCluster() bool {
	return r.Cluster != "" && strings.Contains(r.Host, "ctlplane-0")
}

// ClusterSuffix returns the dot terminated cluster domain
func (r RecordName) ClusterSuffix() string {
	return fmt.Sprintf("%s.%s.", r.Cluster, r.Domain)
}

// String implements fmt.Stringer
func (r RecordName) String() string {
	return strings.TrimSuffix(r.Entry(), ".")
}
