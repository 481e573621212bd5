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
	"sort"
	"strings"
)

// Reserved label keys carry control metadata for the adapter itself
const (
	LabelDomain       = "domain"
	LabelDNSClient    = "dnsclient"
	LabelKube         = "kube"
	LabelKubeType     = "kubetype"
	LabelLoadBalancer = "loadbalancer"
)

// ReservedLabelKeys lists the control keys in encoding order
var ReservedLabelKeys = []string{LabelDomain, LabelDNSClient, LabelKube, LabelKubeType, LabelLoadBalancer}

// UserLabelKeys is the allow-list of user metadata keys stored as labels
var UserLabelKeys = []string{"plan", "profile", "image", "owner", "cluster", "redfish_iso", "information"}

// Labels is the typed view of the backend's flat label map
type Labels struct {
	// Domain is the DNS domain the instance was registered under
	Domain string
	// DNSClient names an external DNS client that owns the record
	DNSClient string
	// Kube is the cluster tag used for firewall scoping
	Kube string
	// KubeType is the cluster flavor (generic, openshift, k3s, ...)
	KubeType string
	// LoadBalancer names the instance group this instance belongs to
	LoadBalancer string
	// User holds allow-listed user metadata
	User map[string]string
}

// IsReservedLabel reports whether key is a control key
func IsReservedLabel(key string) bool {
	for _, k := range ReservedLabelKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsUserLabel reports whether key is on the user allow-list
func IsUserLabel(key string) bool {
	for _, k := range UserLabelKeys {
		if k == key {
			return true
		}
	}
	return false
}

// LabelsFromMetadata builds typed labels from free-form metadata, dropping unknown keys
func LabelsFromMetadata(metadata map[string]string) Labels {
	l := Labels{}
	for k, v := range metadata {
		l.set(k, v)
	}
	return l
}

// ParseLabels decodes a backend label map; the domain is turned back into dotted form
func ParseLabels(raw map[string]string) Labels {
	l := LabelsFromMetadata(raw)
	l.Domain = strings.ReplaceAll(l.Domain, "-", ".")
	return l
}

func (l *Labels) set(key, value string) {
	switch key {
	case LabelDomain:
		l.Domain = value
	case LabelDNSClient:
		l.DNSClient = value
	case LabelKube:
		l.Kube = value
	case LabelKubeType:
		l.KubeType = value
	case LabelLoadBalancer:
		l.LoadBalancer = value
	default:
		if IsUserLabel(key) {
			if l.User == nil {
				l.User = map[string]string{}
			}
			l.User[key] = value
		}
	}
}

// Get returns the value stored under key, reserved or user
func (l Labels) Get(key string) string {
	switch key {
	case LabelDomain:
		return l.Domain
	case LabelDNSClient:
		return l.DNSClient
	case LabelKube:
		return l.Kube
	case LabelKubeType:
		return l.KubeType
	case LabelLoadBalancer:
		return l.LoadBalancer
	}
	return l.User[key]
}

// With returns a copy with key set; unknown keys are ignored
func (l Labels) With(key, value string) Labels {
	out := l
	out.User = make(map[string]string, len(l.User))
	for k, v := range l.User {
		out.User[k] = v
	}
	out.set(key, value)
	return out
}

// Encode produces the backend label map; '.' is not a legal label character and becomes '-'
func (l Labels) Encode() map[string]string {
	out := map[string]string{}
	for _, k := range ReservedLabelKeys {
		if v := l.Get(k); v != "" {
			out[k] = encodeLabelValue(v)
		}
	}
	for k, v := range l.User {
		if IsUserLabel(k) && v != "" {
			out[k] = encodeLabelValue(v)
		}
	}
	return out
}

// Flatten returns every non-empty field keyed by label name, in decoded form
func (l Labels) Flatten() map[string]string {
	out := map[string]string{}
	for _, k := range append(ReservedLabelKeys, UserLabelKeys...) {
		if v := l.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// Keys returns the sorted list of populated keys
func (l Labels) Keys() []string {
	flat := l.Flatten()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func encodeLabelValue(v string) string {
	return strings.ReplaceAll(v, ".", "-")
}
