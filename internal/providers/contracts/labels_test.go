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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelsFromMetadata_DropsUnknownKeys(t *testing.T) {
	l := LabelsFromMetadata(map[string]string{
		"domain":   "example.com",
		"kube":     "mycluster",
		"kubetype": "openshift",
		"plan":     "myplan",
		"random":   "ignored",
	})

	assert.Equal(t, "example.com", l.Domain)
	assert.Equal(t, "mycluster", l.Kube)
	assert.Equal(t, "openshift", l.KubeType)
	assert.Equal(t, map[string]string{"plan": "myplan"}, l.User)
	assert.Equal(t, "", l.Get("random"))
}

func TestLabels_Encode(t *testing.T) {
	l := Labels{
		Domain: "example.com",
		Kube:   "mycluster",
		User:   map[string]string{"image": "centos-stream-9", "owner": "jane.doe", "bogus": "x"},
	}

	assert.Equal(t, map[string]string{
		"domain": "example-com",
		"kube":   "mycluster",
		"image":  "centos-stream-9",
		"owner":  "jane-doe",
	}, l.Encode())
}

func TestParseLabels_RestoresDomain(t *testing.T) {
	l := ParseLabels(map[string]string{
		"domain":       "example-com",
		"dnsclient":    "route53",
		"loadbalancer": "api-mycluster",
		"owner":        "jane-doe",
	})

	assert.Equal(t, "example.com", l.Domain)
	assert.Equal(t, "route53", l.DNSClient)
	assert.Equal(t, "api-mycluster", l.LoadBalancer)
	assert.Equal(t, "jane-doe", l.User["owner"])
}

func TestLabels_With(t *testing.T) {
	base := Labels{User: map[string]string{"plan": "a"}}
	updated := base.With(LabelLoadBalancer, "lb1").With("plan", "b")

	assert.Equal(t, "", base.LoadBalancer)
	assert.Equal(t, "a", base.User["plan"])
	assert.Equal(t, "lb1", updated.LoadBalancer)
	assert.Equal(t, "b", updated.User["plan"])
	assert.Equal(t, []string{"loadbalancer", "plan"}, updated.Keys())
}

func TestIsReservedLabel(t *testing.T) {
	for _, k := range []string{"domain", "dnsclient", "kube", "kubetype", "loadbalancer"} {
		assert.True(t, IsReservedLabel(k), k)
		assert.False(t, IsUserLabel(k), k)
	}
	assert.False(t, IsReservedLabel("plan"))
	assert.True(t, IsUserLabel("plan"))
}
