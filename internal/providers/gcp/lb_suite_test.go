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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/projectbeskar/virtrigaud-gcp/internal/events"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
)

func TestLoadBalancers(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Load Balancer Suite")
}

// newSuiteEnv builds a provider over cloud for ginkgo specs
func newSuiteEnv(cloud *gcpfake.Cloud) *testEnv {
	env := &testEnv{cloud: cloud, sleeper: &sleepRecorder{}, events: &events.Recorder{}}
	p, err := New(context.Background(), testConfig(), Options{
		Compute:  cloud,
		DNS:      cloud,
		Storage:  cloud,
		UserData: userdata.NewGenerator(),
		Keys:     staticKey(testKey),
		Events:   env.events,
		Sleep:    env.sleeper.sleep,
	})
	Expect(err).NotTo(HaveOccurred())
	env.provider = p
	return env
}
