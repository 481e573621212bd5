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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
)

func createVMs(env *testEnv, specs ...contracts.VMSpec) {
	for _, spec := range specs {
		res := env.provider.Create(context.Background(), spec)
		Expect(res.OK()).To(BeTrue(), res.Reason)
	}
}

func dnsRecords(env *testEnv, domain string) map[string][]string {
	records, err := env.provider.ListDNS(context.Background(), domain)
	Expect(err).NotTo(HaveOccurred())
	out := map[string][]string{}
	for _, r := range records {
		out[r.Name+"/"+r.Type] = r.Data
	}
	return out
}

var _ = Describe("Load balancers", func() {
	var (
		ctx   context.Context
		env   *testEnv
		cloud *gcpfake.Cloud
	)

	BeforeEach(func() {
		ctx = context.Background()
		cloud = gcpfake.NewSeeded(gcpfake.Config{}, testProject, testRegion)
	})

	JustBeforeEach(func() {
		env = newSuiteEnv(cloud)
	})

	Describe("CreateLoadBalancer", func() {
		Context("with an external scheme", func() {
			JustBeforeEach(func() {
				createVMs(env, contracts.VMSpec{Name: "web1"}, contracts.VMSpec{Name: "web2"})
			})

			It("should compose every part and report the address", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name:  "web",
					VMs:   []string{"web1", "web2"},
					Ports: []int{80, 443},
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				ip := res.Details["ip"]
				Expect(ip).NotTo(BeEmpty())

				regional, err := cloud.ListRegionHealthChecks(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(regional).To(HaveLen(1))
				Expect(regional[0].TcpHealthCheck.Port).To(Equal(int64(80)))
				global, err := cloud.ListHealthChecks(ctx, testProject)
				Expect(err).NotTo(HaveOccurred())
				Expect(global).To(BeEmpty())

				Expect(cloud.GroupMembers(testProject, testZone, "web")).To(HaveLen(2))

				backends, err := cloud.ListBackendServices(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(backends).To(HaveLen(1))
				Expect(backends[0].LoadBalancingScheme).To(Equal("EXTERNAL"))
				Expect(backends[0].HealthChecks).To(ConsistOf(regional[0].SelfLink))

				rules, err := cloud.ListForwardingRules(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(rules).To(HaveLen(1))
				Expect(rules[0].IPAddress).To(Equal(ip))
				Expect(rules[0].Ports).To(Equal([]string{"80", "443"}))
				Expect(rules[0].BackendService).To(Equal(backends[0].SelfLink))
				Expect(rules[0].Subnetwork).To(BeEmpty())

				firewalls, err := cloud.ListFirewalls(ctx, testProject)
				Expect(err).NotTo(HaveOccurred())
				var fw *compute.Firewall
				for _, f := range firewalls {
					if f.Name == "web" {
						fw = f
					}
				}
				Expect(fw).NotTo(BeNil())
				Expect(fw.Allowed[0].Ports).To(Equal([]string{"80", "443"}))
				Expect(fw.TargetTags).To(BeEmpty())

				for _, name := range []string{"web1", "web2"} {
					vm, err := cloud.GetInstance(ctx, testProject, testZone, name)
					Expect(err).NotTo(HaveOccurred())
					Expect(contracts.ParseLabels(vm.Labels).LoadBalancer).To(Equal("web"))
				}
			})

			It("should use a custom health check port", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{8080}, CheckPort: 8081,
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				checks, err := cloud.ListRegionHealthChecks(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(checks[0].TcpHealthCheck.Port).To(Equal(int64(8081)))
			})

			It("should reuse a supplied address", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{80}, IP: "203.0.113.7",
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				Expect(res.Details["ip"]).To(Equal("203.0.113.7"))
				Expect(cloud.CallCount("InsertAddress")).To(BeZero())
			})

			It("should report completed parts when a step fails", func() {
				cloud.InjectError("InsertBackendService", &googleapi.Error{Code: 400, Message: "invalid backend"})
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{80},
				})
				Expect(res.OK()).To(BeFalse())
				Expect(res.Details["completed"]).To(Equal("labels,healthcheck,instancegroup"))
				Expect(cloud.CallCount("InsertForwardingRule")).To(BeZero())

				res = env.provider.DeleteLoadBalancer(ctx, "web")
				Expect(res.OK()).To(BeTrue(), res.Reason)
				checks, err := cloud.ListRegionHealthChecks(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(checks).To(BeEmpty())
				_, err = cloud.GetInstanceGroup(ctx, testProject, testZone, "web")
				Expect(isNotFound(err)).To(BeTrue())
			})
		})

		Context("with an internal scheme", func() {
			It("should use a global health check and an internal address", func() {
				createVMs(env, contracts.VMSpec{Name: "db1"})
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "db", VMs: []string{"db1"}, Ports: []int{5432}, Internal: true,
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				Expect(res.Details["ip"]).To(HavePrefix("10.132.0."))

				global, err := cloud.ListHealthChecks(ctx, testProject)
				Expect(err).NotTo(HaveOccurred())
				Expect(global).To(HaveLen(1))
				regional, err := cloud.ListRegionHealthChecks(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(regional).To(BeEmpty())

				address, err := cloud.GetAddress(ctx, testProject, testRegion, "db")
				Expect(err).NotTo(HaveOccurred())
				Expect(address.AddressType).To(Equal("INTERNAL"))

				res = env.provider.DeleteLoadBalancer(ctx, "db")
				Expect(res.OK()).To(BeTrue(), res.Reason)
				global, err = cloud.ListHealthChecks(ctx, testProject)
				Expect(err).NotTo(HaveOccurred())
				Expect(global).To(BeEmpty())
			})
		})

		It("should reject an empty member list", func() {
			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{Name: "web"})
			Expect(res.Kind).To(Equal(contracts.ErrorTypeInvalidSpec))
			Expect(res.Reason).To(Equal("Creating a load balancer requires to specify some vms"))
		})

		It("should reject a missing member before any mutation", func() {
			createVMs(env, contracts.VMSpec{Name: "web1"})
			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
				Name: "web", VMs: []string{"web1", "ghost"}, Ports: []int{80},
			})
			Expect(res.Kind).To(Equal(contracts.ErrorTypeNotFound))
			Expect(res.Reason).To(Equal("Vm ghost not found"))
			Expect(cloud.CallCount("InsertRegionHealthCheck")).To(BeZero())
			Expect(cloud.CallCount("SetInstanceLabels")).To(BeZero())
		})

		It("should reuse the instance group named by member labels", func() {
			createVMs(env, contracts.VMSpec{Name: "web1"})
			Expect(env.provider.setLabel(ctx, "web1", contracts.LabelLoadBalancer, "pool")).To(Succeed())
			_, err := cloud.InsertInstanceGroup(ctx, testProject, testZone, &compute.InstanceGroup{Name: "pool"})
			Expect(err).NotTo(HaveOccurred())

			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
				Name: "web", VMs: []string{"web1"}, Ports: []int{80},
			})
			Expect(res.OK()).To(BeTrue(), res.Reason)
			Expect(cloud.CallCount("InsertInstanceGroup")).To(Equal(1))
			Expect(cloud.CallCount("AddInstancesToGroup")).To(BeZero())

			pool, err := cloud.GetInstanceGroup(ctx, testProject, testZone, "pool")
			Expect(err).NotTo(HaveOccurred())
			backends, err := cloud.ListBackendServices(ctx, testProject, testRegion)
			Expect(err).NotTo(HaveOccurred())
			Expect(backends[0].Backends[0].Group).To(Equal(pool.SelfLink))
		})

		It("should target the cluster tag of kubernetes nodes", func() {
			createVMs(env, contracts.VMSpec{Name: "lab-ctlplane-0"}, contracts.VMSpec{Name: "lab-ctlplane-1"})
			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
				Name: "api.lab", VMs: []string{"lab-ctlplane-0", "lab-ctlplane-1"}, Ports: []int{6443}, CheckPort: 6443,
			})
			Expect(res.OK()).To(BeTrue(), res.Reason)

			firewalls, err := cloud.ListFirewalls(ctx, testProject)
			Expect(err).NotTo(HaveOccurred())
			var fw *compute.Firewall
			for _, f := range firewalls {
				if f.Name == "api-lab" {
					fw = f
				}
			}
			Expect(fw).NotTo(BeNil())
			Expect(fw.TargetTags).To(Equal([]string{"lab"}))
		})

		Context("when members live in a shared VPC", func() {
			BeforeEach(func() {
				seedSharedVPC(cloud)
			})

			It("should bind the rule to the host subnet and skip the firewall", func() {
				createVMs(env, contracts.VMSpec{Name: "node1", Nets: []contracts.NetSpec{{Name: "shared-sub"}}})
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"node1"}, Ports: []int{80}, Internal: true,
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)

				rules, err := cloud.ListForwardingRules(ctx, testProject, testRegion)
				Expect(err).NotTo(HaveOccurred())
				Expect(rules).To(HaveLen(1))
				Expect(rules[0].Subnetwork).To(Equal("projects/" + hostProject + "/regions/" + testRegion + "/subnetworks/shared-sub"))
				Expect(cloud.CallCount("InsertFirewall")).To(BeZero())
			})
		})

		Context("with a domain", func() {
			JustBeforeEach(func() {
				createVMs(env, contracts.VMSpec{Name: "web1"})
			})

			It("should register records and label the address", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{80},
					Domain: "example.com", Alias: []string{"www"},
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				Expect(res.Details).NotTo(HaveKey("dns"))
				ip := res.Details["ip"]

				records := dnsRecords(env, "example.com")
				Expect(records["web.example.com./A"]).To(Equal([]string{ip}))
				Expect(records["www.example.com./CNAME"]).To(Equal([]string{"web.example.com."}))

				address, err := cloud.GetAddress(ctx, testProject, testRegion, "web")
				Expect(err).NotTo(HaveOccurred())
				Expect(contracts.ParseLabels(address.Labels).Domain).To(Equal("example.com"))

				res = env.provider.DeleteLoadBalancer(ctx, "web")
				Expect(res.OK()).To(BeTrue(), res.Reason)
				records = dnsRecords(env, "example.com")
				Expect(records).NotTo(HaveKey("web.example.com./A"))
				Expect(records).NotTo(HaveKey("www.example.com./CNAME"))
			})

			It("should leave records to an external dns client", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{80},
					Domain: "example.com", DNSClient: "external",
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				Expect(dnsRecords(env, "example.com")).NotTo(HaveKey("web.example.com./A"))

				address, err := cloud.GetAddress(ctx, testProject, testRegion, "web")
				Expect(err).NotTo(HaveOccurred())
				Expect(contracts.ParseLabels(address.Labels).DNSClient).To(Equal("external"))
			})

			It("should report a dns failure without failing the load balancer", func() {
				res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
					Name: "web", VMs: []string{"web1"}, Ports: []int{80}, Domain: "nowhere.org",
				})
				Expect(res.OK()).To(BeTrue(), res.Reason)
				Expect(res.Details["dns"]).To(Equal("Domain nowhere.org not found"))
			})
		})
	})

	Describe("DeleteLoadBalancer", func() {
		BeforeEach(func() {
			cloud = gcpfake.NewSeeded(gcpfake.Config{ForwardingRuleLingers: 2}, testProject, testRegion)
		})

		JustBeforeEach(func() {
			createVMs(env, contracts.VMSpec{Name: "web1"})
			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
				Name: "web", VMs: []string{"web1"}, Ports: []int{80},
			})
			Expect(res.OK()).To(BeTrue(), res.Reason)
		})

		It("should wait for the forwarding rule to disappear and remove every part", func() {
			res := env.provider.DeleteLoadBalancer(ctx, "web")
			Expect(res.OK()).To(BeTrue(), res.Reason)
			Expect(env.sleeper.count(5 * time.Second)).To(Equal(2))

			rules, err := cloud.ListForwardingRules(ctx, testProject, testRegion)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(BeEmpty())
			backends, err := cloud.ListBackendServices(ctx, testProject, testRegion)
			Expect(err).NotTo(HaveOccurred())
			Expect(backends).To(BeEmpty())
			_, err = cloud.GetAddress(ctx, testProject, testRegion, "web")
			Expect(isNotFound(err)).To(BeTrue())
			_, err = cloud.GetInstanceGroup(ctx, testProject, testZone, "web")
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("should be idempotent", func() {
			Expect(env.provider.DeleteLoadBalancer(ctx, "web").OK()).To(BeTrue())
			res := env.provider.DeleteLoadBalancer(ctx, "web")
			Expect(res.OK()).To(BeTrue(), res.Reason)
		})

		It("should name the parts that could not be removed", func() {
			cloud.InjectError("DeleteBackendService", &googleapi.Error{Code: 400, Message: "invalid"})
			res := env.provider.DeleteLoadBalancer(ctx, "web")
			Expect(res.Kind).To(Equal(contracts.ErrorTypeBackend))
			Expect(res.Reason).To(Equal("failed to delete backendservice, healthcheck of load balancer web"))
		})
	})

	Describe("ListLoadBalancers", func() {
		It("should list global and regional rules", func() {
			cloud.AddGlobalForwardingRule(testProject, &compute.ForwardingRule{
				Name:       "edge",
				IPAddress:  "34.120.0.1",
				IPProtocol: "TCP",
				PortRange:  "443-443",
				Target:     "https://www.googleapis.com/compute/v1/projects/myproject/global/targetHttpsProxies/edge-proxy",
			})
			createVMs(env, contracts.VMSpec{Name: "web1"})
			res := env.provider.CreateLoadBalancer(ctx, contracts.LoadBalancerSpec{
				Name: "web", VMs: []string{"web1"}, Ports: []int{80, 443},
			})
			Expect(res.OK()).To(BeTrue(), res.Reason)

			lbs, err := env.provider.ListLoadBalancers(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(lbs).To(Equal([]contracts.LoadBalancerInfo{
				{Name: "edge", IP: "34.120.0.1", Protocol: "TCP", Ports: "443-443", Target: "edge-proxy"},
				{Name: "web", IP: res.Details["ip"], Protocol: "TCP", Ports: "80,443", Target: "web"},
			}))
		})
	})

	DescribeTable("kubeTag",
		func(vm, tag string) {
			Expect(kubeTag(vm)).To(Equal(tag))
		},
		Entry("control plane", "lab-ctlplane-0", "lab"),
		Entry("numbered worker", "lab-worker-12", "lab"),
		Entry("unnumbered worker", "lab-worker-pool", ""),
		Entry("plain vm", "web1", ""),
	)
})
