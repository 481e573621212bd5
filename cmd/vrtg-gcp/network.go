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

package main

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

func newNetworkCommand(opts *rootOptions) *cobra.Command {
	networkCmd := &cobra.Command{
		Use:     "network",
		Aliases: []string{"networks", "net"},
		Short:   "Manage networks",
	}

	var (
		cidr     string
		dualCIDR string
		noSubnet bool
	)
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a network, in custom mode when a cidr is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.CreateNetwork(ctx, args[0], cidr, dualCIDR, !noSubnet)
			})
		},
	}
	createCmd.Flags().StringVar(&cidr, "cidr", "", "Primary range of the subnet created with the network")
	createCmd.Flags().StringVar(&dualCIDR, "dual-cidr", "", "Secondary range of the subnet")
	createCmd.Flags().BoolVar(&noSubnet, "nosubnet", false, "Do not create a subnet")

	renderNetworks := func(networks map[string]contracts.NetworkInfo) error {
		rows := make([][]string, 0, len(networks))
		for _, name := range sortedNames(networks) {
			n := networks[name]
			rows = append(rows, []string{n.Name, orNone(n.CIDR), n.Mode, n.Project})
		}
		return opts.render(networks, []string{"network", "cidr", "mode", "project"}, rows)
	}

	networkCmd.AddCommand(
		createCmd,
		nameCommand(opts, "delete", "Delete a network and its subnets", contracts.Provider.DeleteNetwork),
		&cobra.Command{
			Use:   "list",
			Short: "List networks of the project and its shared VPC host",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (map[string]contracts.NetworkInfo, error) {
					return p.ListNetworks(ctx)
				}, renderNetworks)
			},
		},
		&cobra.Command{
			Use:   "info <name>",
			Short: "Describe a network",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.NetworkInfo, error) {
					return p.InfoNetwork(ctx, args[0])
				}, func(n contracts.NetworkInfo) error {
					return opts.printFields(n, [][2]string{
						{"name", n.Name},
						{"cidr", orNone(n.CIDR)},
						{"mode", n.Mode},
						{"project", n.Project},
					})
				})
			},
		},
	)
	return networkCmd
}

func newSubnetCommand(opts *rootOptions) *cobra.Command {
	subnetCmd := &cobra.Command{
		Use:     "subnet",
		Aliases: []string{"subnets"},
		Short:   "Manage subnets",
	}

	var (
		cidr     string
		network  string
		dualCIDR string
	)
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a subnet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.CreateSubnet(ctx, args[0], cidr, network, dualCIDR)
			})
		},
	}
	createCmd.Flags().StringVar(&cidr, "cidr", "", "Primary range")
	createCmd.Flags().StringVar(&network, "network", "default", "Parent network")
	createCmd.Flags().StringVar(&dualCIDR, "dual-cidr", "", "Secondary range")
	_ = createCmd.MarkFlagRequired("cidr")

	subnetFields := func(s contracts.SubnetInfo) [][2]string {
		return [][2]string{
			{"name", s.Name},
			{"cidr", orNone(s.CIDR)},
			{"network", s.Network},
			{"region", s.Region},
			{"project", s.Project},
			{"dual cidrs", orNone(strings.Join(s.DualCIDRs, ","))},
		}
	}

	subnetCmd.AddCommand(
		createCmd,
		nameCommand(opts, "delete", "Delete a subnet", contracts.Provider.DeleteSubnet),
		&cobra.Command{
			Use:   "list",
			Short: "List subnets of the project and its shared VPC host",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (map[string]contracts.SubnetInfo, error) {
					return p.ListSubnets(ctx)
				}, func(subnets map[string]contracts.SubnetInfo) error {
					rows := make([][]string, 0, len(subnets))
					for _, name := range sortedNames(subnets) {
						s := subnets[name]
						rows = append(rows, []string{s.Name, orNone(s.CIDR), s.Network, s.Region, s.Project})
					}
					return opts.render(subnets, []string{"subnet", "cidr", "network", "region", "project"}, rows)
				})
			},
		},
		&cobra.Command{
			Use:   "info <name>",
			Short: "Describe a subnet",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.SubnetInfo, error) {
					return p.InfoSubnet(ctx, args[0])
				}, func(s contracts.SubnetInfo) error {
					return opts.printFields(s, subnetFields(s))
				})
			},
		},
	)
	return subnetCmd
}

func newSecurityGroupCommand(opts *rootOptions) *cobra.Command {
	sgCmd := &cobra.Command{
		Use:     "sg",
		Aliases: []string{"securitygroup", "firewall"},
		Short:   "Manage firewall rules",
	}

	var ports []string
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an ingress rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.CreateSecurityGroup(ctx, args[0], ports)
			})
		},
	}
	createCmd.Flags().StringSliceVar(&ports, "ports", nil, "Ports as port or port/protocol")

	sgCmd.AddCommand(
		createCmd,
		nameCommand(opts, "delete", "Delete a firewall rule", contracts.Provider.DeleteSecurityGroup),
		&cobra.Command{
			Use:   "list",
			Short: "List firewall rules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.SecurityGroupInfo, error) {
					return p.ListSecurityGroups(ctx)
				}, func(groups []contracts.SecurityGroupInfo) error {
					rows := make([][]string, 0, len(groups))
					for _, g := range groups {
						rows = append(rows, []string{g.Name, g.Network, g.Direction, strings.Join(g.Ports, ","),
							orNone(strings.Join(g.TargetTags, ","))})
					}
					return opts.render(groups, []string{"name", "network", "direction", "ports", "tags"}, rows)
				})
			},
		},
	)
	return sgCmd
}

func newDNSCommand(opts *rootOptions) *cobra.Command {
	dnsCmd := &cobra.Command{
		Use:   "dns",
		Short: "Manage DNS records",
	}

	var (
		domain string
		ip     string
		net    string
		alias  []string
	)
	reserveCmd := &cobra.Command{
		Use:   "reserve <name>",
		Short: "Create the records of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nets []contracts.NetSpec
			if net != "" {
				nets = []contracts.NetSpec{{Name: net}}
			}
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.ReserveDNS(ctx, args[0], nets, domain, ip, alias)
			})
		},
	}
	reserveCmd.Flags().StringVar(&domain, "domain", "", "DNS domain; defaults to the network name")
	reserveCmd.Flags().StringVar(&ip, "ip", "", "Address; looked up from the instance when empty")
	reserveCmd.Flags().StringVar(&net, "net", "", "Network whose name is the domain")
	reserveCmd.Flags().StringSliceVar(&alias, "alias", nil, "Extra DNS names ('*' for a wildcard)")

	var deleteDomain string
	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete the records of a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.DeleteDNS(ctx, args[0], deleteDomain)
			})
		},
	}
	deleteCmd.Flags().StringVar(&deleteDomain, "domain", "", "DNS domain")
	_ = deleteCmd.MarkFlagRequired("domain")

	dnsCmd.AddCommand(
		reserveCmd,
		deleteCmd,
		&cobra.Command{
			Use:   "list <domain>",
			Short: "List the records of a domain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.DNSRecord, error) {
					return p.ListDNS(ctx, args[0])
				}, func(records []contracts.DNSRecord) error {
					rows := make([][]string, 0, len(records))
					for _, r := range records {
						rows = append(rows, []string{r.Name, r.Type, strconv.FormatInt(r.TTL, 10), strings.Join(r.Data, " ")})
					}
					return opts.render(records, []string{"entry", "type", "ttl", "data"}, rows)
				})
			},
		},
	)
	return dnsCmd
}

func newLoadBalancerCommand(opts *rootOptions) *cobra.Command {
	lbCmd := &cobra.Command{
		Use:     "lb",
		Aliases: []string{"loadbalancer", "loadbalancers"},
		Short:   "Manage load balancers",
	}

	spec := contracts.LoadBalancerSpec{}
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a TCP load balancer in front of virtual machines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lb := spec
			lb.Name = args[0]
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.CreateLoadBalancer(ctx, lb)
			})
		},
	}
	createCmd.Flags().StringSliceVar(&spec.VMs, "vms", nil, "Member virtual machines")
	createCmd.Flags().IntSliceVar(&spec.Ports, "ports", []int{443}, "Forwarded ports")
	createCmd.Flags().IntVar(&spec.CheckPort, "checkport", 80, "Health check port")
	createCmd.Flags().StringSliceVar(&spec.Alias, "alias", nil, "Extra DNS names")
	createCmd.Flags().StringVar(&spec.Domain, "domain", "", "DNS domain for a record pointing at the load balancer")
	createCmd.Flags().StringVar(&spec.DNSClient, "dnsclient", "", "External client managing the DNS record")
	createCmd.Flags().StringVar(&spec.IP, "ip", "", "Existing address to use")
	createCmd.Flags().BoolVar(&spec.Internal, "internal", false, "Create an internal load balancer")

	lbCmd.AddCommand(
		createCmd,
		nameCommand(opts, "delete", "Delete a load balancer and all of its parts", contracts.Provider.DeleteLoadBalancer),
		&cobra.Command{
			Use:   "list",
			Short: "List load balancers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.LoadBalancerInfo, error) {
					return p.ListLoadBalancers(ctx)
				}, func(lbs []contracts.LoadBalancerInfo) error {
					rows := make([][]string, 0, len(lbs))
					for _, lb := range lbs {
						rows = append(rows, []string{lb.Name, lb.IP, lb.Protocol, lb.Ports, lb.Target})
					}
					return opts.render(lbs, []string{"name", "ip", "protocol", "ports", "target"}, rows)
				})
			},
		},
	)
	return lbCmd
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
