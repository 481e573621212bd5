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
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// createVMOptions holds options for the vm create command
type createVMOptions struct {
	flavor        string
	cpus          int
	memory        int
	cpuModel      string
	image         string
	nets          []string
	disks         []int
	keys          []string
	cmds          []string
	metadata      map[string]string
	tags          []string
	domain        string
	reserveDNS    bool
	alias         []string
	enableRoot    bool
	cloudInit     bool
	storeMetadata bool
	public        bool
	confidential  bool
}

func (c *createVMOptions) spec(cmd *cobra.Command, name string) contracts.VMSpec {
	spec := contracts.VMSpec{
		Name:          name,
		Flavor:        c.flavor,
		CPUs:          c.cpus,
		MemoryMiB:     c.memory,
		CPUModel:      c.cpuModel,
		Image:         c.image,
		Keys:          c.keys,
		Cmds:          c.cmds,
		Metadata:      c.metadata,
		Tags:          c.tags,
		Domain:        c.domain,
		ReserveDNS:    c.reserveDNS,
		Alias:         c.alias,
		EnableRoot:    c.enableRoot,
		CloudInit:     c.cloudInit,
		StoreMetadata: c.storeMetadata,
		Confidential:  c.confidential,
	}
	for _, n := range c.nets {
		spec.Nets = append(spec.Nets, contracts.NetSpec{Name: n})
	}
	for _, size := range c.disks {
		spec.Disks = append(spec.Disks, contracts.DiskSpec{SizeGB: size})
	}
	if cmd.Flags().Changed("public") {
		public := c.public
		spec.Public = &public
	}
	return spec
}

func newVMCommand(opts *rootOptions) *cobra.Command {
	vmCmd := &cobra.Command{
		Use:     "vm",
		Aliases: []string{"vms", "instance"},
		Short:   "Manage virtual machines",
	}

	create := &createVMOptions{}
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := create.spec(cmd, args[0])
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.Create(ctx, spec)
			})
		},
	}
	createCmd.Flags().StringVar(&create.flavor, "flavor", "", "Machine type; a custom shape is used when empty")
	createCmd.Flags().IntVar(&create.cpus, "cpus", 0, "Number of CPUs for a custom shape")
	createCmd.Flags().IntVar(&create.memory, "memory", 0, "Memory in MiB for a custom shape")
	createCmd.Flags().StringVar(&create.cpuModel, "cpumodel", "", "Minimum CPU platform")
	createCmd.Flags().StringVar(&create.image, "image", "", "Boot image or image family")
	createCmd.Flags().StringSliceVar(&create.nets, "nets", nil, "Networks or subnets in interface order")
	createCmd.Flags().IntSliceVar(&create.disks, "disks", nil, "Disk sizes in GB; the first is the boot disk")
	createCmd.Flags().StringSliceVar(&create.keys, "keys", nil, "Additional SSH public keys")
	createCmd.Flags().StringArrayVar(&create.cmds, "cmds", nil, "Commands run on first boot")
	createCmd.Flags().StringToStringVar(&create.metadata, "metadata", nil, "Metadata stored as labels (key=value)")
	createCmd.Flags().StringSliceVar(&create.tags, "tags", nil, "Network tags")
	createCmd.Flags().StringVar(&create.domain, "domain", "", "DNS domain")
	createCmd.Flags().BoolVar(&create.reserveDNS, "reservedns", false, "Create a DNS record")
	createCmd.Flags().StringSliceVar(&create.alias, "alias", nil, "Extra DNS names")
	createCmd.Flags().BoolVar(&create.enableRoot, "enableroot", false, "Allow root SSH login")
	createCmd.Flags().BoolVar(&create.cloudInit, "cloudinit", true, "Generate user data")
	createCmd.Flags().BoolVar(&create.storeMetadata, "storemetadata", false, "Store metadata overrides on the instance")
	createCmd.Flags().BoolVar(&create.public, "public", true, "Attach an external address to the first interface")
	createCmd.Flags().BoolVar(&create.confidential, "confidential", false, "Enable confidential compute")

	var internal bool
	ipCmd := &cobra.Command{
		Use:   "ip <name>",
		Short: "Show the address of a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (string, error) {
				if internal {
					return p.InternalIP(ctx, args[0])
				}
				return p.IP(ctx, args[0])
			}, func(ip string) error {
				_, err := fmt.Fprintln(opts.out, ip)
				return err
			})
		},
	}
	ipCmd.Flags().BoolVar(&internal, "internal", false, "Show the private address")

	var (
		flavor string
		memory int
		cpus   int
	)
	resizeCmd := &cobra.Command{
		Use:   "resize <name>",
		Short: "Change the flavor, memory or CPUs of a stopped virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				switch {
				case flavor != "":
					return p.UpdateFlavor(ctx, args[0], flavor)
				case memory > 0:
					return p.UpdateMemory(ctx, args[0], memory)
				case cpus > 0:
					return p.UpdateCPUs(ctx, args[0], cpus)
				}
				return contracts.Failure(contracts.ErrorTypeInvalidSpec, "one of --flavor, --memory or --cpus is required")
			})
		},
	}
	resizeCmd.Flags().StringVar(&flavor, "flavor", "", "New machine type")
	resizeCmd.Flags().IntVar(&memory, "memory", 0, "New memory in MiB")
	resizeCmd.Flags().IntVar(&cpus, "cpus", 0, "New number of CPUs")

	vmCmd.AddCommand(
		createCmd,
		nameCommand(opts, "delete", "Delete a virtual machine", contracts.Provider.Delete),
		nameCommand(opts, "start", "Start a virtual machine", contracts.Provider.Start),
		nameCommand(opts, "stop", "Stop a virtual machine", contracts.Provider.Stop),
		nameCommand(opts, "restart", "Restart a virtual machine", contracts.Provider.Restart),
		&cobra.Command{
			Use:   "list",
			Short: "List virtual machines",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.VMInfo, error) {
					return p.List(ctx)
				}, func(vms []contracts.VMInfo) error {
					rows := make([][]string, 0, len(vms))
					for _, vm := range vms {
						rows = append(rows, []string{vm.Name, statusCase.String(string(vm.Status)), orNone(vm.IP),
							orNone(vm.Image), vm.Flavor, vm.Labels["plan"]})
					}
					return opts.render(vms, []string{"name", "status", "ip", "source", "flavor", "plan"}, rows)
				})
			},
		},
		&cobra.Command{
			Use:   "info <name>",
			Short: "Describe a virtual machine",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.VMInfo, error) {
					return p.Info(ctx, args[0])
				}, func(vm contracts.VMInfo) error {
					return opts.printFields(vm, vmFields(vm))
				})
			},
		},
		&cobra.Command{
			Use:   "status <name>",
			Short: "Show the status of a virtual machine",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.VMStatus, error) {
					return p.Status(ctx, args[0])
				}, func(status contracts.VMStatus) error {
					_, err := fmt.Fprintln(opts.out, status)
					return err
				})
			},
		},
		ipCmd,
		resizeCmd,
		&cobra.Command{
			Use:   "metadata <name> <key> <value>",
			Short: "Set a metadata label on a virtual machine",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.UpdateMetadata(ctx, args[0], args[1], args[2])
				})
			},
		},
		&cobra.Command{
			Use:   "information <name> <text>",
			Short: "Store a free text note on a virtual machine",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.UpdateInformation(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "export <name> [image]",
			Short: "Create an image from the boot disk of a stopped virtual machine",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				image := ""
				if len(args) > 1 {
					image = args[1]
				}
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.Export(ctx, args[0], image)
				})
			},
		},
		&cobra.Command{
			Use:   "snapshot <name> <base>",
			Short: "Create an image from a virtual machine or an existing image",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.CreateSnapshot(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "aliases <name> [cidr...]",
			Short: "Replace the alias ranges of the primary interface",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.UpdateAliases(ctx, args[0], args[1:])
				})
			},
		},
		&cobra.Command{
			Use:   "ports <name>",
			Short: "List the subnets a virtual machine is attached to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]string, error) {
					return p.VMPorts(ctx, args[0])
				}, func(ports []string) error {
					rows := make([][]string, 0, len(ports))
					for _, port := range ports {
						rows = append(rows, []string{port})
					}
					return opts.render(ports, []string{"subnet"}, rows)
				})
			},
		},
	)

	return vmCmd
}

// nameCommand builds a command running a single-name mutating operation
func nameCommand(opts *rootOptions, use, short string, op func(p contracts.Provider, ctx context.Context, name string) contracts.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return op(p, ctx, args[0])
			})
		},
	}
}

func vmFields(vm contracts.VMInfo) [][2]string {
	fields := [][2]string{
		{"name", vm.Name},
		{"status", string(vm.Status)},
		{"flavor", vm.Flavor},
		{"cpus", strconv.Itoa(vm.CPUs)},
		{"memory", strconv.Itoa(vm.MemoryMiB)},
		{"ip", orNone(vm.IP)},
		{"private ip", orNone(vm.PrivateIP)},
		{"image", orNone(vm.Image)},
		{"user", orNone(vm.User)},
		{"creation date", vm.CreationDate},
	}
	for _, nic := range vm.Nets {
		fields = append(fields, [2]string{"net " + nic.Device, fmt.Sprintf("%s (%s)", nic.Net, orNone(nic.IP))})
	}
	for _, d := range vm.Disks {
		fields = append(fields, [2]string{"disk " + d.Name, fmt.Sprintf("%dGB %s", d.SizeGB, d.Type)})
	}
	for _, k := range sortedNames(vm.Labels) {
		fields = append(fields, [2]string{k, vm.Labels[k]})
	}
	if len(vm.Tags) > 0 {
		fields = append(fields, [2]string{"tags", strings.Join(vm.Tags, ",")})
	}
	return fields
}

func newDiskCommand(opts *rootOptions) *cobra.Command {
	diskCmd := &cobra.Command{
		Use:     "disk",
		Aliases: []string{"disks"},
		Short:   "Manage disks",
	}

	var size int
	addCmd := &cobra.Command{
		Use:   "add <vm>",
		Short: "Create a disk and attach it to a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
				return p.AddDisk(ctx, args[0], size)
			})
		},
	}
	addCmd.Flags().IntVar(&size, "size", 10, "Disk size in GB")

	diskCmd.AddCommand(
		addCmd,
		&cobra.Command{
			Use:   "delete <vm> <disk>",
			Short: "Detach and delete a disk",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.DeleteDisk(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List disks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.DiskInfo, error) {
					return p.ListDisks(ctx)
				}, func(disks []contracts.DiskInfo) error {
					rows := make([][]string, 0, len(disks))
					for _, d := range disks {
						rows = append(rows, []string{d.Name, strconv.Itoa(d.SizeGB), d.Type, orNone(d.VM), d.Status})
					}
					return opts.render(disks, []string{"name", "size", "type", "vm", "status"}, rows)
				})
			},
		},
	)
	return diskCmd
}

func newImageCommand(opts *rootOptions) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:     "image",
		Aliases: []string{"images", "volume"},
		Short:   "Manage images",
	}
	imageCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List image families and own images",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]string, error) {
					return p.Volumes(ctx)
				}, func(images []string) error {
					rows := make([][]string, 0, len(images))
					for _, image := range images {
						rows = append(rows, []string{image})
					}
					return opts.render(images, []string{"image"}, rows)
				})
			},
		},
		&cobra.Command{
			Use:   "add <url>",
			Short: "Import an image from a storage URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.runResult(cmd, func(ctx context.Context, p contracts.Provider) contracts.Result {
					return p.AddImage(ctx, args[0])
				})
			},
		},
		nameCommand(opts, "delete", "Delete an image", contracts.Provider.DeleteImage),
	)
	return imageCmd
}

func newFlavorCommand(opts *rootOptions) *cobra.Command {
	flavorCmd := &cobra.Command{
		Use:     "flavor",
		Aliases: []string{"flavors"},
		Short:   "Inspect machine types",
	}
	render := func(flavors []contracts.FlavorInfo, v interface{}) error {
		rows := make([][]string, 0, len(flavors))
		for _, f := range flavors {
			rows = append(rows, []string{f.Name, strconv.Itoa(f.CPUs), strconv.Itoa(f.MemoryMiB)})
		}
		return opts.render(v, []string{"name", "cpus", "memory"}, rows)
	}
	flavorCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List machine types",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) ([]contracts.FlavorInfo, error) {
					return p.ListFlavors(ctx)
				}, func(flavors []contracts.FlavorInfo) error {
					return render(flavors, flavors)
				})
			},
		},
		&cobra.Command{
			Use:   "info <flavor>",
			Short: "Describe a machine type",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.FlavorInfo, error) {
					return p.InfoFlavor(ctx, args[0])
				}, func(f contracts.FlavorInfo) error {
					return render([]contracts.FlavorInfo{f}, f)
				})
			},
		},
	)
	return flavorCmd
}

func newHostCommand(opts *rootOptions) *cobra.Command {
	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Inspect the provider connection",
	}
	hostCmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Summarize the project and location in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.HostInfo, error) {
					return p.InfoHost(ctx)
				}, func(h contracts.HostInfo) error {
					return opts.printFields(h, [][2]string{
						{"project", h.Project},
						{"zone", h.Zone},
						{"region", h.Region},
						{"shared project", orNone(h.SharedProject)},
						{"vms", strconv.Itoa(h.VMCount)},
					})
				})
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check that the project is reachable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runQuery(opts, cmd, func(ctx context.Context, p contracts.Provider) (contracts.Result, error) {
					if err := p.Validate(ctx); err != nil {
						return contracts.Result{}, err
					}
					return contracts.Success(), nil
				}, opts.printResult)
			},
		},
	)
	return hostCmd
}
