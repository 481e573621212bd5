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
	"os/user"
	"path"
	"sort"
	"strings"
	"time"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

const (
	defaultCPUs      = 2
	defaultMemoryMiB = 512
	defaultDiskGB    = 10

	scopeCompute       = "https://www.googleapis.com/auth/compute"
	scopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	scopeStorageRW     = "https://www.googleapis.com/auth/devstorage.read_write"
	scopeLoggingWrite  = "https://www.googleapis.com/auth/logging.write"

	startupMarker = "/root/.virtrigaud_startup"
)

var kubeFirewallTypes = []string{"generic", "openshift", "k3s"}

// instancePlan is a validated instance body plus the mutations that create it
type instancePlan struct {
	body  *compute.Instance
	image string
	steps steps
}

// Create provisions a VM. Data disks, the kube firewall and the instance are created as
// ordered steps; a failure leaves earlier steps in place and lists them under "completed".
func (p *Provider) Create(ctx context.Context, spec contracts.VMSpec) contracts.Result {
	return p.run(ctx, "create", spec.Name, func(ctx context.Context) contracts.Result {
		plan, err := p.planInstance(ctx, spec)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		report := plan.steps.Run(ctx)
		if !report.OK() {
			return contracts.ResultFrom(report.Err).With("completed", strings.Join(report.Completed, ","))
		}
		result := contracts.Success()
		if spec.ReserveDNS && spec.Domain != "" {
			if _, err := p.reserveDNS(ctx, spec.Name, spec.Nets, spec.Domain, "", spec.Alias); err != nil {
				p.warn(ctx, "dns reservation failed", "error", err.Error())
				result = result.With("dns", contracts.ResultFrom(err).Reason)
			}
		}
		return result
	})
}

func (p *Provider) planInstance(ctx context.Context, spec contracts.VMSpec) (*instancePlan, error) {
	if spec.Name == "" {
		return nil, contracts.NewInvalidSpecError("VM name is required", nil)
	}
	if _, err := p.compute.GetInstance(ctx, p.project, p.zone, spec.Name); err == nil {
		return nil, contracts.NewAlreadyExistsError(fmt.Sprintf("VM %s already exists", spec.Name), nil)
	} else if !isNotFound(err) {
		return nil, classify(err)
	}

	machineType, err := p.machineType(ctx, spec)
	if err != nil {
		return nil, err
	}
	plan := &instancePlan{
		body: &compute.Instance{
			Name:        spec.Name,
			MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", p.zone, machineType),
		},
		image: spec.Image,
	}
	body := plan.body
	if spec.CPUModel != "" && spec.CPUModel != "host-model" {
		body.MinCpuPlatform = spec.CPUModel
	}
	for _, acc := range spec.Accelerators {
		if acc.Type == "" {
			p.warn(ctx, "Invalid accelerator", "accelerator", acc)
			continue
		}
		count := acc.Count
		if count <= 0 {
			count = 1
		}
		body.GuestAccelerators = append(body.GuestAccelerators, &compute.AcceleratorConfig{
			AcceleratorType:  acc.Type,
			AcceleratorCount: int64(count),
		})
	}

	useXProject, err := p.planInterfaces(ctx, spec, body)
	if err != nil {
		return nil, err
	}
	if err := p.planDisks(ctx, spec, plan); err != nil {
		return nil, err
	}

	body.ServiceAccounts = []*compute.ServiceAccount{{
		Email:  "default",
		Scopes: []string{scopeStorageRW, scopeLoggingWrite},
	}}
	labels := contracts.LabelsFromMetadata(spec.Metadata)
	if spec.ReserveDNS && spec.Domain != "" && labels.Domain == "" {
		labels = labels.With(contracts.LabelDomain, spec.Domain)
	}
	body.Labels = labels.Encode()

	metadata := &compute.Metadata{}
	if err := p.planUserData(ctx, spec, plan.image, metadata); err != nil {
		return nil, err
	}

	tags := append([]string{}, spec.Tags...)
	if labels.KubeType != "" && util.Contains(kubeFirewallTypes, labels.KubeType) && !useXProject && labels.Kube != "" {
		fw, err := p.kubeFirewallStep(ctx, labels.Kube, labels.KubeType)
		if err != nil {
			return nil, err
		}
		if fw != nil {
			plan.steps = append(plan.steps, *fw)
		}
		tags = append(tags, labels.Kube)
	}
	if len(tags) > 0 {
		body.Tags = &compute.Tags{Items: tags}
	}
	metadata.Items = append(metadata.Items, metadataItem("serial-port-enable", "1"))

	if labels.KubeType != "" {
		body.CanIpForward = true
		accounts := make([]*compute.ServiceAccount, 0, len(spec.ServiceAccounts)+1)
		for _, sa := range spec.ServiceAccounts {
			if sa.Email == "" {
				p.warn(ctx, "Skipping invalid service account")
				continue
			}
			email := sa.Email
			if !strings.Contains(email, "@") {
				email = fmt.Sprintf("%s@%s.iam.gserviceaccount.com", email, p.project)
			}
			scopes := sa.Scopes
			if len(scopes) == 0 {
				scopes = []string{scopeCompute}
			}
			accounts = append(accounts, &compute.ServiceAccount{Email: email, Scopes: scopes})
		}
		if labels.KubeType == "openshift" {
			accounts = append(accounts, &compute.ServiceAccount{Email: "default", Scopes: []string{scopeCloudPlatform}})
		}
		if len(accounts) > 0 {
			body.ServiceAccounts = accounts
		}
	}

	if spec.StoreMetadata {
		existing := map[string]bool{}
		for _, item := range metadata.Items {
			existing[item.Key] = true
		}
		for _, key := range userdata.SortedKeys(spec.Overrides) {
			if !existing[key] {
				metadata.Items = append(metadata.Items, metadataItem(key, spec.Overrides[key]))
			}
		}
	}
	body.Metadata = metadata

	if s := spec.Shielded; s != nil && (s.TPM || s.SecureBoot) {
		body.ShieldedInstanceConfig = &compute.ShieldedInstanceConfig{
			EnableIntegrityMonitoring: s.IntegrityMonitoring,
			EnableVtpm:                s.TPM,
			EnableSecureBoot:          s.SecureBoot,
			ForceSendFields:           []string{"EnableIntegrityMonitoring", "EnableVtpm", "EnableSecureBoot"},
		}
	}
	if spec.Confidential {
		body.ConfidentialInstanceConfig = &compute.ConfidentialInstanceConfig{EnableConfidentialCompute: true}
	}

	plan.steps = append(plan.steps, step{
		name: "instance",
		run: func(ctx context.Context) error {
			op, err := p.compute.InsertInstance(ctx, p.project, p.zone, body)
			return p.apply(ctx, op, err)
		},
		cleanup: func(ctx context.Context) error {
			op, err := p.compute.DeleteInstance(ctx, p.project, p.zone, spec.Name)
			return p.apply(ctx, op, err)
		},
	})
	return plan, nil
}

func (p *Provider) machineType(ctx context.Context, spec contracts.VMSpec) (string, error) {
	if spec.Flavor != "" {
		return spec.Flavor, nil
	}
	cpus, memory := spec.CPUs, spec.MemoryMiB
	if cpus == 0 {
		cpus = defaultCPUs
	}
	if memory == 0 {
		memory = defaultMemoryMiB
	}
	shape, err := SynthesizeShape(cpus, memory)
	if err != nil {
		return "", err
	}
	for _, w := range shape.Warnings {
		p.warn(ctx, w)
	}
	return shape.Name, nil
}

// planInterfaces resolves every attachment against live subnets first, then networks.
// It reports whether any subnet belongs to the shared VPC host.
func (p *Provider) planInterfaces(ctx context.Context, spec contracts.VMSpec, body *compute.Instance) (bool, error) {
	nets := spec.Nets
	if len(nets) == 0 {
		nets = []contracts.NetSpec{{Name: "default"}}
	}
	networks, err := p.ListNetworks(ctx)
	if err != nil {
		return false, err
	}
	subnets, err := p.ListSubnets(ctx)
	if err != nil {
		return false, err
	}

	xproject := p.SharedProject()
	useXProject := false
	for index, net := range nets {
		nic := &compute.NetworkInterface{}
		public := util.BoolValueOr(net.Public, util.BoolValueOr(spec.Public, p.public))
		if public && index == 0 {
			nic.AccessConfigs = []*compute.AccessConfig{{Type: "ONE_TO_ONE_NAT", Name: "External NAT"}}
		}
		if subnet, ok := subnets[net.Name]; ok {
			if xproject != "" && subnet.Project == xproject {
				useXProject = true
			}
			nic.Subnetwork = fmt.Sprintf("projects/%s/regions/%s/subnetworks/%s", subnet.Project, p.region, net.Name)
		} else if _, ok := networks[net.Name]; ok {
			nic.Network = "global/networks/" + net.Name
		} else {
			return false, contracts.NewInvalidSpecError(fmt.Sprintf("%s not in subnets nor in networks", net.Name), nil)
		}
		if net.IP != "" {
			nic.NetworkIP = net.IP
		}
		nic.AliasIpRanges = aliasRanges(net)
		body.NetworkInterfaces = append(body.NetworkInterfaces, nic)
	}
	return useXProject, nil
}

// aliasRanges maps the secondary addresses of a nic onto subnet ranges.
// Unnamed ranges fall back to the dual-<net> range CreateNetwork and CreateSubnet create.
func aliasRanges(net contracts.NetSpec) []*compute.AliasIpRange {
	var out []*compute.AliasIpRange
	fallback := "dual-" + net.Name
	add := func(cidr, name string) {
		if cidr == "" {
			return
		}
		out = append(out, &compute.AliasIpRange{
			IpCidrRange:         cidr,
			SubnetworkRangeName: util.FirstNonEmpty(name, fallback),
		})
	}
	add(net.DualCIDR, net.DualName)
	add(net.PodCIDR, net.PodCIDRName)
	add(net.ServiceCIDR, net.ServiceCIDRName)
	return out
}

// planDisks builds the boot disk from the image and one standalone step per data disk
func (p *Provider) planDisks(ctx context.Context, spec contracts.VMSpec, plan *instancePlan) error {
	disks := spec.Disks
	if len(disks) == 0 {
		disks = []contracts.DiskSpec{{SizeGB: defaultDiskGB}}
	}
	for index, disk := range disks {
		size := disk.SizeGB
		if size <= 0 {
			size = defaultDiskGB
		}
		if index == 0 && spec.Image != "" {
			src, image, err := p.resolveImage(ctx, spec.Image)
			if err != nil {
				return err
			}
			plan.image = image
			if strings.HasPrefix(image, "centos-") && strings.HasSuffix(image, "8") && size == 10 {
				p.warn(ctx, "Rounding primary disk to 20Gb")
				size = 20
			}
			plan.body.Disks = append(plan.body.Disks, &compute.AttachedDisk{
				Boot:       true,
				AutoDelete: true,
				InitializeParams: &compute.AttachedDiskInitializeParams{
					SourceImage: src,
					DiskSizeGb:  int64(size),
				},
			})
			continue
		}
		diskName := fmt.Sprintf("%s-disk%d", spec.Name, index)
		plan.steps = append(plan.steps, p.dataDiskStep(diskName, size))
		plan.body.Disks = append(plan.body.Disks, &compute.AttachedDisk{
			AutoDelete: true,
			Source:     p.diskSource(diskName),
		})
	}
	return nil
}

func (p *Provider) dataDiskStep(name string, sizeGB int) step {
	return step{
		name: "disk/" + name,
		run: func(ctx context.Context) error {
			return p.createDisk(ctx, name, sizeGB)
		},
		cleanup: func(ctx context.Context) error {
			op, err := p.compute.DeleteDisk(ctx, p.project, p.zone, name)
			return p.apply(ctx, op, err)
		},
	}
}

// createDisk inserts a blank disk and polls it to READY
func (p *Provider) createDisk(ctx context.Context, name string, sizeGB int) error {
	op, err := p.compute.InsertDisk(ctx, p.project, p.zone, &compute.Disk{Name: name, SizeGb: int64(sizeGB)})
	if err := p.apply(ctx, op, err); err != nil {
		return err
	}
	log := logging.FromContext(ctx)
	outcome, err := p.poll(ctx, "disk-ready", p.diskReady, func(ctx context.Context) (bool, error) {
		disk, err := p.compute.GetDisk(ctx, p.project, p.zone, name)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if disk.Status == "READY" {
			return true, nil
		}
		log.V(1).Info("Waiting for disk to be ready", "disk", name, "status", disk.Status)
		return false, nil
	})
	if err != nil {
		return classify(err)
	}
	if outcome != util.PollSatisfied {
		return contracts.NewTimeoutError(fmt.Sprintf("timeout waiting for disk %s to be ready", name), nil)
	}
	return nil
}

func (p *Provider) kubeFirewallStep(ctx context.Context, kube, kubeType string) (*step, error) {
	firewalls, err := p.compute.ListFirewalls(ctx, p.project)
	if err != nil {
		return nil, classify(err)
	}
	for _, fw := range firewalls {
		if fw.Name == kube {
			return nil, nil
		}
	}
	rule := kubeFirewall(kube, kubeType)
	return &step{
		name: "firewall/" + kube,
		run: func(ctx context.Context) error {
			logging.FromContext(ctx).Info("Creating firewall rule", "firewall", kube)
			op, err := p.compute.InsertFirewall(ctx, p.project, rule)
			return p.apply(ctx, op, err)
		},
		cleanup: func(ctx context.Context) error {
			op, err := p.compute.DeleteFirewall(ctx, p.project, kube)
			return p.apply(ctx, op, err)
		},
	}, nil
}

func kubeFirewall(kube, kubeType string) *compute.Firewall {
	tcp := []string{"22", "443", "2379", "2380"}
	rule := &compute.Firewall{
		Name:       kube,
		Direction:  "INGRESS",
		TargetTags: []string{kube},
	}
	if kubeType == "openshift" {
		tcp = append(tcp, "80", "8080", "443", "5443", "8443", "22624", "4789", "6080", "6081",
			"30000-32767", "10250-10259", "9000-9999")
		rule.Allowed = []*compute.FirewallAllowed{
			{IPProtocol: "tcp", Ports: tcp},
			{IPProtocol: "udp", Ports: []string{"4789", "6081", "30000-32767", "9000-9999"}},
		}
		return rule
	}
	rule.Allowed = []*compute.FirewallAllowed{{IPProtocol: "tcp", Ports: tcp}}
	return rule
}

// planUserData fills ssh keys, the startup script and the user-data payload
func (p *Provider) planUserData(ctx context.Context, spec contracts.VMSpec, image string, metadata *compute.Metadata) error {
	local, err := p.keys.PublicKey()
	if err != nil {
		p.warn(ctx, "failed to read local public key", "error", err.Error())
	}
	if local == "" {
		p.warn(ctx, "no local public key found, you might have trouble accessing the vm")
	}
	keys := userdata.MergeKeys(local, spec.Keys)
	vmUser := p.userdata.DefaultUser(image)
	if len(keys) > 0 {
		sshUser := vmUser
		if sshUser == "root" {
			sshUser = currentUser()
		}
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, sshUser+":"+k)
		}
		metadata.Items = append(metadata.Items,
			metadataItem("ssh-keys", strings.Join(lines, "\n")),
			metadataItem("block-project-ssh-keys", "TRUE"),
		)
	}

	cmds := spec.Cmds
	if spec.EnableRoot {
		cmds = append([]string{
			`sed -i "s/.*PermitRootLogin.*/PermitRootLogin yes/" /etc/ssh/sshd_config`,
			"systemctl restart sshd",
		}, cmds...)
	}
	if !spec.CloudInit {
		return nil
	}

	req := userdata.Request{
		Name:          spec.Name,
		Domain:        spec.Domain,
		Image:         image,
		User:          vmUser,
		Keys:          keys,
		Cmds:          cmds,
		Files:         spec.Files,
		EnableRoot:    spec.EnableRoot,
		StoreMetadata: spec.StoreMetadata,
		Metadata:      spec.Overrides,
	}
	var payload string
	if image != "" && p.userdata.NeedsIgnition(image) {
		payload, err = p.userdata.Ignition(req)
	} else {
		payload, err = p.userdata.CloudInit(req)
		if err == nil {
			metadata.Items = append(metadata.Items, metadataItem("startup-script", startupScript(image)))
		}
	}
	if err != nil {
		return contracts.NewInvalidSpecError(fmt.Sprintf("failed to render user data for %s", spec.Name), err)
	}
	logging.FromContext(ctx).V(2).Info("rendered user data", "userdata", logging.RedactString(payload))
	metadata.Items = append(metadata.Items, metadataItem("user-data", payload))
	return nil
}

// startupScript installs cloud-init on images that lack it and reboots once
func startupScript(image string) string {
	pkgmgr := "yum"
	if userdata.IsUbuntu(image) {
		pkgmgr = "apt-get"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "test -f %s && exit 0\n", startupMarker)
	fmt.Fprintf(&b, "sleep 10\nwhich cloud-init && touch %s && exit 0\n", startupMarker)
	fmt.Fprintf(&b, "%s install -y cloud-init\n", pkgmgr)
	b.WriteString("systemctl enable --now cloud-init\n")
	fmt.Fprintf(&b, "touch %s\nreboot", startupMarker)
	return b.String()
}

func metadataItem(key, value string) *compute.MetadataItems {
	return &compute.MetadataItems{Key: key, Value: util.Ptr(value)}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "root"
	}
	return u.Username
}

// getInstance returns the instance or a "VM <name> not found" error
func (p *Provider) getInstance(ctx context.Context, name string) (*compute.Instance, error) {
	vm, err := p.compute.GetInstance(ctx, p.project, p.zone, name)
	if err != nil {
		if isNotFound(err) {
			return nil, contracts.NewNotFoundError(fmt.Sprintf("VM %s not found", name), err)
		}
		return nil, classify(err)
	}
	return vm, nil
}

// Delete removes a VM, its DNS records unless an external client owns them, and its kube firewall
func (p *Provider) Delete(ctx context.Context, name string) contracts.Result {
	return p.run(ctx, "delete", name, func(ctx context.Context) contracts.Result {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		labels := contracts.ParseLabels(vm.Labels)
		if labels.Domain != "" && labels.DNSClient == "" {
			if err := p.deleteDNS(ctx, name, labels.Domain); err != nil {
				p.warn(ctx, "failed to delete dns records", "domain", labels.Domain, "error", err.Error())
			}
		}
		op, err := p.compute.DeleteInstance(ctx, p.project, p.zone, name)
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err)
		}
		if labels.Kube != "" {
			op, err := p.compute.DeleteFirewall(ctx, p.project, labels.Kube)
			if err := p.apply(ctx, op, err); err != nil {
				logging.FromContext(ctx).V(1).Info("kube firewall not deleted", "firewall", labels.Kube, "error", err.Error())
			}
		}
		return contracts.Success()
	})
}

type instanceVerb func(ctx context.Context, project, zone, name string) (*compute.Operation, error)

func (p *Provider) power(ctx context.Context, operation, name string, verb instanceVerb) contracts.Result {
	return p.run(ctx, operation, name, func(ctx context.Context) contracts.Result {
		op, err := verb(ctx, p.project, p.zone, name)
		if err != nil && isNotFound(err) {
			return contracts.Failure(contracts.ErrorTypeNotFound, "VM %s not found", name)
		}
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// Start powers a VM on
func (p *Provider) Start(ctx context.Context, name string) contracts.Result {
	return p.power(ctx, "start", name, p.compute.StartInstance)
}

// Stop powers a VM off
func (p *Provider) Stop(ctx context.Context, name string) contracts.Result {
	return p.power(ctx, "stop", name, p.compute.StopInstance)
}

// Restart hard resets a VM
func (p *Provider) Restart(ctx context.Context, name string) contracts.Result {
	return p.power(ctx, "restart", name, p.compute.ResetInstance)
}

// stoppedInstance returns the instance when it may be resized
func (p *Provider) stoppedInstance(ctx context.Context, name string) (*compute.Instance, error) {
	vm, err := p.getInstance(ctx, name)
	if err != nil {
		return nil, err
	}
	if contracts.VMStatus(vm.Status).IsUp() {
		return nil, contracts.NewPreconditionError(fmt.Sprintf("VM %s up", name), nil)
	}
	return vm, nil
}

func (p *Provider) setMachineType(ctx context.Context, name, machineType string) error {
	op, err := p.compute.SetMachineType(ctx, p.project, p.zone, name, p.machineTypeURL(machineType))
	return p.apply(ctx, op, err)
}

// UpdateFlavor replaces the machine type of a stopped VM
func (p *Provider) UpdateFlavor(ctx context.Context, name, flavor string) contracts.Result {
	return p.run(ctx, "update-flavor", name, func(ctx context.Context) contracts.Result {
		vm, err := p.stoppedInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		if path.Base(vm.MachineType) == flavor {
			return contracts.Success()
		}
		return contracts.ResultFrom(p.setMachineType(ctx, name, flavor))
	})
}

// UpdateMemory resizes the memory of a stopped VM running a custom shape
func (p *Provider) UpdateMemory(ctx context.Context, name string, memoryMiB int) contracts.Result {
	return p.resize(ctx, "update-memory", name, "memory", func(c CustomShape) (CustomShape, bool) {
		return c.WithMemory(memoryMiB), c.MemoryMiB == memoryMiB
	})
}

// UpdateCPUs resizes the cpu count of a stopped VM running a custom shape
func (p *Provider) UpdateCPUs(ctx context.Context, name string, cpus int) contracts.Result {
	return p.resize(ctx, "update-cpus", name, "cpus", func(c CustomShape) (CustomShape, bool) {
		return c.WithCPUs(cpus), c.CPUs == cpus
	})
}

func (p *Provider) resize(ctx context.Context, operation, name, what string, change func(CustomShape) (CustomShape, bool)) contracts.Result {
	return p.run(ctx, operation, name, func(ctx context.Context) contracts.Result {
		vm, err := p.stoppedInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		current, ok := ParseCustomShape(vm.MachineType)
		if !ok {
			p.warn(ctx, fmt.Sprintf("No custom machine type found. Not updating %s of %s", what, name))
			return contracts.Success()
		}
		desired, same := change(current)
		if same {
			return contracts.Success()
		}
		return contracts.ResultFrom(p.setMachineType(ctx, name, desired.String()))
	})
}

// UpdateMetadata sets one label on a VM using its label fingerprint
func (p *Provider) UpdateMetadata(ctx context.Context, name, key, value string) contracts.Result {
	return p.run(ctx, "update-metadata", name, func(ctx context.Context) contracts.Result {
		return contracts.ResultFrom(p.setLabel(ctx, name, key, value))
	})
}

// UpdateInformation stores a note under the information label
func (p *Provider) UpdateInformation(ctx context.Context, name, information string) contracts.Result {
	return p.run(ctx, "update-information", name, func(ctx context.Context) contracts.Result {
		return contracts.ResultFrom(p.setLabel(ctx, name, "information", information))
	})
}

func (p *Provider) setLabel(ctx context.Context, name, key, value string) error {
	vm, err := p.getInstance(ctx, name)
	if err != nil {
		return err
	}
	value = strings.ReplaceAll(value, ".", "-")
	labels := make(map[string]string, len(vm.Labels)+1)
	for k, v := range vm.Labels {
		labels[k] = v
	}
	if current, ok := labels[key]; ok && current == value {
		return nil
	}
	labels[key] = value
	op, err := p.compute.SetInstanceLabels(ctx, p.project, p.zone, name, &compute.InstancesSetLabelsRequest{
		Labels:           labels,
		LabelFingerprint: vm.LabelFingerprint,
	})
	return p.apply(ctx, op, err)
}

// Exists reports whether a VM exists
func (p *Provider) Exists(ctx context.Context, name string) (bool, error) {
	return query(ctx, p, "exists", name, func(ctx context.Context) (bool, error) {
		_, err := p.compute.GetInstance(ctx, p.project, p.zone, name)
		if err == nil {
			return true, nil
		}
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	})
}

// Status returns the remote lifecycle state of a VM
func (p *Provider) Status(ctx context.Context, name string) (contracts.VMStatus, error) {
	return query(ctx, p, "status", name, func(ctx context.Context) (contracts.VMStatus, error) {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return "", err
		}
		return contracts.VMStatus(vm.Status), nil
	})
}

// IP returns the external address when the provider is public, else the internal one
func (p *Provider) IP(ctx context.Context, name string) (string, error) {
	return query(ctx, p, "ip", name, func(ctx context.Context) (string, error) {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return "", err
		}
		if !p.public {
			return primaryInternalIP(vm), nil
		}
		return natIP(vm), nil
	})
}

// InternalIP returns the internal address of the primary interface
func (p *Provider) InternalIP(ctx context.Context, name string) (string, error) {
	return query(ctx, p, "internal-ip", name, func(ctx context.Context) (string, error) {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return "", err
		}
		return primaryInternalIP(vm), nil
	})
}

func primaryInternalIP(vm *compute.Instance) string {
	if len(vm.NetworkInterfaces) == 0 {
		return ""
	}
	return vm.NetworkInterfaces[0].NetworkIP
}

func natIP(vm *compute.Instance) string {
	if len(vm.NetworkInterfaces) == 0 || len(vm.NetworkInterfaces[0].AccessConfigs) == 0 {
		return ""
	}
	return vm.NetworkInterfaces[0].AccessConfigs[0].NatIP
}

// Info describes a VM
func (p *Provider) Info(ctx context.Context, name string) (contracts.VMInfo, error) {
	return query(ctx, p, "info", name, func(ctx context.Context) (contracts.VMInfo, error) {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return contracts.VMInfo{}, err
		}
		return p.describe(ctx, vm)
	})
}

// List returns every VM in the zone sorted by name; VMs that cannot be described are skipped
func (p *Provider) List(ctx context.Context) ([]contracts.VMInfo, error) {
	return query(ctx, p, "list", p.zone, func(ctx context.Context) ([]contracts.VMInfo, error) {
		instances, err := p.compute.ListInstances(ctx, p.project, p.zone)
		if err != nil {
			return nil, err
		}
		log := logging.FromContext(ctx)
		vms := make([]contracts.VMInfo, 0, len(instances))
		for _, vm := range instances {
			info, err := p.describe(ctx, vm)
			if err != nil {
				log.V(1).Info("skipping vm", "vm", vm.Name, "error", err.Error())
				continue
			}
			vms = append(vms, info)
		}
		sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
		return vms, nil
	})
}

func (p *Provider) describe(ctx context.Context, vm *compute.Instance) (contracts.VMInfo, error) {
	info := contracts.VMInfo{
		Name:   vm.Name,
		Status: contracts.VMStatus(vm.Status),
		Flavor: path.Base(vm.MachineType),
	}
	if shape, ok := ParseCustomShape(vm.MachineType); ok {
		info.CPUs, info.MemoryMiB = shape.CPUs, shape.MemoryMiB
	} else {
		mt, err := p.compute.GetMachineType(ctx, p.project, p.zone, info.Flavor)
		if err != nil {
			return contracts.VMInfo{}, classify(err)
		}
		info.CPUs, info.MemoryMiB = int(mt.GuestCpus), int(mt.MemoryMb)
	}
	if vm.Scheduling != nil {
		info.Autostart = util.BoolValue(vm.Scheduling.AutomaticRestart)
	}
	if p.public {
		info.IP = natIP(vm)
	}
	if len(vm.Disks) > 0 {
		boot := vm.Disks[0]
		disk, err := p.compute.GetDisk(ctx, p.project, p.zone, path.Base(boot.Source))
		if err != nil {
			return contracts.VMInfo{}, classify(err)
		}
		if disk.SourceImage != "" {
			info.Image = path.Base(disk.SourceImage)
		} else if len(boot.Licenses) > 0 {
			info.Image = path.Base(boot.Licenses[len(boot.Licenses)-1])
		}
	}
	if info.Image != "" {
		info.User = p.userdata.DefaultUser(info.Image)
	}
	if created, err := time.Parse(time.RFC3339, vm.CreationTimestamp); err == nil {
		info.CreationDate = created.Format("02-01-2006 15:04")
	}
	for _, nic := range vm.NetworkInterfaces {
		private := util.FirstNonEmpty(nic.NetworkIP, "N/A")
		info.PrivateIP = private
		if info.IP == "" && private != "N/A" {
			info.IP = private
		}
		info.Nets = append(info.Nets, contracts.NicInfo{Device: nic.Name, IP: private, Net: path.Base(nic.Network)})
	}
	for _, attached := range vm.Disks {
		name := path.Base(attached.Source)
		size := int(attached.DiskSizeGb)
		if disk, err := p.compute.GetDisk(ctx, p.project, p.zone, name); err == nil {
			size = int(disk.SizeGb)
		}
		info.Disks = append(info.Disks, contracts.DiskInfo{
			Name:   name,
			Device: attached.DeviceName,
			SizeGB: size,
			Format: attached.Interface,
			Type:   attached.Type,
			Path:   name,
		})
	}
	if labels := contracts.ParseLabels(vm.Labels).Flatten(); len(labels) > 0 {
		info.Labels = labels
	}
	if vm.Tags != nil {
		info.Tags = vm.Tags.Items
	}
	return info, nil
}
