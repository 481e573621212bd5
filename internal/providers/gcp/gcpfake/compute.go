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
	"strings"

	compute "google.golang.org/api/compute/v1"
)

// AddInstance stores inst as if it had been created earlier
func (c *Cloud) AddInstance(project, zone string, inst *compute.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.insertInstance(project, zone, clone(inst)); err != nil {
		panic(fmt.Sprintf("gcpfake: %v", err))
	}
}

// insertInstance normalizes inst the way the API does; c.mu must be held
func (c *Cloud) insertInstance(project, zone string, inst *compute.Instance) error {
	k := key(project, zone, inst.Name)
	if _, ok := c.instances[k]; ok {
		return alreadyExists("instance", inst.Name)
	}
	for _, d := range inst.Disks {
		if d.InitializeParams == nil {
			if _, ok := c.disks[key(project, zone, lastSegment(d.Source))]; !ok {
				return notFound("disk", lastSegment(d.Source))
			}
		}
	}
	for i, nic := range inst.NetworkInterfaces {
		if err := c.checkAliasRanges(project, zone, i, nic.Network, nic.Subnetwork, nic.AliasIpRanges); err != nil {
			return err
		}
	}

	inst.Id = uint64(c.next())
	inst.Zone = zoneLink(project, zone)
	inst.SelfLink = zonalLink(project, zone, "instances", inst.Name)
	inst.CreationTimestamp = c.timestamp()
	inst.Fingerprint = c.fingerprint("fp")
	inst.LabelFingerprint = c.fingerprint("lfp")
	if inst.Status == "" {
		inst.Status = "RUNNING"
	}
	for i, nic := range inst.NetworkInterfaces {
		nic.Name = fmt.Sprintf("nic%d", i)
		nic.Fingerprint = c.fingerprint("nicfp")
		if nic.NetworkIP == "" {
			nic.NetworkIP = fmt.Sprintf("10.%d.0.%d", 128+i, c.next()%250+2)
		}
		if i == 0 && len(nic.AccessConfigs) > 0 && nic.AccessConfigs[0].NatIP == "" {
			ip := fmt.Sprintf("34.%d.%d.%d", 76+c.next()%100, c.next()%250, c.next()%250+1)
			if c.cfg.AddressPolls > 0 {
				c.addressPending[k] = &pendingAddress{ip: ip, polls: c.cfg.AddressPolls}
			} else {
				nic.AccessConfigs[0].NatIP = ip
			}
		}
	}
	for i, d := range inst.Disks {
		d.Index = int64(i)
		d.Type = "PERSISTENT"
		if d.Interface == "" {
			d.Interface = "SCSI"
		}
		if d.DeviceName == "" {
			d.DeviceName = fmt.Sprintf("persistent-disk-%d", i)
		}
		if p := d.InitializeParams; p != nil {
			name := p.DiskName
			if name == "" {
				name = inst.Name
			}
			size := p.DiskSizeGb
			if size == 0 {
				size = 10
			}
			c.disks[key(project, zone, name)] = &disk{disk: &compute.Disk{
				Name:              name,
				SizeGb:            size,
				SourceImage:       p.SourceImage,
				Status:            "READY",
				Zone:              inst.Zone,
				Type:              zonalLink(project, zone, "diskTypes", "pd-standard"),
				SelfLink:          zonalLink(project, zone, "disks", name),
				CreationTimestamp: inst.CreationTimestamp,
			}}
			d.Source = zonalLink(project, zone, "disks", name)
			d.DiskSizeGb = size
			d.InitializeParams = nil
		}
		stored := c.disks[key(project, zone, lastSegment(d.Source))].disk
		stored.Users = append(stored.Users, inst.SelfLink)
		if d.DiskSizeGb == 0 {
			d.DiskSizeGb = stored.SizeGb
		}
	}
	c.instances[k] = inst
	return nil
}

func (c *Cloud) instance(project, zone, name string) (*compute.Instance, error) {
	inst, ok := c.instances[key(project, zone, name)]
	if !ok {
		return nil, notFound("instance", name)
	}
	return inst, nil
}

func (c *Cloud) GetInstance(ctx context.Context, project, zone, name string) (*compute.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetInstance", name, false); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	k := key(project, zone, name)
	if pending, ok := c.addressPending[k]; ok {
		if pending.polls > 0 {
			pending.polls--
		} else {
			inst.NetworkInterfaces[0].AccessConfigs[0].NatIP = pending.ip
			delete(c.addressPending, k)
		}
	}
	return clone(inst), nil
}

func (c *Cloud) ListInstances(ctx context.Context, project, zone string) ([]*compute.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListInstances", zone, false); err != nil {
		return nil, err
	}
	return sortedValues(c.instances, key(project, zone)+"/"), nil
}

func (c *Cloud) InsertInstance(ctx context.Context, project, zone string, instance *compute.Instance) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertInstance", instance.Name, true); err != nil {
		return nil, err
	}
	inst := clone(instance)
	if err := c.insertInstance(project, zone, inst); err != nil {
		return nil, err
	}
	return c.newOperation("InsertInstance", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) DeleteInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteInstance", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	for _, d := range inst.Disks {
		dk := key(project, zone, lastSegment(d.Source))
		stored, ok := c.disks[dk]
		if !ok {
			continue
		}
		if d.AutoDelete {
			delete(c.disks, dk)
			continue
		}
		stored.disk.Users = removeString(stored.disk.Users, inst.SelfLink)
	}
	delete(c.instances, key(project, zone, name))
	delete(c.addressPending, key(project, zone, name))
	return c.newOperation("DeleteInstance", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) setStatus(method, project, zone, name, status string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(method, name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	inst.Status = status
	return c.newOperation(method, project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) StartInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return c.setStatus("StartInstance", project, zone, name, "RUNNING")
}

func (c *Cloud) StopInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return c.setStatus("StopInstance", project, zone, name, "TERMINATED")
}

func (c *Cloud) ResetInstance(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return c.setStatus("ResetInstance", project, zone, name, "RUNNING")
}

func (c *Cloud) SetMachineType(ctx context.Context, project, zone, name, machineType string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SetMachineType", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	if inst.Status == "RUNNING" {
		return nil, apiError(http.StatusBadRequest, "resourceNotReady",
			"The resource '%s' is not ready", inst.SelfLink)
	}
	inst.MachineType = machineType
	return c.newOperation("SetMachineType", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) SetInstanceLabels(ctx context.Context, project, zone, name string, req *compute.InstancesSetLabelsRequest) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("SetInstanceLabels", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	if req.LabelFingerprint != inst.LabelFingerprint {
		return nil, fingerprintMismatch("labels")
	}
	inst.Labels = map[string]string{}
	for k, v := range req.Labels {
		inst.Labels[k] = v
	}
	inst.LabelFingerprint = c.fingerprint("lfp")
	return c.newOperation("SetInstanceLabels", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) AttachDisk(ctx context.Context, project, zone, name string, attached *compute.AttachedDisk) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("AttachDisk", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	diskName := lastSegment(attached.Source)
	stored, ok := c.disks[key(project, zone, diskName)]
	if !ok {
		return nil, notFound("disk", diskName)
	}
	d := clone(attached)
	d.Source = stored.disk.SelfLink
	d.Index = int64(len(inst.Disks))
	d.Type = "PERSISTENT"
	d.DiskSizeGb = stored.disk.SizeGb
	if d.DeviceName == "" {
		d.DeviceName = diskName
	}
	inst.Disks = append(inst.Disks, d)
	stored.disk.Users = append(stored.disk.Users, inst.SelfLink)
	return c.newOperation("AttachDisk", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) DetachDisk(ctx context.Context, project, zone, name, deviceName string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DetachDisk", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	for i, d := range inst.Disks {
		if d.DeviceName != deviceName {
			continue
		}
		inst.Disks = append(inst.Disks[:i], inst.Disks[i+1:]...)
		if stored, ok := c.disks[key(project, zone, lastSegment(d.Source))]; ok {
			stored.disk.Users = removeString(stored.disk.Users, inst.SelfLink)
		}
		return c.newOperation("DetachDisk", project, zone, "", inst.SelfLink), nil
	}
	return nil, apiError(http.StatusBadRequest, "invalid", "No attached disk found with device name '%s'", deviceName)
}

func (c *Cloud) nic(inst *compute.Instance, name string) (*compute.NetworkInterface, error) {
	for _, nic := range inst.NetworkInterfaces {
		if nic.Name == name {
			return nic, nil
		}
	}
	return nil, apiError(http.StatusBadRequest, "invalid", "No network interface '%s' on %s", name, inst.Name)
}

func (c *Cloud) UpdateNetworkInterface(ctx context.Context, project, zone, name, nicName string, iface *compute.NetworkInterface) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("UpdateNetworkInterface", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	nic, err := c.nic(inst, nicName)
	if err != nil {
		return nil, err
	}
	if iface.Fingerprint != nic.Fingerprint {
		return nil, fingerprintMismatch("network interface")
	}
	if err := c.checkAliasRanges(project, zone, 0, nic.Network, nic.Subnetwork, iface.AliasIpRanges); err != nil {
		return nil, err
	}
	nic.AliasIpRanges = cloneAll(iface.AliasIpRanges)
	nic.Fingerprint = c.fingerprint("nicfp")
	return c.newOperation("UpdateNetworkInterface", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) UpdateAccessConfig(ctx context.Context, project, zone, name, nicName string, ac *compute.AccessConfig) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("UpdateAccessConfig", name, true); err != nil {
		return nil, err
	}
	inst, err := c.instance(project, zone, name)
	if err != nil {
		return nil, err
	}
	nic, err := c.nic(inst, nicName)
	if err != nil {
		return nil, err
	}
	if len(nic.AccessConfigs) == 0 {
		nic.AccessConfigs = []*compute.AccessConfig{{Name: "External NAT", Type: "ONE_TO_ONE_NAT"}}
	}
	nic.AccessConfigs[0].NatIP = ac.NatIP
	delete(c.addressPending, key(project, zone, name))
	return c.newOperation("UpdateAccessConfig", project, zone, "", inst.SelfLink), nil
}

func (c *Cloud) GetDisk(ctx context.Context, project, zone, name string) (*compute.Disk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetDisk", name, false); err != nil {
		return nil, err
	}
	d, ok := c.disks[key(project, zone, name)]
	if !ok {
		return nil, notFound("disk", name)
	}
	if d.polls > 0 {
		d.polls--
		d.disk.Status = "CREATING"
	} else {
		d.disk.Status = "READY"
	}
	return clone(d.disk), nil
}

func (c *Cloud) ListDisks(ctx context.Context, project, zone string) ([]*compute.Disk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListDisks", zone, false); err != nil {
		return nil, err
	}
	prefix := key(project, zone) + "/"
	var keys []string
	for k := range c.disks {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*compute.Disk, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(c.disks[k].disk))
	}
	return out, nil
}

func (c *Cloud) InsertDisk(ctx context.Context, project, zone string, body *compute.Disk) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertDisk", body.Name, true); err != nil {
		return nil, err
	}
	k := key(project, zone, body.Name)
	if _, ok := c.disks[k]; ok {
		return nil, alreadyExists("disk", body.Name)
	}
	d := clone(body)
	d.Zone = zoneLink(project, zone)
	d.SelfLink = zonalLink(project, zone, "disks", d.Name)
	d.CreationTimestamp = c.timestamp()
	if d.Type == "" {
		d.Type = zonalLink(project, zone, "diskTypes", "pd-standard")
	}
	d.Status = "READY"
	if c.cfg.DiskReadyPolls > 0 {
		d.Status = "CREATING"
	}
	c.disks[k] = &disk{disk: d, polls: c.cfg.DiskReadyPolls}
	return c.newOperation("InsertDisk", project, zone, "", d.SelfLink), nil
}

func (c *Cloud) DeleteDisk(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteDisk", name, true); err != nil {
		return nil, err
	}
	k := key(project, zone, name)
	d, ok := c.disks[k]
	if !ok {
		return nil, notFound("disk", name)
	}
	if len(d.disk.Users) > 0 {
		return nil, inUse("disk", name, d.disk.Users[0])
	}
	delete(c.disks, k)
	return c.newOperation("DeleteDisk", project, zone, "", d.disk.SelfLink), nil
}

// AddImage stores img in project
func (c *Cloud) AddImage(project string, img *compute.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addImage(project, clone(img))
}

func (c *Cloud) addImage(project string, img *compute.Image) {
	img.SelfLink = globalLink(project, "images", img.Name)
	if img.Status == "" {
		img.Status = "READY"
	}
	if img.CreationTimestamp == "" {
		img.CreationTimestamp = c.timestamp()
	}
	c.images[key(project, img.Name)] = img
}

func (c *Cloud) GetImage(ctx context.Context, project, name string) (*compute.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetImage", name, false); err != nil {
		return nil, err
	}
	img, ok := c.images[key(project, name)]
	if !ok {
		return nil, notFound("image", name)
	}
	return clone(img), nil
}

// GetImageFromFamily returns the newest non deprecated image of family
func (c *Cloud) GetImageFromFamily(ctx context.Context, project, family string) (*compute.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetImageFromFamily", family, false); err != nil {
		return nil, err
	}
	var latest *compute.Image
	for k, img := range c.images {
		if !strings.HasPrefix(k, project+"/") || img.Family != family || img.Deprecated != nil {
			continue
		}
		if latest == nil || img.CreationTimestamp > latest.CreationTimestamp {
			latest = img
		}
	}
	if latest == nil {
		return nil, notFound("image family", family)
	}
	return clone(latest), nil
}

func (c *Cloud) ListImages(ctx context.Context, project string) ([]*compute.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListImages", project, false); err != nil {
		return nil, err
	}
	return sortedValues(c.images, project+"/"), nil
}

func (c *Cloud) InsertImage(ctx context.Context, project string, image *compute.Image, force bool) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("InsertImage", image.Name, true); err != nil {
		return nil, err
	}
	if _, ok := c.images[key(project, image.Name)]; ok {
		return nil, alreadyExists("image", image.Name)
	}
	if image.SourceDisk != "" && !force {
		if user := c.runningUser(image.SourceDisk); user != "" {
			return nil, inUse("disk", lastSegment(image.SourceDisk), user)
		}
	}
	img := clone(image)
	img.CreationTimestamp = ""
	c.addImage(project, img)
	return c.newOperation("InsertImage", project, "", "", img.SelfLink), nil
}

func (c *Cloud) DeleteImage(ctx context.Context, project, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("DeleteImage", name, true); err != nil {
		return nil, err
	}
	img, ok := c.images[key(project, name)]
	if !ok {
		return nil, notFound("image", name)
	}
	delete(c.images, key(project, name))
	return c.newOperation("DeleteImage", project, "", "", img.SelfLink), nil
}

// AddMachineType makes mt available in every zone
func (c *Cloud) AddMachineType(mt *compute.MachineType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machineTypes[mt.Name] = clone(mt)
}

func (c *Cloud) GetMachineType(ctx context.Context, project, zone, name string) (*compute.MachineType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetMachineType", name, false); err != nil {
		return nil, err
	}
	mt, ok := c.machineTypes[name]
	if !ok {
		return nil, notFound("machine type", name)
	}
	out := clone(mt)
	out.Zone = zone
	out.SelfLink = zonalLink(project, zone, "machineTypes", name)
	return out, nil
}

func (c *Cloud) ListMachineTypes(ctx context.Context, project, zone string) ([]*compute.MachineType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("ListMachineTypes", zone, false); err != nil {
		return nil, err
	}
	out := sortedValues(c.machineTypes, "")
	for _, mt := range out {
		mt.Zone = zone
		mt.SelfLink = zonalLink(project, zone, "machineTypes", mt.Name)
	}
	return out, nil
}

func (c *Cloud) GetZoneOperation(ctx context.Context, project, zone, name string) (*compute.Operation, error) {
	return c.pollOperation("GetZoneOperation", name)
}

func (c *Cloud) GetRegionOperation(ctx context.Context, project, region, name string) (*compute.Operation, error) {
	return c.pollOperation("GetRegionOperation", name)
}

func (c *Cloud) GetGlobalOperation(ctx context.Context, project, name string) (*compute.Operation, error) {
	return c.pollOperation("GetGlobalOperation", name)
}

// SetXpnHost attaches project to a shared VPC host
func (c *Cloud) SetXpnHost(project, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.xpn[project] = host
}

func (c *Cloud) GetXpnHost(ctx context.Context, project string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("GetXpnHost", project, false); err != nil {
		return "", err
	}
	return c.xpn[project], nil
}

// runningUser returns the running instance a disk is attached to, or ""
func (c *Cloud) runningUser(diskLink string) string {
	for _, inst := range c.instances {
		if inst.Status != "RUNNING" {
			continue
		}
		for _, d := range inst.Disks {
			if lastSegment(d.Source) == lastSegment(diskLink) && linkSegment(d.Source, "zones") == linkSegment(diskLink, "zones") {
				return inst.SelfLink
			}
		}
	}
	return ""
}

// checkAliasRanges rejects alias ranges naming a secondary range the nic's subnet does not have
func (c *Cloud) checkAliasRanges(project, zone string, index int, network, subnetwork string, ranges []*compute.AliasIpRange) error {
	if len(ranges) == 0 {
		return nil
	}
	owner, region, name := project, zoneRegion(zone), lastSegment(network)
	if subnetwork != "" {
		name = lastSegment(subnetwork)
		if p := linkSegment(subnetwork, "projects"); p != "" {
			owner = p
		}
		if r := linkSegment(subnetwork, "regions"); r != "" {
			region = r
		}
	}
	subnet, ok := c.subnets[key(owner, region, name)]
	if !ok {
		return notFound("subnetwork", name)
	}
	known := map[string]bool{}
	for _, r := range subnet.SecondaryIpRanges {
		known[r.RangeName] = true
	}
	for j, r := range ranges {
		if r.SubnetworkRangeName != "" && !known[r.SubnetworkRangeName] {
			return apiError(http.StatusBadRequest, "invalid",
				"Invalid value for field 'resource.networkInterfaces[%d].aliasIpRanges[%d].subnetworkRangeName': '%s'. Secondary range not found in subnetwork '%s'",
				index, j, r.SubnetworkRangeName, name)
		}
	}
	return nil
}

func zoneRegion(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}

func linkSegment(link, kind string) string {
	parts := strings.Split(link, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == kind {
			return parts[i+1]
		}
	}
	return ""
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, v := range in {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
