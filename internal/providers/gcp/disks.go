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
	"path"
	"sort"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// AddDisk creates a blank disk named <vm>-disk<n+1>, waits for it to be ready and attaches it
func (p *Provider) AddDisk(ctx context.Context, name string, sizeGB int) contracts.Result {
	return p.run(ctx, "add-disk", name, func(ctx context.Context) contracts.Result {
		if sizeGB <= 0 {
			return contracts.Failure(contracts.ErrorTypeInvalidSpec, "Invalid disk size %d", sizeGB)
		}
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		diskName := fmt.Sprintf("%s-disk%d", name, len(vm.Disks)+1)
		if err := p.createDisk(ctx, diskName, sizeGB); err != nil {
			return contracts.ResultFrom(err).With("disk", diskName)
		}
		op, err := p.compute.AttachDisk(ctx, p.project, p.zone, name, &compute.AttachedDisk{
			Source:     p.diskSource(diskName),
			AutoDelete: true,
		})
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err).With("disk", diskName)
		}
		return contracts.SuccessWith("disk", diskName)
	})
}

// DeleteDisk removes a disk, detaching it from vm first when attached there
func (p *Provider) DeleteDisk(ctx context.Context, name, disk string) contracts.Result {
	return p.run(ctx, "delete-disk", disk, func(ctx context.Context) contracts.Result {
		if name != "" {
			if err := p.detachDisk(ctx, name, disk); err != nil {
				return contracts.ResultFrom(err)
			}
		}
		op, err := p.compute.DeleteDisk(ctx, p.project, p.zone, disk)
		if err != nil && isNotFound(err) {
			return contracts.Failure(contracts.ErrorTypeNotFound, "Disk %s not found", disk)
		}
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

func (p *Provider) detachDisk(ctx context.Context, name, disk string) error {
	vm, err := p.compute.GetInstance(ctx, p.project, p.zone, name)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err)
	}
	for _, attached := range vm.Disks {
		if path.Base(attached.Source) != disk {
			continue
		}
		if attached.Boot {
			return contracts.NewPreconditionError(fmt.Sprintf("Disk %s is the boot disk of %s", disk, name), nil)
		}
		op, err := p.compute.DetachDisk(ctx, p.project, p.zone, name, attached.DeviceName)
		return p.apply(ctx, op, err)
	}
	return nil
}

// ListDisks returns every disk of the zone sorted by name
func (p *Provider) ListDisks(ctx context.Context) ([]contracts.DiskInfo, error) {
	return query(ctx, p, "list-disks", p.zone, func(ctx context.Context) ([]contracts.DiskInfo, error) {
		disks, err := p.compute.ListDisks(ctx, p.project, p.zone)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.DiskInfo, 0, len(disks))
		for _, d := range disks {
			info := contracts.DiskInfo{
				Name:   d.Name,
				SizeGB: int(d.SizeGb),
				Type:   path.Base(d.Type),
				Path:   p.zone,
				Status: d.Status,
			}
			if len(d.Users) > 0 {
				info.VM = path.Base(d.Users[0])
			}
			out = append(out, info)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	})
}
