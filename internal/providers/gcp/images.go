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
	"strings"

	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
)

const vmxLicense = "projects/vm-options/global/licenses/enable-vmx"

// PublicImageProjects are searched for image families
var PublicImageProjects = []string{
	"centos-cloud", "coreos-cloud", "cos-cloud", "debian-cloud", "fedora-coreos-cloud",
	"rhel-cloud", "suse-cloud", "ubuntu-os-cloud",
}

// EvaluateImage maps well known cloud image file names onto public image families
func EvaluateImage(image string) string {
	lower := strings.ToLower(image)
	switch {
	case strings.Contains(image, "CentOS-7"):
		return "centos-7"
	case strings.Contains(image, "debian-8"):
		return "debian-8"
	case strings.Contains(image, "debian-9"):
		return "debian-9"
	case strings.Contains(lower, "rhel-guest-image-7"), strings.Contains(lower, "rhel-server-7"):
		return "rhel-7"
	case strings.Contains(lower, "rhel-guest-image-8"), strings.Contains(lower, "rhel-server-8"):
		return "rhel-8"
	}
	for _, u := range userdata.Ubuntus {
		if strings.Contains(lower, u) {
			return "ubuntu-1804-lts"
		}
	}
	return image
}

// ImageProject returns the public project publishing an image family, or "" for own images
func ImageProject(image string) string {
	switch {
	case strings.HasPrefix(image, "sles"):
		return "suse-cloud"
	case strings.HasPrefix(image, "ubuntu"):
		return "ubuntu-os-cloud"
	}
	for _, prefix := range []string{"centos", "coreos", "cos", "debian", "rhel"} {
		if strings.HasPrefix(image, prefix) {
			return strings.SplitN(image, "-", 2)[0] + "-cloud"
		}
	}
	return ""
}

// resolveImage returns the source image link of a boot disk and the evaluated image name
func (p *Provider) resolveImage(ctx context.Context, image string) (string, string, error) {
	if strings.HasPrefix(image, "rhcos") {
		return fmt.Sprintf("%s/projects/rhcos-cloud/global/images/%s", computeURL, image), image, nil
	}
	image = EvaluateImage(image)
	var (
		img *compute.Image
		err error
	)
	if project := ImageProject(image); project != "" {
		img, err = p.compute.GetImageFromFamily(ctx, project, image)
	} else {
		img, err = p.compute.GetImage(ctx, p.project, image)
	}
	if err != nil {
		return "", image, contracts.NewInvalidSpecError(fmt.Sprintf("Issue with image %s", image), err)
	}
	return img.SelfLink, image, nil
}

// Volumes lists the families of public images plus the project's own images
func (p *Provider) Volumes(ctx context.Context) ([]string, error) {
	return query(ctx, p, "volumes", p.project, func(ctx context.Context) ([]string, error) {
		seen := map[string]bool{}
		var out []string
		add := func(name string) {
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		for _, project := range append(append([]string{}, PublicImageProjects...), p.project) {
			images, err := p.compute.ListImages(ctx, project)
			if err != nil {
				return nil, err
			}
			for _, img := range images {
				if project == p.project {
					add(img.Name)
				} else {
					add(img.Family)
				}
			}
		}
		sort.Strings(out)
		return out, nil
	})
}

// imageName derives a valid image name from an image URL
func imageName(url string) string {
	name := strings.SplitN(path.Base(url), "?", 2)[0]
	name = strings.TrimSuffix(name, ".tar.gz")
	name = strings.ReplaceAll(name, ".", "-")
	if strings.Contains(url, "rhcos") && !strings.HasPrefix(name, "rhcos") {
		name = "rhcos-" + name
	}
	return name
}

// AddImage imports an image; tar.gz URLs are imported as raw disks
func (p *Provider) AddImage(ctx context.Context, url string) contracts.Result {
	name := imageName(url)
	return p.run(ctx, "add-image", name, func(ctx context.Context) contracts.Result {
		image := &compute.Image{Name: name, Licenses: []string{vmxLicense}}
		if strings.HasSuffix(url, "tar.gz") {
			image.RawDisk = &compute.ImageRawDisk{Source: url}
		}
		op, err := p.compute.InsertImage(ctx, p.project, image, false)
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err)
		}
		return contracts.SuccessWith("image", name)
	})
}

// DeleteImage removes an own image
func (p *Provider) DeleteImage(ctx context.Context, image string) contracts.Result {
	return p.run(ctx, "delete-image", image, func(ctx context.Context) contracts.Result {
		op, err := p.compute.DeleteImage(ctx, p.project, image)
		if err != nil && isNotFound(err) {
			return contracts.Failure(contracts.ErrorTypeNotFound, "Image %s not found", image)
		}
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

// Export creates an image from the boot disk of a VM that is not running
func (p *Provider) Export(ctx context.Context, name, image string) contracts.Result {
	return p.run(ctx, "export", name, func(ctx context.Context) contracts.Result {
		vm, err := p.getInstance(ctx, name)
		if err != nil {
			return contracts.ResultFrom(err)
		}
		if contracts.VMStatus(vm.Status) == contracts.VMStatusRunning {
			return contracts.Failure(contracts.ErrorTypePrecondition, "VM %s up", name)
		}
		if len(vm.Disks) == 0 {
			return contracts.Failure(contracts.ErrorTypePrecondition, "VM %s has no disk", name)
		}
		if image == "" {
			image = name
		}
		op, err := p.compute.InsertImage(ctx, p.project, &compute.Image{
			Name:        image,
			Description: fmt.Sprintf("image based on %s", name),
			SourceDisk:  vm.Disks[0].Source,
			Licenses:    []string{vmxLicense},
		}, true)
		if err := p.apply(ctx, op, err); err != nil {
			return contracts.ResultFrom(err)
		}
		return contracts.SuccessWith("image", image)
	})
}

// CreateSnapshot creates an image called name from the boot disk of VM base, or from image base
func (p *Provider) CreateSnapshot(ctx context.Context, name, base string) contracts.Result {
	return p.run(ctx, "create-snapshot", name, func(ctx context.Context) contracts.Result {
		image := &compute.Image{Name: name, Licenses: []string{vmxLicense}}
		vm, err := p.compute.GetInstance(ctx, p.project, p.zone, base)
		switch {
		case err == nil && len(vm.Disks) > 0:
			image.SourceDisk = vm.Disks[0].Source
		case err == nil || isNotFound(err):
			src, err := p.compute.GetImage(ctx, p.project, base)
			if err != nil {
				if isNotFound(err) {
					return contracts.Failure(contracts.ErrorTypeNotFound, "VM/disk %s not found", base)
				}
				return contracts.ResultFrom(classify(err))
			}
			image.SourceImage = src.SelfLink
		default:
			return contracts.ResultFrom(classify(err))
		}
		op, err := p.compute.InsertImage(ctx, p.project, image, true)
		return contracts.ResultFrom(p.apply(ctx, op, err))
	})
}

func flavorInfo(mt *compute.MachineType) contracts.FlavorInfo {
	return contracts.FlavorInfo{Name: mt.Name, CPUs: int(mt.GuestCpus), MemoryMiB: int(mt.MemoryMb)}
}

// ListFlavors returns the machine types of the zone
func (p *Provider) ListFlavors(ctx context.Context) ([]contracts.FlavorInfo, error) {
	return query(ctx, p, "list-flavors", p.zone, func(ctx context.Context) ([]contracts.FlavorInfo, error) {
		types, err := p.compute.ListMachineTypes(ctx, p.project, p.zone)
		if err != nil {
			return nil, err
		}
		out := make([]contracts.FlavorInfo, 0, len(types))
		for _, mt := range types {
			out = append(out, flavorInfo(mt))
		}
		return out, nil
	})
}

// InfoFlavor describes one machine type
func (p *Provider) InfoFlavor(ctx context.Context, flavor string) (contracts.FlavorInfo, error) {
	return query(ctx, p, "info-flavor", flavor, func(ctx context.Context) (contracts.FlavorInfo, error) {
		mt, err := p.compute.GetMachineType(ctx, p.project, p.zone, flavor)
		if err != nil {
			if isNotFound(err) {
				return contracts.FlavorInfo{}, contracts.NewNotFoundError(fmt.Sprintf("Flavor %s not found", flavor), err)
			}
			return contracts.FlavorInfo{}, err
		}
		return flavorInfo(mt), nil
	})
}
