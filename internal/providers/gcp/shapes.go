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
	"fmt"
	"path"
	"regexp"
	"strconv"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// microShape is used when the requested memory is below what a custom shape accepts
const microShape = "f1-micro"

// Shape is a machine type name plus the adjustments made to reach it
type Shape struct {
	Name     string
	Warnings []string
}

// SynthesizeShape derives a custom machine type from a cpu count and memory in MiB.
// cpus must be 1 or even and memory 512 or a multiple of 1024; more than one cpu needs 2048 MiB.
func SynthesizeShape(cpus, memoryMiB int) (Shape, error) {
	if cpus != 1 && cpus%2 != 0 {
		return Shape{}, contracts.NewInvalidSpecError("Number of cpus is not even", nil)
	}
	if memoryMiB != 512 && memoryMiB%1024 != 0 {
		return Shape{}, contracts.NewInvalidSpecError("Memory is not multiple of 1024", nil)
	}
	shape := Shape{}
	if cpus > 1 && memoryMiB < 2048 {
		shape.Warnings = append(shape.Warnings, "Rounding memory to 2048Mb as more than one cpu is used")
		memoryMiB = 2048
	}
	shape.Name = CustomShape{CPUs: cpus, MemoryMiB: memoryMiB}.String()
	// 0.9 GiB is the smallest memory a custom shape accepts
	if memoryMiB*10 < 9216 {
		shape.Warnings = append(shape.Warnings, "Rounding memory to 1024Mb")
		shape.Name = microShape
	}
	return shape, nil
}

var customShapePattern = regexp.MustCompile(`^(?:([a-z0-9]+)-)?custom-(\d+)-(\d+)(-ext)?$`)

// CustomShape is a parsed [family-]custom-<cpus>-<memory>[-ext] machine type
type CustomShape struct {
	Family    string
	CPUs      int
	MemoryMiB int
	Extended  bool
}

// ParseCustomShape parses a machine type name or URL; ok is false for catalog flavors
func ParseCustomShape(machineType string) (CustomShape, bool) {
	m := customShapePattern.FindStringSubmatch(path.Base(machineType))
	if m == nil {
		return CustomShape{}, false
	}
	cpus, err := strconv.Atoi(m[2])
	if err != nil {
		return CustomShape{}, false
	}
	memory, err := strconv.Atoi(m[3])
	if err != nil {
		return CustomShape{}, false
	}
	return CustomShape{Family: m[1], CPUs: cpus, MemoryMiB: memory, Extended: m[4] != ""}, true
}

// WithCPUs returns a copy with a new cpu count
func (c CustomShape) WithCPUs(cpus int) CustomShape {
	c.CPUs = cpus
	return c
}

// WithMemory returns a copy with a new memory size
func (c CustomShape) WithMemory(memoryMiB int) CustomShape {
	c.MemoryMiB = memoryMiB
	return c
}

// String renders the machine type name
func (c CustomShape) String() string {
	name := fmt.Sprintf("custom-%d-%d", c.CPUs, c.MemoryMiB)
	if c.Family != "" {
		name = c.Family + "-" + name
	}
	if c.Extended {
		name += "-ext"
	}
	return name
}
