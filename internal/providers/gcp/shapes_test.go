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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

func TestSynthesizeShape(t *testing.T) {
	tests := []struct {
		name     string
		cpus     int
		memory   int
		want     string
		warnings []string
	}{
		{name: "custom shape", cpus: 4, memory: 8192, want: "custom-4-8192"},
		{name: "single cpu", cpus: 1, memory: 1024, want: "custom-1-1024"},
		{
			name:     "memory raised for several cpus",
			cpus:     2,
			memory:   512,
			want:     "custom-2-2048",
			warnings: []string{"Rounding memory to 2048Mb as more than one cpu is used"},
		},
		{
			name:     "tiny memory falls back to micro",
			cpus:     1,
			memory:   512,
			want:     "f1-micro",
			warnings: []string{"Rounding memory to 1024Mb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := SynthesizeShape(tt.cpus, tt.memory)
			require.NoError(t, err)
			assert.Equal(t, tt.want, shape.Name)
			assert.Equal(t, tt.warnings, shape.Warnings)
		})
	}
}

func TestSynthesizeShape_Rejects(t *testing.T) {
	_, err := SynthesizeShape(3, 4096)
	require.Error(t, err)
	assert.True(t, contracts.IsType(err, contracts.ErrorTypeInvalidSpec))
	assert.Contains(t, err.Error(), "Number of cpus is not even")

	_, err = SynthesizeShape(2, 1500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Memory is not multiple of 1024")
}

func TestParseCustomShape(t *testing.T) {
	shape, ok := ParseCustomShape("n2-custom-4-8192-ext")
	require.True(t, ok)
	assert.Equal(t, CustomShape{Family: "n2", CPUs: 4, MemoryMiB: 8192, Extended: true}, shape)
	assert.Equal(t, "n2-custom-4-8192-ext", shape.String())

	shape, ok = ParseCustomShape(computeURL + "/projects/p/zones/z/machineTypes/custom-2-4096")
	require.True(t, ok)
	assert.Equal(t, CustomShape{CPUs: 2, MemoryMiB: 4096}, shape)

	assert.Equal(t, "custom-8-4096", shape.WithCPUs(8).String())
	assert.Equal(t, "custom-2-16384", shape.WithMemory(16384).String())
	assert.Equal(t, 2, shape.CPUs)

	_, ok = ParseCustomShape("n1-standard-1")
	assert.False(t, ok)
}
