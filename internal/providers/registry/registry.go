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

package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
)

// Provider types
const (
	TypeGCP  = "gcp"
	TypeFake = "fake"
)

// ProviderFactory creates a new provider instance
type ProviderFactory func(ctx context.Context, cfg *config.Config) (contracts.Provider, error)

// Registry manages provider factories and the connections they produce.
// Connections are cached per provider type, project, zone and region.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	instances map[string]contracts.Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		instances: make(map[string]contracts.Provider),
	}
}

// Register registers a provider factory for a given type
func (r *Registry) Register(providerType string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

func cacheKey(providerType string, cfg *config.Config) string {
	return fmt.Sprintf("%s:%s:%s:%s", providerType, cfg.GCP.Project, cfg.GCP.Zone, cfg.GCP.Region)
}

// Get returns a provider instance of the given type for cfg
func (r *Registry) Get(ctx context.Context, providerType string, cfg *config.Config) (contracts.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey(providerType, cfg)

	// Check if we have a cached instance
	if instance, ok := r.instances[key]; ok {
		return instance, nil
	}

	// Look up the factory
	factory, ok := r.factories[providerType]
	if !ok {
		return nil, fmt.Errorf("no factory registered for provider type: %s", providerType)
	}

	// Create new instance
	instance, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider instance: %w", err)
	}

	// Cache the instance
	r.instances[key] = instance

	return instance, nil
}

// Invalidate closes and removes a cached provider instance
func (r *Registry) Invalidate(providerType string, cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cacheKey(providerType, cfg)
	instance, ok := r.instances[key]
	if !ok {
		return nil
	}
	delete(r.instances, key)
	return instance.Close()
}

// Close closes every cached provider instance
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, instance := range r.instances {
		if err := instance.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.instances, key)
	}
	return firstErr
}

// ListSupportedTypes returns the list of supported provider types
func (r *Registry) ListSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for providerType := range r.factories {
		types = append(types, providerType)
	}
	sort.Strings(types)
	return types
}

// IsSupported returns true if the provider type is supported
func (r *Registry) IsSupported(providerType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[providerType]
	return ok
}
