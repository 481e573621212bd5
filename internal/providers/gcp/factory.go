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

	"cloud.google.com/go/storage"
	compute "google.golang.org/api/compute/v1"
	dns "google.golang.org/api/dns/v1"
	"google.golang.org/api/option"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/events"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
)

// NewBreakers builds the circuit breaker registry shared by the backend clients
func NewBreakers(cfg *config.Config) *resilience.Registry {
	return resilience.NewRegistry(&resilience.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
		HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
	})
}

func policy(cfg *config.Config, breakers *resilience.Registry, service string) *resilience.Policy {
	retry := &resilience.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
		Jitter:      cfg.Retry.Jitter,
	}
	if breakers == nil {
		return resilience.NewPolicy(service, retry, nil)
	}
	return resilience.NewPolicy(service, retry, breakers.GetOrCreate(service))
}

func clientOptions(cfg *config.Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.GCP.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(cfg.GCP.UserAgent))
	}
	if cfg.GCP.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
	}
	return opts
}

// NewClients connects the Compute, DNS and Storage clients described by cfg
func NewClients(ctx context.Context, cfg *config.Config, breakers *resilience.Registry) (Options, error) {
	base := clientOptions(cfg)

	computeOpts := base
	if cfg.GCP.Endpoint != "" {
		computeOpts = append(append([]option.ClientOption{}, base...), option.WithEndpoint(cfg.GCP.Endpoint))
	}
	computeSvc, err := compute.NewService(ctx, computeOpts...)
	if err != nil {
		return Options{}, fmt.Errorf("failed to create compute client: %w", err)
	}
	dnsSvc, err := dns.NewService(ctx, base...)
	if err != nil {
		return Options{}, fmt.Errorf("failed to create dns client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx, base...)
	if err != nil {
		return Options{}, fmt.Errorf("failed to create storage client: %w", err)
	}

	return Options{
		Compute: NewComputeClient(computeSvc, policy(cfg, breakers, "compute")),
		DNS:     NewDNSClient(dnsSvc, policy(cfg, breakers, "dns")),
		Storage: NewStorageClient(storageClient, policy(cfg, breakers, "storage")),
	}, nil
}

// NewEventSink returns a NATS publisher when events are enabled, a no-op sink otherwise
func NewEventSink(ctx context.Context, cfg *config.Config) events.Sink {
	if !cfg.Events.Enabled {
		return events.Nop{}
	}
	pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, cfg.Events.Timeout)
	if err != nil {
		logging.FromContext(ctx).Error(err, "event publishing disabled", "url", cfg.Events.NATSURL)
		return events.Nop{}
	}
	return pub
}

// NewFromConfig builds a Provider talking to Google Cloud
func NewFromConfig(ctx context.Context, cfg *config.Config, breakers *resilience.Registry) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	opts, err := NewClients(ctx, cfg, breakers)
	if err != nil {
		return nil, err
	}
	opts.Events = NewEventSink(ctx, cfg)
	return New(ctx, cfg, opts)
}
