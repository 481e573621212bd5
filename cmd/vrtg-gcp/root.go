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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/tracing"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/gcp/gcpfake"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/registry"
	"github.com/projectbeskar/virtrigaud-gcp/internal/resilience"
	"github.com/projectbeskar/virtrigaud-gcp/internal/version"
)

const fakeProject = "fake-project"

// rootOptions holds the global flags and the state shared by every command
type rootOptions struct {
	configFile string
	project    string
	zone       string
	region     string
	output     string
	timeout    time.Duration
	fake       bool

	out io.Writer

	mu              sync.RWMutex
	manager         *config.Manager
	cfg             *config.Config
	breakers        *resilience.Registry
	providers       *registry.Registry
	shutdownTracing func()
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	rootCmd := &cobra.Command{
		Use:   "vrtg-gcp",
		Short: "CLI tool for the virtrigaud GCP provider",
		Long: `vrtg-gcp manages Google Compute Engine resources through the virtrigaud GCP provider.

It covers instances, disks, images, networks, firewall rules, DNS records,
load balancers and storage buckets, and can serve health and metrics endpoints.`,
		Version:            version.String(),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return opts.setup(cmd.Context()) },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return opts.teardown() },
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.project, "project", "", "GCP project (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&opts.zone, "zone", "", "GCP zone (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&opts.region, "region", "", "GCP region (overrides configuration)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.fake, "fake", false, "Use an in-memory backend instead of Google Cloud")

	rootCmd.AddCommand(
		newVMCommand(opts),
		newDiskCommand(opts),
		newImageCommand(opts),
		newFlavorCommand(opts),
		newNetworkCommand(opts),
		newSubnetCommand(opts),
		newSecurityGroupCommand(opts),
		newDNSCommand(opts),
		newLoadBalancerCommand(opts),
		newBucketCommand(opts),
		newHostCommand(opts),
		newServeCommand(opts),
		newVersionCommand(opts),
	)

	return rootCmd
}

func (o *rootOptions) setup(ctx context.Context) error {
	switch o.output {
	case outputTable, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unsupported output format %q", o.output)
	}

	manager, err := config.NewManager(o.configFile)
	if err != nil {
		return err
	}
	cfg := o.withOverrides(manager.Get())
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := logging.Setup(&logging.Config{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Sampling:     cfg.Log.Sampling,
		Development:  cfg.Log.Development,
		SamplingRate: 100,
	}); err != nil {
		return err
	}

	tracingCfg := tracing.DefaultConfig(version.Component, version.Version)
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.Endpoint = cfg.Tracing.Endpoint
	tracingCfg.SamplingRatio = cfg.Tracing.SamplingRatio
	tracingCfg.InsecureTransport = cfg.Tracing.InsecureTransport
	shutdown, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.manager = manager
	o.cfg = cfg
	o.breakers = gcp.NewBreakers(cfg)
	o.providers = newProviderRegistry(o.breakers)
	o.shutdownTracing = shutdown
	return nil
}

func (o *rootOptions) teardown() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	if o.providers != nil {
		errs = append(errs, o.providers.Close())
	}
	if o.shutdownTracing != nil {
		o.shutdownTracing()
	}
	if o.manager != nil {
		errs = append(errs, o.manager.Close())
	}
	return errors.Join(errs...)
}

// withOverrides returns a copy of cfg with the command line flags applied
func (o *rootOptions) withOverrides(base *config.Config) *config.Config {
	cfg := *base
	if o.project != "" {
		cfg.GCP.Project = o.project
	}
	if o.zone != "" {
		cfg.GCP.Zone = o.zone
	}
	if o.region != "" {
		cfg.GCP.Region = o.region
	}
	if o.fake && cfg.GCP.Project == "" {
		cfg.GCP.Project = fakeProject
	}
	return &cfg
}

func (o *rootOptions) providerType() string {
	if o.fake {
		return registry.TypeFake
	}
	return registry.TypeGCP
}

func (o *rootOptions) config() *config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// provider returns the cached provider for the current configuration
func (o *rootOptions) provider(ctx context.Context) (contracts.Provider, error) {
	o.mu.RLock()
	providers, cfg := o.providers, o.cfg
	o.mu.RUnlock()
	return providers.Get(ctx, o.providerType(), cfg)
}

// reload swaps in a new configuration and drops the provider built for the old one
func (o *rootOptions) reload(next *config.Config) error {
	cfg := o.withOverrides(next)
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	old := o.cfg
	o.cfg = cfg
	o.mu.Unlock()
	if err := o.providers.Invalidate(o.providerType(), old); err != nil {
		return err
	}
	o.breakers.Reset()
	return nil
}

func newProviderRegistry(breakers *resilience.Registry) *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register(registry.TypeGCP, func(ctx context.Context, cfg *config.Config) (contracts.Provider, error) {
		return gcp.NewFromConfig(ctx, cfg, breakers)
	})
	reg.Register(registry.TypeFake, func(ctx context.Context, cfg *config.Config) (contracts.Provider, error) {
		cloud := gcpfake.NewSeeded(gcpfake.Config{}, cfg.GCP.Project, cfg.GCP.Region)
		return gcp.New(ctx, cfg, gcp.Options{Compute: cloud, DNS: cloud, Storage: cloud})
	})
	return reg
}

// runResult executes a mutating operation and prints its result; a failure becomes the command error
func (o *rootOptions) runResult(cmd *cobra.Command, fn func(ctx context.Context, p contracts.Provider) contracts.Result) error {
	res, err := o.execute(cmd, fn)
	if err != nil {
		return err
	}
	return o.printResult(res)
}

func (o *rootOptions) execute(cmd *cobra.Command, fn func(ctx context.Context, p contracts.Provider) contracts.Result) (contracts.Result, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	p, err := o.provider(ctx)
	if err != nil {
		return contracts.Result{}, err
	}
	res := fn(ctx, p)
	if !res.OK() {
		return res, errors.New(res.Reason)
	}
	return res, nil
}

// runQuery executes a read operation and renders what it returns
func runQuery[T any](o *rootOptions, cmd *cobra.Command, fn func(ctx context.Context, p contracts.Provider) (T, error), render func(T) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	p, err := o.provider(ctx)
	if err != nil {
		return err
	}
	v, err := fn(ctx, p)
	if err != nil {
		return errors.New(contracts.ResultFrom(err).Reason)
	}
	return render(v)
}
