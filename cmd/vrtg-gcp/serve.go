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
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/health"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/metrics"
	"github.com/projectbeskar/virtrigaud-gcp/internal/version"
)

const healthCacheTTL = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints",
		Long: `Serve /healthz, /readyz, /health and /metrics.

Readiness fails while the project is unreachable or a backend circuit breaker is open.
The configuration file is watched and reloaded on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if addr == "" {
				addr = opts.config().Server.Addr
			}
			return opts.serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides configuration)")
	return cmd
}

// router wires the health checks and the metrics handler
func (o *rootOptions) router() *mux.Router {
	checker := health.NewHealthChecker(healthCacheTTL)
	checker.RegisterCheck("circuit-breakers", health.CircuitBreakerCheck(func() map[string]string {
		states := map[string]string{}
		for service, state := range o.breakers.States() {
			states[service] = state.String()
		}
		return states
	}))
	checker.RegisterCheck("project", func(ctx context.Context) error {
		p, err := o.provider(ctx)
		if err != nil {
			return err
		}
		return p.Validate(ctx)
	})

	router := mux.NewRouter()
	checker.Routes(router)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func (o *rootOptions) serve(ctx context.Context, addr string) error {
	log := logging.Logger().WithName("serve")
	metrics.SetupMetrics(version.Version, version.GitSHA, version.Component)

	if err := o.manager.StartWatching(); err != nil {
		return fmt.Errorf("failed to watch configuration: %w", err)
	}
	updates := o.manager.Watch()
	<-updates
	go func() {
		for cfg := range updates {
			if err := o.reload(cfg); err != nil {
				log.Error(err, "Ignoring configuration update")
			}
		}
	}()

	server := &http.Server{
		Addr:              addr,
		Handler:           o.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting health and metrics server", "addr", addr, "version", version.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
	}

	log.Info("Shutting down health and metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newVersionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.printFields(map[string]string{
				"version":   version.Version,
				"gitSHA":    version.GitSHA,
				"userAgent": version.UserAgent(),
			}, [][2]string{
				{"version", version.Version},
				{"git sha", version.GitSHA},
				{"user agent", version.UserAgent()},
			})
		},
	}
}
