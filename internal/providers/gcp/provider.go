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
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	compute "google.golang.org/api/compute/v1"

	"github.com/projectbeskar/virtrigaud-gcp/internal/config"
	"github.com/projectbeskar/virtrigaud-gcp/internal/events"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/metrics"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/tracing"
	"github.com/projectbeskar/virtrigaud-gcp/internal/providers/contracts"
	"github.com/projectbeskar/virtrigaud-gcp/internal/userdata"
	"github.com/projectbeskar/virtrigaud-gcp/internal/util"
)

const computeURL = "https://www.googleapis.com/compute/v1"

// Options carries the backend clients and collaborators of a Provider
type Options struct {
	Compute  ComputeAPI
	DNS      DNSAPI
	Storage  StorageAPI
	UserData UserDataGenerator
	Keys     KeyFinder
	Events   events.Sink
	// Sleep replaces real sleeping in every wait and poll loop
	Sleep util.SleepFunc
}

// Provider implements contracts.Provider on Google Compute Engine
type Provider struct {
	compute  ComputeAPI
	dns      DNSAPI
	storage  StorageAPI
	userdata UserDataGenerator
	keys     KeyFinder
	events   events.Sink
	waiter   *Waiter
	sleep    util.SleepFunc

	project string
	zone    string
	region  string
	public  bool

	diskReady          util.PollBudget
	address            util.PollBudget
	forwardingRuleGone util.PollBudget

	mu       sync.RWMutex
	xproject string
}

var _ contracts.Provider = (*Provider)(nil)

// New creates a GCP provider and resolves the shared VPC host project once
func New(ctx context.Context, cfg *config.Config, opts Options) (*Provider, error) {
	if cfg == nil {
		return nil, contracts.NewInvalidSpecError("configuration is required", nil)
	}
	if opts.Compute == nil || opts.DNS == nil || opts.Storage == nil {
		return nil, contracts.NewInvalidSpecError("compute, dns and storage clients are required", nil)
	}
	if opts.UserData == nil {
		opts.UserData = userdata.NewGenerator()
	}
	if opts.Keys == nil {
		opts.Keys = userdata.NewKeyFinder()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Sleep == nil {
		opts.Sleep = util.Sleep
	}

	gcpCfg := cfg.GCP
	p := &Provider{
		compute:            opts.Compute,
		dns:                opts.DNS,
		storage:            opts.Storage,
		userdata:           opts.UserData,
		keys:               opts.Keys,
		events:             opts.Events,
		sleep:              opts.Sleep,
		project:            gcpCfg.Project,
		zone:               gcpCfg.Zone,
		region:             gcpCfg.Region,
		public:             gcpCfg.Public,
		diskReady:          budget(cfg.Polling.DiskReady),
		address:            budget(cfg.Polling.Address),
		forwardingRuleGone: budget(cfg.Polling.ForwardingRuleGone),
	}
	p.waiter = NewWaiter(opts.Compute, p.project, p.zone, p.region, cfg.Waiter, opts.Sleep)

	log := logging.FromContext(ctx).WithValues("project", p.project, "zone", p.zone)
	host, err := opts.Compute.GetXpnHost(ctx, p.project)
	if err != nil {
		log.V(1).Info("shared VPC host lookup failed", "error", err.Error())
	}
	p.xproject = host
	log.Info("GCP provider initialized", "region", p.region, "xproject", host)
	return p, nil
}

func budget(c config.PollBudgetConfig) util.PollBudget {
	return util.PollBudget{Limit: c.Limit, Step: c.Step, Interval: c.Interval}
}

// SharedProject returns the shared VPC host project, or ""
func (p *Provider) SharedProject() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.xproject
}

// Validate ensures the project is reachable and refreshes the shared VPC host
func (p *Provider) Validate(ctx context.Context) error {
	_, err := query(ctx, p, "validate", p.project, func(ctx context.Context) (struct{}, error) {
		host, err := p.compute.GetXpnHost(ctx, p.project)
		if err != nil {
			return struct{}{}, err
		}
		p.mu.Lock()
		p.xproject = host
		p.mu.Unlock()
		return struct{}{}, nil
	})
	return err
}

// InfoHost summarizes the connection
func (p *Provider) InfoHost(ctx context.Context) (contracts.HostInfo, error) {
	return query(ctx, p, "info-host", p.project, func(ctx context.Context) (contracts.HostInfo, error) {
		instances, err := p.compute.ListInstances(ctx, p.project, p.zone)
		if err != nil {
			return contracts.HostInfo{}, err
		}
		return contracts.HostInfo{
			Project:       p.project,
			Zone:          p.zone,
			Region:        p.region,
			SharedProject: p.SharedProject(),
			VMCount:       len(instances),
		}, nil
	})
}

// Close releases the storage client and the event sink
func (p *Provider) Close() error {
	var errs []string
	if err := p.storage.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := p.events.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close provider: %s", strings.Join(errs, "; "))
	}
	return nil
}

// opState collects wait anomalies seen during one public operation
type opState struct {
	mu       sync.Mutex
	timedOut bool
	errors   []string
}

type opStateKey struct{}

func stateFrom(ctx context.Context) *opState {
	if s, ok := ctx.Value(opStateKey{}).(*opState); ok {
		return s
	}
	return &opState{}
}

func (s *opState) annotate(r contracts.Result) contracts.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timedOut {
		r = r.With("wait", string(WaitTimedOut))
	}
	if len(s.errors) > 0 {
		r = r.With("backend-errors", strings.Join(s.errors, "; "))
	}
	return r
}

// run is the seam every mutating operation goes through.
// It never lets a panic escape and always yields a tagged Result.
func (p *Provider) run(ctx context.Context, operation, resource string, fn func(ctx context.Context) contracts.Result) (result contracts.Result) {
	correlationID := uuid.NewString()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = logging.WithOperation(ctx, operation, resource)
	ctx = logging.WithLocation(ctx, p.project, p.zone)
	ctx, span := tracing.StartOperationSpan(ctx, operation, resource, p.project, p.zone)
	defer span.End()

	state := &opState{}
	ctx = context.WithValue(ctx, opStateKey{}, state)
	timer := metrics.NewOperationTimer(operation)
	log := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err := contracts.NewInternalError(fmt.Sprintf("%s %s: %v", operation, resource, r), nil)
			log.Error(err, "operation panicked")
			result = contracts.ResultFrom(err)
		}
		result = state.annotate(result)
		timer.Finish(string(result.Status))
		span.SetAttributes(tracing.AttrOutcome.String(string(result.Status)))
		if result.OK() {
			log.V(1).Info("operation succeeded", "details", result.Details)
		} else {
			metrics.RecordError(string(result.Kind), operation)
			tracing.RecordError(ctx, result.Err())
			log.Info("operation failed", "reason", result.Reason, "kind", result.Kind)
		}
		p.publish(ctx, log, operation, resource, correlationID, result)
	}()

	return fn(ctx)
}

func (p *Provider) publish(ctx context.Context, log logr.Logger, operation, resource, correlationID string, result contracts.Result) {
	event := events.NewEvent(operation, resource, string(result.Status))
	event.Project = p.project
	event.Zone = p.zone
	event.Reason = result.Reason
	event.CorrelationID = correlationID
	event.Details = result.Details
	if err := p.events.Publish(ctx, event); err != nil {
		log.V(1).Info("failed to publish lifecycle event", "error", err.Error())
	}
}

// query is the seam every read-only operation goes through; errors are always categorized
func query[T any](ctx context.Context, p *Provider, operation, resource string, fn func(ctx context.Context) (T, error)) (out T, err error) {
	ctx = logging.WithOperation(ctx, operation, resource)
	ctx = logging.WithLocation(ctx, p.project, p.zone)
	ctx, span := tracing.StartOperationSpan(ctx, operation, resource, p.project, p.zone)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = contracts.NewInternalError(fmt.Sprintf("%s %s: %v", operation, resource, r), nil)
		}
		if err != nil {
			err = classify(err)
			tracing.RecordError(ctx, err)
			if pe, ok := contracts.AsProviderError(err); ok {
				metrics.RecordError(string(pe.Type), operation)
			}
		}
	}()

	return fn(ctx)
}

// apply waits for the operation returned by a mutating call.
// A timed out or erroring operation is recorded on the public operation's result, not returned.
func (p *Provider) apply(ctx context.Context, op *compute.Operation, err error) error {
	if err != nil {
		return classify(err)
	}
	res := p.waiter.Wait(ctx, op)
	state := stateFrom(ctx)
	switch res.Outcome {
	case WaitDone:
		return nil
	case WaitDoneWithErrors:
		state.mu.Lock()
		state.errors = append(state.errors, res.Errors...)
		state.mu.Unlock()
		return nil
	case WaitTimedOut:
		state.mu.Lock()
		state.timedOut = true
		state.mu.Unlock()
		logging.FromContext(ctx).Info("operation not confirmed within budget, continuing",
			"warning", "timeout", "operation", op.Name)
		return nil
	default:
		return res.Err()
	}
}

// poll runs a bounded check loop and records its outcome under loop
func (p *Provider) poll(ctx context.Context, loop string, b util.PollBudget, cond func(ctx context.Context) (bool, error)) (util.PollOutcome, error) {
	outcome, err := util.PollUntil(ctx, b, p.sleep, cond)
	metrics.RecordPollLoop(loop, outcome.String())
	return outcome, err
}

func (p *Provider) warn(ctx context.Context, msg string, kv ...interface{}) {
	logging.FromContext(ctx).Info(msg, append([]interface{}{"warning", true}, kv...)...)
}

func zoneURL(project, zone string) string {
	return fmt.Sprintf("%s/projects/%s/zones/%s", computeURL, project, zone)
}

func regionURL(project, region string) string {
	return fmt.Sprintf("%s/projects/%s/regions/%s", computeURL, project, region)
}

func (p *Provider) machineTypeURL(name string) string {
	return fmt.Sprintf("%s/machineTypes/%s", zoneURL(p.project, p.zone), name)
}

func (p *Provider) diskSource(name string) string {
	return fmt.Sprintf("/compute/v1/projects/%s/zones/%s/disks/%s", p.project, p.zone, name)
}
