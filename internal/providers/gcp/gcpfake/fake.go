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

// Package gcpfake is an in-memory Google Cloud backend for the gcp adapter.
// Mutations take effect immediately while their operations, disks, addresses and
// deleted forwarding rules converge over a configurable number of reads.
package gcpfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	compute "google.golang.org/api/compute/v1"
	dns "google.golang.org/api/dns/v1"
	"google.golang.org/api/googleapi"
)

const computeURL = "https://www.googleapis.com/compute/v1"

// Config sets how many reads each eventually consistent resource needs to settle
type Config struct {
	// OperationPolls is the number of operation reads answered RUNNING before DONE
	OperationPolls int
	// DiskReadyPolls is the number of disk reads answered CREATING before READY
	DiskReadyPolls int
	// AddressPolls is the number of instance reads that hide a new external address
	AddressPolls int
	// ForwardingRuleLingers is the number of list calls still showing a deleted forwarding rule
	ForwardingRuleLingers int
}

// Call is one recorded backend request
type Call struct {
	Method   string
	Resource string
	Mutating bool
}

type operation struct {
	op    *compute.Operation
	polls int
}

type disk struct {
	disk  *compute.Disk
	polls int
}

type pendingAddress struct {
	ip    string
	polls int
}

type lingering struct {
	rule  *compute.ForwardingRule
	lists int
}

type object struct {
	data   []byte
	public bool
}

type bucket struct {
	project string
	public  bool
	objects map[string]*object
}

// Cloud implements the compute, DNS and storage backend interfaces in memory
type Cloud struct {
	mu  sync.Mutex
	cfg Config
	seq int
	now func() time.Time

	calls    []Call
	injected map[string][]error
	opErrors map[string][]*compute.OperationError

	instances          map[string]*compute.Instance
	addressPending     map[string]*pendingAddress
	disks              map[string]*disk
	images             map[string]*compute.Image
	machineTypes       map[string]*compute.MachineType
	networks           map[string]*compute.Network
	subnets            map[string]*compute.Subnetwork
	firewalls          map[string]*compute.Firewall
	addresses          map[string]*compute.Address
	groups             map[string]*compute.InstanceGroup
	members            map[string][]string
	healthChecks       map[string]*compute.HealthCheck
	regionHealthChecks map[string]*compute.HealthCheck
	backends           map[string]*compute.BackendService
	rules              map[string]*compute.ForwardingRule
	globalRules        map[string]*compute.ForwardingRule
	lingering          map[string]*lingering
	operations         map[string]*operation
	xpn                map[string]string

	zones   map[string][]*dns.ManagedZone
	records map[string][]*dns.ResourceRecordSet

	buckets map[string]*bucket
}

// New returns an empty cloud with the common machine types and public image families
func New(cfg Config) *Cloud {
	c := &Cloud{
		cfg:                cfg,
		now:                time.Now,
		injected:           map[string][]error{},
		opErrors:           map[string][]*compute.OperationError{},
		instances:          map[string]*compute.Instance{},
		addressPending:     map[string]*pendingAddress{},
		disks:              map[string]*disk{},
		images:             map[string]*compute.Image{},
		machineTypes:       map[string]*compute.MachineType{},
		networks:           map[string]*compute.Network{},
		subnets:            map[string]*compute.Subnetwork{},
		firewalls:          map[string]*compute.Firewall{},
		addresses:          map[string]*compute.Address{},
		groups:             map[string]*compute.InstanceGroup{},
		members:            map[string][]string{},
		healthChecks:       map[string]*compute.HealthCheck{},
		regionHealthChecks: map[string]*compute.HealthCheck{},
		backends:           map[string]*compute.BackendService{},
		rules:              map[string]*compute.ForwardingRule{},
		globalRules:        map[string]*compute.ForwardingRule{},
		lingering:          map[string]*lingering{},
		operations:         map[string]*operation{},
		xpn:                map[string]string{},
		zones:              map[string][]*dns.ManagedZone{},
		records:            map[string][]*dns.ResourceRecordSet{},
		buckets:            map[string]*bucket{},
	}
	for _, mt := range []struct {
		name string
		cpus int64
		mem  int64
	}{
		{"f1-micro", 1, 614}, {"g1-small", 1, 1740},
		{"e2-micro", 2, 1024}, {"e2-small", 2, 2048}, {"e2-medium", 2, 4096},
		{"n1-standard-1", 1, 3840}, {"n1-standard-2", 2, 7680}, {"n1-standard-4", 4, 15360},
		{"n2-standard-2", 2, 8192}, {"n2-standard-4", 4, 16384},
	} {
		c.machineTypes[mt.name] = &compute.MachineType{Name: mt.name, GuestCpus: mt.cpus, MemoryMb: mt.mem}
	}
	for _, img := range []struct{ project, family, name string }{
		{"centos-cloud", "centos-stream-9", "centos-stream-9-v20250101"},
		{"debian-cloud", "debian-12", "debian-12-bookworm-v20250101"},
		{"rhel-cloud", "rhel-9", "rhel-9-v20250101"},
		{"ubuntu-os-cloud", "ubuntu-1804-lts", "ubuntu-1804-bionic-v20230605"},
		{"ubuntu-os-cloud", "ubuntu-2204-lts", "ubuntu-2204-jammy-v20250101"},
		{"cos-cloud", "cos-stable", "cos-stable-113-v20250101"},
	} {
		c.addImage(img.project, &compute.Image{Name: img.name, Family: img.family, CreationTimestamp: "2025-01-01T00:00:00Z"})
	}
	return c
}

// NewSeeded returns a cloud holding a default network and subnet in region and the example.com zone
func NewSeeded(cfg Config, project, region string) *Cloud {
	c := New(cfg)
	c.AddNetwork(project, &compute.Network{Name: "default", AutoCreateSubnetworks: true})
	c.AddSubnetwork(project, region, &compute.Subnetwork{
		Name:        "default",
		IpCidrRange: "10.132.0.0/20",
		Network:     globalLink(project, "networks", "default"),
	})
	c.AddManagedZone(project, "example-com", "example.com.")
	return c
}

// SetClock replaces the time source used for creation timestamps
func (c *Cloud) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// InjectError makes the next call of method fail with err
func (c *Cloud) InjectError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injected[method] = append(c.injected[method], err)
}

// InjectOperationError attaches opErr to the operation returned by the next call of method
func (c *Cloud) InjectOperationError(method string, opErr *compute.OperationError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opErrors[method] = append(c.opErrors[method], opErr)
}

// Calls returns every recorded request
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Mutations returns "Method resource" for every mutating request, in order
func (c *Cloud) Mutations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if call.Mutating {
			out = append(out, call.Method+" "+call.Resource)
		}
	}
	return out
}

// CallCount returns how often method was called
func (c *Cloud) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// enter records a call and returns a pending injected error; c.mu must be held
func (c *Cloud) enter(method, resource string, mutating bool) error {
	c.calls = append(c.calls, Call{Method: method, Resource: resource, Mutating: mutating})
	if queue := c.injected[method]; len(queue) > 0 {
		c.injected[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (c *Cloud) next() int {
	c.seq++
	return c.seq
}

func (c *Cloud) fingerprint(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.next())
}

func (c *Cloud) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

func key(parts ...string) string {
	return strings.Join(parts, "/")
}

func zoneLink(project, zone string) string {
	return fmt.Sprintf("%s/projects/%s/zones/%s", computeURL, project, zone)
}

func regionLink(project, region string) string {
	return fmt.Sprintf("%s/projects/%s/regions/%s", computeURL, project, region)
}

func zonalLink(project, zone, kind, name string) string {
	return fmt.Sprintf("%s/%s/%s", zoneLink(project, zone), kind, name)
}

func regionalLink(project, region, kind, name string) string {
	return fmt.Sprintf("%s/%s/%s", regionLink(project, region), kind, name)
}

func globalLink(project, kind, name string) string {
	return fmt.Sprintf("%s/projects/%s/global/%s/%s", computeURL, project, kind, name)
}

func lastSegment(link string) string {
	if i := strings.LastIndex(link, "/"); i >= 0 {
		return link[i+1:]
	}
	return link
}

func apiError(code int, reason, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return &googleapi.Error{
		Code:    code,
		Message: msg,
		Errors:  []googleapi.ErrorItem{{Reason: reason, Message: msg}},
	}
}

func notFound(kind, name string) error {
	return apiError(http.StatusNotFound, "notFound", "The resource '%s %s' was not found", kind, name)
}

func alreadyExists(kind, name string) error {
	return apiError(http.StatusConflict, "alreadyExists", "The resource '%s %s' already exists", kind, name)
}

func inUse(kind, name, by string) error {
	return apiError(http.StatusBadRequest, "resourceInUseByAnotherResource",
		"The %s resource '%s' is already being used by '%s'", kind, name, by)
}

func fingerprintMismatch(what string) error {
	return apiError(http.StatusPreconditionFailed, "conditionNotMet",
		"Supplied fingerprint does not match current %s fingerprint", what)
}

var (
	errBucketNotExist = storage.ErrBucketNotExist
	errObjectNotExist = storage.ErrObjectNotExist
)

// clone deep copies a backend resource through its JSON form
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("gcpfake: cannot clone %T: %v", v, err))
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("gcpfake: cannot clone %T: %v", v, err))
	}
	return out
}

func cloneAll[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		out = append(out, clone(v))
	}
	return out
}

// sortedValues returns the values of m whose key starts with prefix, ordered by key
func sortedValues[T any](m map[string]*T, prefix string) []*T {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}

// newOperation registers an operation for method on target; c.mu must be held
func (c *Cloud) newOperation(method, project, zone, region, target string) *compute.Operation {
	name := fmt.Sprintf("operation-%d", c.next())
	op := &compute.Operation{
		Name:          name,
		OperationType: method,
		TargetLink:    target,
		Status:        "RUNNING",
		InsertTime:    c.timestamp(),
	}
	switch {
	case zone != "":
		op.Zone = zoneLink(project, zone)
		op.SelfLink = op.Zone + "/operations/" + name
	case region != "":
		op.Region = regionLink(project, region)
		op.SelfLink = op.Region + "/operations/" + name
	default:
		op.SelfLink = fmt.Sprintf("%s/projects/%s/global/operations/%s", computeURL, project, name)
	}
	stored := clone(op)
	if queue := c.opErrors[method]; len(queue) > 0 {
		c.opErrors[method] = queue[1:]
		stored.Error = queue[0]
		stored.HttpErrorStatusCode = http.StatusBadRequest
		stored.HttpErrorMessage = "BAD REQUEST"
	}
	c.operations[name] = &operation{op: stored, polls: c.cfg.OperationPolls}
	return op
}

func (c *Cloud) pollOperation(method, name string) (*compute.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(method, name, false); err != nil {
		return nil, err
	}
	o, ok := c.operations[name]
	if !ok {
		return nil, notFound("operation", name)
	}
	if o.polls > 0 {
		o.polls--
		o.op.Status = "RUNNING"
	} else {
		o.op.Status = "DONE"
		o.op.Progress = 100
	}
	return clone(o.op), nil
}
