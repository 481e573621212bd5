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

// Package events publishes provider lifecycle events
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/logging"
	"github.com/projectbeskar/virtrigaud-gcp/internal/obs/metrics"
)

// Event describes the outcome of one public provider operation
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Time          time.Time         `json:"time"`
	Operation     string            `json:"operation"`
	Resource      string            `json:"resource,omitempty"`
	Project       string            `json:"project,omitempty"`
	Zone          string            `json:"zone,omitempty"`
	Outcome       string            `json:"outcome"`
	Reason        string            `json:"reason,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// NewEvent returns an event with a fresh id and timestamp
func NewEvent(operation, resource, outcome string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      operation + "." + outcome,
		Time:      time.Now().UTC(),
		Operation: operation,
		Resource:  resource,
		Outcome:   outcome,
	}
}

// Sink receives lifecycle events
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

// Publish implements Sink
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Sink
func (Nop) Close() error { return nil }

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	IsClosed() bool
	Drain() error
	Close()
}

// NATSPublisher publishes events as JSON on <prefix>.<operation>.<outcome>
type NATSPublisher struct {
	conn   Conn
	prefix string
}

// Connect dials NATS and returns a publisher
func Connect(url, prefix string, timeout time.Duration) (*NATSPublisher, error) {
	log := logging.Logger().WithName("events")
	opts := []nats.Option{
		nats.Name("virtrigaud-gcp"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error(err, "NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewNATSPublisher(nc, prefix), nil
}

// NewNATSPublisher wraps an existing connection
func NewNATSPublisher(conn Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(event Event) string {
	if p.prefix == "" {
		return event.Type
	}
	return p.prefix + "." + event.Type
}

// Publish implements Sink
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil || p.conn.IsClosed() {
		metrics.RecordEvent(event.Type, metrics.OutcomeFailure)
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event), payload); err != nil {
		metrics.RecordEvent(event.Type, metrics.OutcomeFailure)
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	metrics.RecordEvent(event.Type, metrics.OutcomeSuccess)
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Drain()
	p.conn.Close()
	return err
}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Close implements Sink
func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
