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

package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	otrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// ServiceAdapter is the service name reported by the adapter
	ServiceAdapter = "virtrigaud-gcp"

	tracerName = "github.com/projectbeskar/virtrigaud-gcp"
)

// Config holds tracing configuration
type Config struct {
	Enabled           bool    `yaml:"enabled"`
	Endpoint          string  `yaml:"endpoint"`
	ServiceName       string  `yaml:"serviceName"`
	ServiceVersion    string  `yaml:"-"`
	SamplingRatio     float64 `yaml:"samplingRatio"`
	InsecureTransport bool    `yaml:"insecure"`
}

// DefaultConfig returns default tracing configuration
func DefaultConfig(serviceName, version string) *Config {
	return &Config{
		Enabled:           getEnvBool("VIRTRIGAUD_TRACING_ENABLED", false),
		Endpoint:          getEnv("VIRTRIGAUD_TRACING_ENDPOINT", ""),
		ServiceName:       serviceName,
		ServiceVersion:    version,
		SamplingRatio:     getEnvFloat("VIRTRIGAUD_TRACING_SAMPLING_RATIO", 0.1),
		InsecureTransport: getEnvBool("VIRTRIGAUD_TRACING_INSECURE", true),
	}
}

// Setup initializes OpenTelemetry tracing
func Setup(ctx context.Context, config *Config) (func(), error) {
	if !config.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func() {}, nil
	}

	if config.Endpoint == "" {
		return nil, fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(config.ServiceName + "/" + config.ServiceVersion)),
	}

	if config.InsecureTransport {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("service.namespace", "virtrigaud"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(config.SamplingRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error shutting down tracer provider: %v\n", err)
		}
	}, nil
}

// StartSpan starts a new span with the given name and options
func StartSpan(ctx context.Context, name string, opts ...otrace.SpanStartOption) (context.Context, otrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// AddEvent adds an event to the current span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := otrace.SpanFromContext(ctx)
	span.AddEvent(name, otrace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := otrace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := otrace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace id of the span in ctx, or "" when not sampled
func TraceID(ctx context.Context) string {
	sc := otrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Common attribute keys
var (
	AttrProject   = attribute.Key("gcp.project")
	AttrZone      = attribute.Key("gcp.zone")
	AttrRegion    = attribute.Key("gcp.region")
	AttrResource  = attribute.Key("gcp.resource")
	AttrOperation = attribute.Key("operation")
	AttrStep      = attribute.Key("step")
	AttrOutcome   = attribute.Key("outcome")
	AttrLocality  = attribute.Key("gcp.operation.locality")
	AttrBackendOp = attribute.Key("gcp.operation.name")
	AttrPolls     = attribute.Key("gcp.operation.polls")
)

// StartOperationSpan starts a span for a public adapter operation
func StartOperationSpan(ctx context.Context, operation, resource, project, zone string) (context.Context, otrace.Span) {
	return StartSpan(ctx, fmt.Sprintf("gcp.%s", operation),
		otrace.WithAttributes(
			AttrOperation.String(operation),
			AttrResource.String(resource),
			AttrProject.String(project),
			AttrZone.String(zone),
		),
	)
}

// StartStepSpan starts a child span for one step of a composite operation
func StartStepSpan(ctx context.Context, step string) (context.Context, otrace.Span) {
	return StartSpan(ctx, fmt.Sprintf("step.%s", step),
		otrace.WithAttributes(AttrStep.String(step)),
	)
}

// StartWaitSpan starts a span for a backend operation wait
func StartWaitSpan(ctx context.Context, locality, operation string) (context.Context, otrace.Span) {
	return StartSpan(ctx, "gcp.wait",
		otrace.WithSpanKind(otrace.SpanKindClient),
		otrace.WithAttributes(
			AttrLocality.String(locality),
			AttrBackendOp.String(operation),
		),
	)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
