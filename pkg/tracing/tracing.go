// Copyright 2026 NetShield Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wires go.opentelemetry.io/otel with the OTLP gRPC
// exporter (both present in the example pack via DataDog-datadog-agent's
// otelcol components), giving each enforcement task its own span with
// a child span per facade call so a task's full fan-out is traceable
// end to end.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/netshield/enforcer"

// Init configures the global TracerProvider to export spans to
// collectorAddr (e.g. "otel-collector:4317") over OTLP/gRPC. The
// returned shutdown func must be called on process exit to flush
// pending spans.
func Init(ctx context.Context, collectorAddr string) (shutdown func(context.Context) error, err error) {
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(collectorAddr), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "netshield-enforcer")))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartTask starts the root span for one enforcement task, named
// "enforce.install"/"enforce.migrate"/"enforce.remove".
func StartTask(ctx context.Context, eventKind, phoneID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "enforce."+spanSuffix(eventKind),
		trace.WithAttributes(attribute.String("phoneId", phoneID), attribute.String("taskId", taskID)))
}

// StartFacadeCall starts a child span for one facade operation, e.g.
// "facade.createBlock". Callers defer span.End().
func StartFacadeCall(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "facade."+operation)
}

func spanSuffix(eventKind string) string {
	switch eventKind {
	case "INSTALL":
		return "install"
	case "MIGRATE":
		return "migrate"
	case "REMOVE":
		return "remove"
	default:
		return "unknown"
	}
}
