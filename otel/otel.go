// Package otel wires the optional OpenTelemetry tracing pipeline.
package otel

import (
	"os"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitTracer sets up a Cloud Trace backed tracer provider as the global
// one. The caller owns shutting the provider down.
func InitTracer() (*sdktrace.TracerProvider, error) {
	// TODO: retrieve from metadata server
	// https://cloud.google.com/compute/docs/storing-retrieving-metadata
	projectID := os.Getenv("PROJECT_ID")
	exporter, err := texporter.New(texporter.WithProjectID(projectID))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(0.1)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
