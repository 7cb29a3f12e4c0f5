// Package tracing installs the process tracer provider.
package tracing

import (
	"context"
	"io"
	"log/slog"

	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "objrec"

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

// Start registers a global tracer provider that writes spans as JSON to a
// rotating file. When tracing is disabled the global no-op provider stays in
// place and the returned func does nothing.
func Start(params config.TraceParameters) (ShutdownFunc, error) {
	if !params.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w := &lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7,    // days
		Compress:   true, // compress old logs
	}

	tp, err := newProvider(w, false)
	if err != nil {
		w.Close()
		return nil, err
	}
	otel.SetTracerProvider(tp)

	lgr.Logger.Info("tracing enabled", slog.String("path", params.Path))

	return func(ctx context.Context) error {
		defer w.Close()
		return tp.Shutdown(ctx)
	}, nil
}

// newProvider exports to w. immediate exports every span as it ends instead of
// batching.
func newProvider(w io.Writer, immediate bool) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	export := sdktrace.WithBatcher(exporter)
	if immediate {
		export = sdktrace.WithSyncer(exporter)
	}

	return sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	), nil
}
