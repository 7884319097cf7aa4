package tracer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type TracerArgs struct {
	OtlpEndpoint string `arg:"--otlp-endpoint,env:OTLP_ENDPOINT" default:""`
}

type Span struct {
	c    context.Context
	span oteltrace.Span
}

func (s Span) Context() context.Context {
	return s.c
}

func (s Span) End() {
	s.span.End()
}

// StartSpan starts a span under whatever span ctx carries. Until InitProvider
// runs, spans are no-ops.
func StartSpan(ctx context.Context, name string) Span {
	tracer := otel.Tracer("vellum")
	cCtx, span := tracer.Start(ctx, name)
	return Span{
		c:    cCtx,
		span: span,
	}
}

// InitProvider exports spans to the OTLP collector at endpoint. The returned
// function flushes pending spans and stops the exporter.
func InitProvider(endpoint string) (func(context.Context) error, error) {
	ctx := context.Background()

	traceExporter, err := otlptracegrpc.New(
		ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter, err: %v", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		// the collector batches in sizes of 8192, so export large batches
		// from a deep queue rather than dropping spans locally
		sdktrace.WithBatcher(traceExporter, sdktrace.WithMaxQueueSize(20480), sdktrace.WithMaxExportBatchSize(2048)),
		sdktrace.WithIDGenerator(xray.NewIDGenerator()))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(xray.Propagator{})

	// otel reports dropped spans at V-level 5
	stdrLogger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))
	stdr.SetVerbosity(5)
	otel.SetLogger(stdrLogger)

	return tp.Shutdown, nil
}
