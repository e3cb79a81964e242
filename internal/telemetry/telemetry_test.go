package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_RecordsSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	p := &Provider{tp: sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))}

	_, span := p.tp.Tracer("test").Start(ctx, "txn.run")
	span.SetAttributes(attribute.String("db.system", "postgresql"))
	span.End()

	// The in-memory exporter drops its spans on shutdown, so read them first.
	require.NoError(t, p.tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "txn.run", spans[0].Name)

	require.NoError(t, p.Shutdown(ctx))
}
