package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	tp, err := InitTracing(ctx, "127.0.0.1", "checkout-gateways-test")
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(ctx, "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// No collector is listening; shutdown must not block.
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = tp.Shutdown(shutdownCtx)
}
