package tracer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/tracer"
)

func TestNoopTracer(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanPublish, tracer.String(tracer.AttrTaskID, "t-1"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	assert.NotPanics(t, func() {
		span.SetAttributes(tracer.Bool(tracer.AttrInlineBlob, true))
		span.AddEvent(tracer.EventProgress, tracer.Int("percent", 30))
		span.End(failure.New(failure.KindUpload, "rejected"))
	})
}

func TestOTelTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	ctx, span := tr.Start(context.Background(), tracer.SpanUpload,
		tracer.Int64(tracer.AttrBytes, 1024),
		tracer.String(tracer.AttrDID, "did:plc:abc"),
	)

	require.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent(tracer.EventProgress, tracer.Int("percent", 30))
		span.End(failure.New(failure.KindTimeout, "too slow"))
	})
}
