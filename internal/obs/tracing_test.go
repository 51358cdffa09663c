package obs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/backend-galeri/internal/obs"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestPGXTracerRecordsRowsAffected(t *testing.T) {
	rec := withRecorder(t)
	tracer := obs.PGXTracer{}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "insert into settlement_ledger values ($1) ON CONFLICT DO NOTHING"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("INSERT 0 0")})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "pgx INSERT", spans[0].Name())
	rows, ok := attr(spans[0].Attributes(), "db.rows_affected")
	require.True(t, ok)
	require.Equal(t, int64(0), rows.AsInt64())
}

func TestPGXTracerRecordsError(t *testing.T) {
	rec := withRecorder(t)
	tracer := obs.PGXTracer{}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("conn closed")})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)

	// a context without a started span is ignored
	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	require.Len(t, rec.Ended(), 1)
}

func TestInitTracerNoneExporter(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "galeri-test", Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	_, err = obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}

func TestSampler(t *testing.T) {
	require.Contains(t, obs.Sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, obs.Sampler(1.5).Description(), "AlwaysOnSampler")
	require.Contains(t, obs.Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
	require.Contains(t, obs.Sampler(0.25).Description(), "ParentBased")
}
