package kafkax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, SplitBrokers(""))
}

func TestReadyCheck_NoBrokers(t *testing.T) {
	assert.Error(t, ReadyCheck(" , ")(context.Background()))
}

func TestEventMessage(t *testing.T) {
	msg := EventMessage("e-1", "booking.appointment.booked.v1", "appointment", "17", []byte(`{}`))

	assert.Equal(t, "booking.appointment.booked.v1", msg.Topic)
	assert.Equal(t, "17", string(msg.Key))
	assert.Equal(t, "e-1", HeaderValue(msg.Headers, HeaderEventID))
	assert.Equal(t, "appointment", HeaderValue(msg.Headers, HeaderAggregateType))
	assert.Empty(t, HeaderValue(msg.Headers, "missing"))
}

func TestTraceRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := EventMessage("e-1", "t", "appointment", "1", nil)
	InjectTrace(ctx, &msg)
	InjectTrace(ctx, &msg)
	assert.Len(t, msg.Headers, 4, "injecting twice overwrites the header")
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", HeaderValue(msg.Headers, "traceparent"))

	got := trace.SpanContextFromContext(ExtractTrace(context.Background(), msg))
	require.True(t, got.IsValid())
	assert.Equal(t, traceID, got.TraceID())
}
