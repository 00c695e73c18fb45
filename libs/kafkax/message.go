package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Headers every booking event carries.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// EventMessage builds the message for one domain event. The topic is the event type and the
// key the aggregate id.
func EventMessage(eventID, eventType, aggregateType, aggregateID string, payload []byte) kafka.Message {
	return kafka.Message{
		Topic: eventType,
		Key:   []byte(aggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(eventID)},
			{Key: HeaderEventType, Value: []byte(eventType)},
			{Key: HeaderAggregateType, Value: []byte(aggregateType)},
		},
	}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// InjectTrace writes the W3C trace context of ctx into msg's headers.
func InjectTrace(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, messageCarrier{msg})
}

// ExtractTrace returns ctx with the trace context found in msg's headers as remote parent.
func ExtractTrace(ctx context.Context, msg kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, messageCarrier{&msg})
}

type messageCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = messageCarrier{}

func (c messageCarrier) Get(key string) string {
	return HeaderValue(c.msg.Headers, key)
}

func (c messageCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

func (c messageCarrier) Set(key, value string) {
	for i := range c.msg.Headers {
		if c.msg.Headers[i].Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}
