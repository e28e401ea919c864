package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func header(t *testing.T, headers map[string]string, key string) string {
	t.Helper()
	v, ok := headers[key]
	assert.True(t, ok, "missing header %s", key)
	return v
}

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec := Record{
		ID:            7,
		EventID:       "6f1c1f5e-7a8e-4b7a-9d5e-1c0f3b1f9a10",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     "appointment.booked",
		Payload:       []byte(`{"appointment_id":"appt-1"}`),
		Traceparent:   "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		CreatedAt:     created,
	}

	msg := toMessage(context.Background(), rec)
	assert.Equal(t, "appointment.booked", msg.Topic)
	assert.Equal(t, []byte("appt-1"), msg.Key)
	assert.Equal(t, rec.Payload, msg.Value)
	assert.Equal(t, created, msg.Time)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, rec.EventID, header(t, headers, "event_id"))
	assert.Equal(t, "appointment.booked", header(t, headers, "event_type"))
	assert.Equal(t, rec.Traceparent, header(t, headers, "traceparent"))
}

func TestNewPublisherDefaults(t *testing.T) {
	p := NewPublisher(nil, NewRepository(), nil, nil, zerolog.Nop(), PublisherConfig{})
	assert.Equal(t, 2*time.Second, p.pollEvery)
	assert.Equal(t, 50, p.batchSize)
}
