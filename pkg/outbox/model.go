package outbox

import (
	"time"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one pending emission stored next to the state change that caused it.
type Event struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RetryCount    int
	LastError     *string
}

func FromMessage(aggregateType string, m eventbus.Message) Event {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		if k == tracing.TraceparentHeader {
			continue
		}
		headers[k] = v
	}
	return Event{
		EventID:       m.ID,
		AggregateType: aggregateType,
		AggregateID:   m.Key,
		Type:          m.Topic,
		Payload:       m.Payload,
		Headers:       headers,
		Traceparent:   m.Headers[tracing.TraceparentHeader],
		CreatedAt:     m.EmittedAt,
		Status:        StatusPending,
	}
}

func (e Event) Message() eventbus.Message {
	headers := make(map[string]string, len(e.Headers)+1)
	for k, v := range e.Headers {
		headers[k] = v
	}
	if e.Traceparent != "" {
		headers[tracing.TraceparentHeader] = e.Traceparent
	}
	return eventbus.Message{
		ID:        e.EventID,
		Topic:     e.Type,
		Key:       e.AggregateID,
		Payload:   e.Payload,
		Headers:   headers,
		EmittedAt: e.CreatedAt,
	}
}
