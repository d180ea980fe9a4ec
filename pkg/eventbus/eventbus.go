// Package eventbus is the publish/subscribe channel the saga services talk
// through. Transports live in sub-packages; all of them deliver at least once.
package eventbus

import (
	"context"
	"errors"
	"time"
)

// ErrChannel marks a failure to emit or consume through the transport.
var ErrChannel = errors.New("event channel error")

const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
	HeaderEmittedAt     = "emitted_at"
)

// Message is one immutable event on a named topic. Key is the correlation id
// (the order id) and decides partitioning, so one order's events stay ordered.
type Message struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	Headers   map[string]string
	EmittedAt time.Time
}

// Handler processes one message. A non-nil error asks the transport to deliver
// the message again; handlers that want to drop a message return nil.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Subscriber delivers messages of one topic to h, one at a time, until ctx is
// cancelled. Subscribe blocks.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

// Middleware decorates a handler.
type Middleware func(Handler) Handler

func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AllHeaders returns a copy of the message headers merged with the standard ones.
func (m Message) AllHeaders() map[string]string {
	out := make(map[string]string, len(m.Headers)+4)
	for k, v := range m.Headers {
		out[k] = v
	}
	if m.ID != "" {
		out[HeaderEventID] = m.ID
	}
	out[HeaderEventType] = m.Topic
	if m.Key != "" {
		out[HeaderCorrelationID] = m.Key
	}
	if !m.EmittedAt.IsZero() {
		out[HeaderEmittedAt] = m.EmittedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}
