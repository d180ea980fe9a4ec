package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Bus is an in-process transport with durable per-topic logs and per-group
// offsets. Tests use it to run the whole saga in one process.
type Bus struct {
	log   *slog.Logger
	retry RetryConfig

	mu       sync.Mutex
	topics   map[string]*topicLog
	offsets  map[string]int
	failures int
}

type topicLog struct {
	msgs   []Message
	notify chan struct{}
}

func NewBus(log *slog.Logger, retry RetryConfig) *Bus {
	return &Bus{
		log:     log,
		retry:   retry,
		topics:  map[string]*topicLog{},
		offsets: map[string]int{},
	}
}

// FailNext makes the next n Publish calls fail with ErrChannel.
func (b *Bus) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
}

func (b *Bus) Publish(ctx context.Context, msgs ...Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return fmt.Errorf("%w: broker unavailable", ErrChannel)
	}
	for _, m := range msgs {
		t := b.topic(m.Topic)
		t.msgs = append(t.msgs, m)
		close(t.notify)
		t.notify = make(chan struct{})
	}
	return nil
}

// Messages returns everything published to topic so far.
func (b *Bus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topic(topic)
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Group returns a Subscriber whose offsets are shared by every subscription
// with the same group name.
func (b *Bus) Group(name string) Subscriber {
	return &memorySubscriber{bus: b, group: name}
}

func (b *Bus) topic(name string) *topicLog {
	t, ok := b.topics[name]
	if !ok {
		t = &topicLog{notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

type memorySubscriber struct {
	bus   *Bus
	group string
}

func (s *memorySubscriber) Subscribe(ctx context.Context, topic string, h Handler) error {
	b := s.bus
	key := s.group + "/" + topic
	for {
		b.mu.Lock()
		t := b.topic(topic)
		off := b.offsets[key]
		if off < len(t.msgs) {
			msg := t.msgs[off]
			b.mu.Unlock()

			if err := Deliver(ctx, b.log, b.retry, h, msg); err != nil {
				return nil
			}
			b.mu.Lock()
			b.offsets[key] = off + 1
			b.mu.Unlock()
			continue
		}
		wait := t.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-wait:
		}
	}
}
