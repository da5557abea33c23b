package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rivaldorose/konsensi-workspace/internal/metrics"
	"github.com/rivaldorose/konsensi-workspace/internal/redis"
)

// Publisher emits row-change notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Bus publishes notifications and opens per-topic subscriptions.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, topic string, events ...EventType) (*Subscription, error)
}

// Subscription delivers notifications for one topic until closed.
type Subscription struct {
	topic string
	ch    chan Notification
	ps    *goredis.PubSub

	closeOnce sync.Once
	done      chan struct{}
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// RedisBus carries notifications over Redis pub/sub, JSON encoded.
type RedisBus struct {
	redis *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{redis: client}
}

func (b *RedisBus) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := b.redis.Publish(ctx, n.Topic(), payload); err != nil {
		return err
	}
	metrics.NotificationsPublished.WithLabelValues(n.Table, string(n.Event)).Inc()
	return nil
}

// Subscribe opens a subscription on topic. When events is non-empty only
// those event kinds are delivered.
func (b *RedisBus) Subscribe(ctx context.Context, topic string, events ...EventType) (*Subscription, error) {
	ps, err := b.redis.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		topic: topic,
		ch:    make(chan Notification, 16),
		ps:    ps,
		done:  make(chan struct{}),
	}
	go sub.pump(events)
	return sub, nil
}

func (s *Subscription) pump(events []EventType) {
	defer close(s.ch)

	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				slog.Warn("dropping malformed notification", "topic", s.topic, "error", err)
				continue
			}
			if !accepts(events, n.Event) {
				continue
			}
			metrics.NotificationsReceived.WithLabelValues(n.Table, string(n.Event)).Inc()
			select {
			case s.ch <- n:
			case <-s.done:
				return
			}
		}
	}
}

func accepts(events []EventType, e EventType) bool {
	if len(events) == 0 {
		return true
	}
	for _, want := range events {
		if want == e {
			return true
		}
	}
	return false
}
