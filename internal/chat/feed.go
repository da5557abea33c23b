package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/models"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
	"github.com/rivaldorose/konsensi-workspace/internal/realtime"
)

var ErrFeedClosed = errors.New("feed closed")

const refetchTimeout = 10 * time.Second

// ViewState is what a viewer currently looks at. It is local to one
// connection and never persisted.
type ViewState struct {
	ChannelID *int64
	InfoOpen  bool
}

// Subscriber opens realtime subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, events ...realtime.EventType) (*realtime.Subscription, error)
}

// Feed keeps one viewer's message list in sync with the selected channel.
// Every change notification for that channel invalidates the cached list and
// triggers a full refetch; notification payloads are never merged.
type Feed struct {
	messages database.MessageRepository
	bus      Subscriber
	cache    *querycache.Cache
	onChange func(channelID int64, msgs []models.MessageWithSender)

	mu       sync.Mutex
	selected int64
	sub      *realtime.Subscription
	stopObs  func()
	closed   bool

	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// NewFeed creates a feed with nothing selected. onChange receives the full
// list every time the selected channel's cached list is replaced.
func NewFeed(messages database.MessageRepository, bus Subscriber, cache *querycache.Cache, onChange func(channelID int64, msgs []models.MessageWithSender)) *Feed {
	if onChange == nil {
		onChange = func(int64, []models.MessageWithSender) {}
	}
	return &Feed{messages: messages, bus: bus, cache: cache, onChange: onChange}
}

// Selected returns the selected channel, if any.
func (f *Feed) Selected() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected, f.selected != 0
}

// Select switches the feed to channelID. A nil id deselects and issues no
// query. Selecting the current channel again does nothing.
func (f *Feed) Select(ctx context.Context, channelID *int64) error {
	var next int64
	if channelID != nil {
		next = *channelID
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFeedClosed
	}
	if next == f.selected {
		f.mu.Unlock()
		return nil
	}
	f.teardownLocked()
	if next == 0 {
		f.mu.Unlock()
		return nil
	}

	sub, err := f.bus.Subscribe(ctx, realtime.MessagesTopic(next), realtime.EventInsert, realtime.EventUpdate)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.selected = next
	f.sub = sub
	f.wg.Add(1)
	go f.pump(sub, next)
	f.mu.Unlock()

	key := querycache.MessagesKey(next)
	_, fetchErr := f.fetch(ctx, next)

	// Registered after the initial load so that load is delivered once, below.
	stop := f.cache.Observe(key, func(any) { f.deliverLatest(next) })
	f.mu.Lock()
	if f.selected == next && !f.closed {
		f.stopObs = stop
	} else {
		stop()
	}
	f.mu.Unlock()

	f.deliverLatest(next)
	return fetchErr
}

// Messages returns the selected channel's list, oldest first, or an empty
// list when nothing is selected.
func (f *Feed) Messages(ctx context.Context) ([]models.MessageWithSender, error) {
	id, ok := f.Selected()
	if !ok {
		return []models.MessageWithSender{}, nil
	}
	return f.fetch(ctx, id)
}

// Close drops the subscription. The feed cannot be reused.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.teardownLocked()
	f.mu.Unlock()

	f.wg.Wait()
}

func (f *Feed) teardownLocked() {
	if f.stopObs != nil {
		f.stopObs()
		f.stopObs = nil
	}
	if f.sub != nil {
		if err := f.sub.Close(); err != nil {
			slog.Warn("closing message subscription", "topic", f.sub.Topic(), "error", err)
		}
		f.sub = nil
	}
	f.selected = 0
}

func (f *Feed) fetch(ctx context.Context, channelID int64) ([]models.MessageWithSender, error) {
	return querycache.FetchAs(ctx, f.cache, querycache.MessagesKey(channelID), func(ctx context.Context) ([]models.MessageWithSender, error) {
		return f.messages.ListByChannel(ctx, channelID)
	})
}

func (f *Feed) pump(sub *realtime.Subscription, channelID int64) {
	defer f.wg.Done()

	key := querycache.MessagesKey(channelID)
	for n := range sub.C() {
		slog.Debug("message change", "channel_id", channelID, "event", n.Event)
		f.cache.Invalidate(key)

		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		err := f.cache.Refetch(ctx, key)
		cancel()
		if err != nil {
			slog.Error("refetching messages", "channel_id", channelID, "error", err)
		}
	}
}

// deliverLatest hands the newest cached list to onChange if channelID is
// still selected. Deliveries are serialized, so the last one always carries
// the newest list.
func (f *Feed) deliverLatest(channelID int64) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	current := f.selected == channelID && !f.closed
	f.mu.Unlock()
	if !current {
		return
	}

	v, ok := f.cache.Peek(querycache.MessagesKey(channelID))
	if !ok {
		return
	}
	msgs, _ := v.([]models.MessageWithSender)
	f.onChange(channelID, msgs)
}
