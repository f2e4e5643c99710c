package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"go-messenger/internal/logger"
)

func convChannel(convID string) string {
	return fmt.Sprintf("conv:%s:changed", convID)
}

// Streamer turns the durable store into a live, ordered message feed. A
// change notification on the conversation's pub/sub channel triggers a
// full ordered re-read; subscribers always receive complete sequences,
// never deltas.
type Streamer struct {
	rdb   *redis.Client
	store Store
	log   *slog.Logger
}

func NewStreamer(rdb *redis.Client, store Store) *Streamer {
	return &Streamer{rdb: rdb, store: store, log: logger.Log}
}

// ConversationChanged publishes the wakeup the send path emits after its
// writes land.
func (s *Streamer) ConversationChanged(ctx context.Context, convID string) error {
	return s.rdb.Publish(ctx, convChannel(convID), "1").Err()
}

// Subscribe opens a live subscription on a conversation's message
// collection. The current full sequence is delivered as the first update.
// Transient read failures are reported on Errors without closing the
// subscription; later notifications still arrive. The caller owns the
// returned handle and must Close it on every exit path.
func (s *Streamer) Subscribe(ctx context.Context, convID string) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, convChannel(convID))
	// Force the SUBSCRIBE to complete so no notification is lost between
	// the initial read and the listen loop.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", convID, err)
	}

	sub := &Subscription{
		updates: make(chan []Message, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		pubsub:  pubsub,
	}
	go s.pump(ctx, convID, sub)
	return sub, nil
}

func (s *Streamer) pump(ctx context.Context, convID string, sub *Subscription) {
	defer close(sub.updates)

	deliver := func() {
		msgs, err := s.store.Messages(ctx, convID)
		if err != nil {
			s.log.Warn("message re-read failed", "conversation", convID, "err", err)
			select {
			case sub.errs <- err:
			default: // a previous error is still unconsumed
			}
			return
		}
		select {
		case sub.updates <- msgs:
		case <-sub.done:
		case <-ctx.Done():
		}
	}

	deliver()

	ch := sub.pubsub.Channel()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			deliver()
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Subscription is a live handle on one conversation's message stream.
type Subscription struct {
	updates chan []Message
	errs    chan error
	done    chan struct{}
	pubsub  *redis.PubSub

	closeOnce sync.Once
}

// Updates yields full ordered message sequences. The channel closes after
// Close (or context cancellation).
func (s *Subscription) Updates() <-chan []Message {
	return s.updates
}

// Errors yields transient subscription errors. The subscription stays
// live after an error; the consumer keeps its last-known-good state.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.pubsub.Close()
	})
}
