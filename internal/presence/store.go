package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"go-messenger/internal/logger"
)

// DefaultTTL bounds how long an ephemeral record outlives its last
// heartbeat. A crashed session stops heartbeating and its record simply
// expires, which is the whole point of the ephemeral store.
const DefaultTTL = 90 * time.Second

func presenceKey(uid string) string {
	return "presence:" + uid
}

func presenceChannel(uid string) string {
	return "presence:" + uid + ":changed"
}

// Store is the ephemeral presence adapter: TTL'd records keyed by user
// id, with a pub/sub wakeup per user so watchers re-read on change.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: DefaultTTL, log: logger.Log}
}

// Heartbeat marks uid online, refreshing the record's TTL. Called on
// view attach and on a timer while the session lives.
func (s *Store) Heartbeat(ctx context.Context, uid, name string) error {
	return s.write(ctx, uid, &Status{Online: true, LastSeen: time.Now().UTC(), Name: name})
}

// Disconnect marks uid offline with a final last-seen. The record keeps
// its TTL: after it expires watchers fall back to the durable mirror.
func (s *Store) Disconnect(ctx context.Context, uid, name string) error {
	return s.write(ctx, uid, &Status{Online: false, LastSeen: time.Now().UTC(), Name: name})
}

func (s *Store) write(ctx context.Context, uid string, st *Status) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, presenceKey(uid), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("presence write %s: %w", uid, err)
	}
	if err := s.rdb.Publish(ctx, presenceChannel(uid), "1").Err(); err != nil {
		s.log.Warn("presence notify failed", "uid", uid, "err", err)
	}
	return nil
}

// Get reads uid's ephemeral record. A nil Status with nil error means the
// record is absent (expired or never written).
func (s *Store) Get(ctx context.Context, uid string) (*Status, error) {
	raw, err := s.rdb.Get(ctx, presenceKey(uid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	st := &Status{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("presence decode %s: %w", uid, err)
	}
	return st, nil
}

// Watch yields uid's ephemeral status on every change: the current value
// first, then a re-read per notification. Expiry produces no notification,
// so the watcher also re-reads on a timer to observe records vanishing.
// The caller must Close the handle on view teardown or target change.
func (s *Store) Watch(ctx context.Context, uid string) (*Watch, error) {
	pubsub := s.rdb.Subscribe(ctx, presenceChannel(uid))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("presence watch %s: %w", uid, err)
	}

	w := &Watch{
		updates: make(chan *Status, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		pubsub:  pubsub,
	}
	go s.pump(ctx, uid, w)
	return w, nil
}

func (s *Store) pump(ctx context.Context, uid string, w *Watch) {
	defer close(w.updates)

	deliver := func() {
		st, err := s.Get(ctx, uid)
		if err != nil {
			select {
			case w.errs <- err:
			default:
			}
			return
		}
		select {
		case w.updates <- st:
		case <-w.done:
		case <-ctx.Done():
		}
	}

	deliver()

	expiry := time.NewTicker(s.ttl / 2)
	defer expiry.Stop()

	ch := w.pubsub.Channel()
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			deliver()
		case <-expiry.C:
			deliver()
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Watch is a live handle on one user's ephemeral presence.
type Watch struct {
	updates chan *Status
	errs    chan error
	done    chan struct{}
	pubsub  *redis.PubSub

	closeOnce sync.Once
}

// Updates yields the status after each change; nil means the record is
// absent.
func (w *Watch) Updates() <-chan *Status {
	return w.updates
}

func (w *Watch) Errors() <-chan error {
	return w.errs
}

// Close releases the watch. Safe to call more than once.
func (w *Watch) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.pubsub.Close()
	})
}
