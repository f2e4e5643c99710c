package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeStore implements Store in memory, assigning server timestamps on
// insert the way the document store does.
type fakeStore struct {
	messages  map[string][]Message
	snapshots map[string]LastMessage

	insertErr   error
	snapshotErr error

	clock time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:  make(map[string][]Message),
		snapshots: make(map[string]LastMessage),
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) Messages(ctx context.Context, convID string) ([]Message, error) {
	return f.messages[convID], nil
}

func (f *fakeStore) Insert(ctx context.Context, m *Message) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.clock = f.clock.Add(time.Second)
	m.CreatedAt = f.clock
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], *m)
	return nil
}

func (f *fakeStore) Conversation(ctx context.Context, id string) (*Conversation, error) {
	if _, ok := f.messages[id]; !ok {
		return nil, ErrNotFound
	}
	return &Conversation{ID: id, Participants: []string{"alice", "bob"}}, nil
}

func (f *fakeStore) RecordLastMessage(ctx context.Context, convID string, lm LastMessage, senderID string) error {
	if f.snapshotErr != nil {
		return f.snapshotErr
	}
	f.snapshots[convID] = lm
	return nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) ConversationChanged(ctx context.Context, convID string) error {
	f.notified = append(f.notified, convID)
	return nil
}

func TestSendPlainMessage(t *testing.T) {
	store := newFakeStore()
	store.messages["c1"] = nil
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier)

	from := Sender{ID: "alice", Name: "Alice", Avatar: "a.png"}
	m, err := svc.Send(context.Background(), "c1", from, "Hello", nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if m.Body != "Hello" || m.SenderID != "alice" || m.Status != StatusSent {
		t.Errorf("unexpected message: %+v", m)
	}
	if !m.Reply.IsZero() {
		t.Errorf("no reply target given, reply context should be empty: %+v", m.Reply)
	}
	if m.SenderName != "Alice" || m.SenderAvatar != "a.png" {
		t.Errorf("sender display metadata not captured: %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("timestamp should be server-assigned on insert")
	}

	snap, ok := store.snapshots["c1"]
	if !ok {
		t.Fatal("conversation snapshot was not updated")
	}
	if snap.Body != "Hello" || snap.SenderID != "alice" || !snap.SentAt.Equal(m.CreatedAt) {
		t.Errorf("snapshot mismatch: %+v", snap)
	}
	if len(notifier.notified) != 1 || notifier.notified[0] != "c1" {
		t.Errorf("subscribers not notified exactly once: %v", notifier.notified)
	}
}

func TestSendWithReplyTarget(t *testing.T) {
	store := newFakeStore()
	store.messages["c1"] = nil
	svc := NewService(store, &fakeNotifier{})

	target := &Message{ID: "m9", Body: strings.Repeat("a", 100), SenderName: "Bob"}
	m, err := svc.Send(context.Background(), "c1", Sender{ID: "alice"}, "re: that", target)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if m.Reply.TargetID != "m9" {
		t.Errorf("reply target id = %q, want m9", m.Reply.TargetID)
	}
	if want := strings.Repeat("a", 70) + "…"; m.Reply.Snippet != want {
		t.Errorf("snippet not truncated to 70 chars plus ellipsis: %q", m.Reply.Snippet)
	}
	if m.Reply.SenderLabel != "Bob" {
		t.Errorf("sender label = %q, want Bob", m.Reply.SenderLabel)
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	store := newFakeStore()
	store.messages["c1"] = nil
	svc := NewService(store, &fakeNotifier{})

	for _, body := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Send(context.Background(), "c1", Sender{ID: "alice"}, body, nil); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("body %q: err = %v, want ErrEmptyMessage", body, err)
		}
	}
	if len(store.messages["c1"]) != 0 {
		t.Error("no write should happen for empty bodies")
	}
}

func TestSendInsertFailureWritesNothing(t *testing.T) {
	store := newFakeStore()
	store.messages["c1"] = nil
	store.insertErr = errors.New("write denied")
	notifier := &fakeNotifier{}
	svc := NewService(store, notifier)

	m, err := svc.Send(context.Background(), "c1", Sender{ID: "alice"}, "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if m != nil {
		t.Error("no message should be returned when the append failed")
	}
	if len(store.snapshots) != 0 {
		t.Error("snapshot must not be written after a failed append")
	}
	if len(notifier.notified) != 0 {
		t.Error("no notification after a failed append")
	}
}

func TestSendSnapshotFailureLeavesMessageStored(t *testing.T) {
	// The two writes are sequential, not atomic: a snapshot failure after
	// a successful append leaves the message durable and the conversation
	// preview stale. The caller gets both the stored message and the error.
	store := newFakeStore()
	store.messages["c1"] = nil
	store.snapshotErr = errors.New("merge denied")
	svc := NewService(store, &fakeNotifier{})

	m, err := svc.Send(context.Background(), "c1", Sender{ID: "alice"}, "hi", nil)
	if err == nil {
		t.Fatal("snapshot failure must surface as an error")
	}
	if m == nil {
		t.Fatal("stored message should still be returned")
	}
	if len(store.messages["c1"]) != 1 {
		t.Error("message should remain durably stored")
	}
	if _, ok := store.snapshots["c1"]; ok {
		t.Error("snapshot should not exist")
	}
}

func TestSendRoundTripThroughStore(t *testing.T) {
	// A message written by the send path and then read back carries the
	// same text, sender and reply fields as supplied.
	store := newFakeStore()
	store.messages["c1"] = nil
	svc := NewService(store, &fakeNotifier{})

	target := &Message{ID: "m1", Body: "original", SenderName: "Bob"}
	sent, err := svc.Send(context.Background(), "c1", Sender{ID: "alice", Name: "Alice"}, "answer", target)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	msgs, err := store.Messages(context.Background(), "c1")
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.Body != sent.Body || got.SenderID != sent.SenderID || got.Reply != sent.Reply {
		t.Errorf("round trip mismatch:\nsent %+v\ngot  %+v", sent, got)
	}
}

func TestHistoryRequiresMembership(t *testing.T) {
	store := newFakeStore()
	store.messages["c1"] = []Message{{ID: "m1"}}
	svc := NewService(store, &fakeNotifier{})

	if _, err := svc.History(context.Background(), "c1", "mallory"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-participant read: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.History(context.Background(), "c1", "alice"); err != nil {
		t.Errorf("participant read failed: %v", err)
	}
}

func TestGetUnknownConversation(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeNotifier{})
	if _, err := svc.Get(context.Background(), "nope", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
