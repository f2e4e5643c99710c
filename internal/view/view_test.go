package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-messenger/internal/chat"
	"go-messenger/internal/presence"
	"go-messenger/internal/user"
)

// --- fakes ---------------------------------------------------------------

type fakeSub struct {
	updates chan []chat.Message
	errs    chan error

	mu     sync.Mutex
	closed bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		updates: make(chan []chat.Message, 8),
		errs:    make(chan error, 8),
	}
}

func (f *fakeSub) Updates() <-chan []chat.Message { return f.updates }
func (f *fakeSub) Errors() <-chan error           { return f.errs }
func (f *fakeSub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeStream struct {
	sub *fakeSub
	err error
}

func (f *fakeStream) Subscribe(ctx context.Context, convID string) (MessageSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fakeWatch struct {
	updates chan *presence.Status
	errs    chan error

	mu     sync.Mutex
	closed bool
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{
		updates: make(chan *presence.Status, 8),
		errs:    make(chan error, 8),
	}
}

func (f *fakeWatch) Updates() <-chan *presence.Status { return f.updates }
func (f *fakeWatch) Errors() <-chan error             { return f.errs }
func (f *fakeWatch) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
func (f *fakeWatch) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakePresence struct {
	watch *fakeWatch

	mu          sync.Mutex
	heartbeats  int
	disconnects int
}

func (f *fakePresence) Watch(ctx context.Context, uid string) (PresenceWatch, error) {
	return f.watch, nil
}
func (f *fakePresence) Heartbeat(ctx context.Context, uid, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}
func (f *fakePresence) Disconnect(ctx context.Context, uid, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}
func (f *fakePresence) counts() (hb, dc int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats, f.disconnects
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*user.Profile
	presence map[string]bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: make(map[string]*user.Profile),
		presence: make(map[string]bool),
	}
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*user.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return p, nil
}
func (f *fakeProfiles) SetPresence(ctx context.Context, id string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence[id] = online
	return nil
}
func (f *fakeProfiles) online(id string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.presence[id]
	return v, ok
}

type fakeChat struct {
	conv *chat.Conversation

	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (f *fakeChat) Get(ctx context.Context, convID, uid string) (*chat.Conversation, error) {
	if f.conv == nil {
		return nil, chat.ErrNotFound
	}
	return f.conv, nil
}
func (f *fakeChat) Send(ctx context.Context, convID string, from chat.Sender, body string, replyTarget *chat.Message) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, body)
	return &chat.Message{ID: "srv", Body: body, SenderID: from.ID}, nil
}
func (f *fakeChat) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeCompleter answers each message body through a per-call gate so
// tests control completion order.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   []string
	replies map[string][]string
	err     error
	gate    chan struct{} // nil = answer immediately
}

func (f *fakeCompleter) SuggestReplies(ctx context.Context, body string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, body)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.replies[body]; ok {
		return r, nil
	}
	return []string{"ok"}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- harness -------------------------------------------------------------

type harness struct {
	t         *testing.T
	events    chan Event
	commands  chan Command
	sub       *fakeSub
	watch     *fakeWatch
	pres      *fakePresence
	profiles  *fakeProfiles
	chat      *fakeChat
	completer *fakeCompleter
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		events:    make(chan Event, 64),
		commands:  make(chan Command, 8),
		sub:       newFakeSub(),
		watch:     newFakeWatch(),
		profiles:  newFakeProfiles(),
		completer: &fakeCompleter{replies: map[string][]string{}},
		done:      make(chan struct{}),
	}
	h.pres = &fakePresence{watch: h.watch}
	h.chat = &fakeChat{conv: &chat.Conversation{
		ID:           "c1",
		Participants: []string{"me", "partner"},
	}}
	h.profiles.profiles["partner"] = &user.Profile{ID: "partner", Username: "bob", IsOnline: false}
	return h
}

func (h *harness) start() {
	deps := Deps{
		Chat:      h.chat,
		Stream:    &fakeStream{sub: h.sub},
		Presence:  h.pres,
		Profiles:  h.profiles,
		Completer: h.completer,
	}
	v := New(deps, LocalUser{ID: "me", Name: "Me"}, "c1", h.events, h.commands)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		v.Run(ctx)
		close(h.done)
	}()
}

func (h *harness) stop() {
	h.cancel()
	h.waitDone()
}

func (h *harness) waitDone() {
	h.t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("view did not stop")
	}
}

// waitEvent reads events until one of the wanted type arrives.
func (h *harness) waitEvent(typ string) Event {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %q event", typ)
		}
	}
}

func (h *harness) expectNoEvent(typ string, within time.Duration) {
	h.t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				h.t.Fatalf("unexpected %q event: %+v", typ, ev)
			}
		case <-deadline:
			return
		}
	}
}

func inboundSeq(ids ...string) []chat.Message {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]chat.Message, len(ids))
	for i, id := range ids {
		out[i] = chat.Message{ID: id, SenderID: "partner", Body: "body " + id, CreatedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

// --- tests ---------------------------------------------------------------

func TestViewNotFoundConversation(t *testing.T) {
	h := newHarness(t)
	h.chat.conv = nil
	h.start()

	h.waitEvent(EventNotFound)
	h.waitDone()
}

func TestViewPushesMessagesAndFiresSuggestions(t *testing.T) {
	h := newHarness(t)
	h.completer.replies["body m1"] = []string{"hi!", "hello"}
	h.start()
	defer h.stop()

	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	ev := h.waitEvent(EventMessages)
	if len(ev.Messages) != 1 || !ev.ScrollToLatest {
		t.Fatalf("messages event: %+v", ev)
	}

	sg := h.waitEvent(EventSuggestions)
	if sg.Suggestions == nil || sg.Suggestions.MessageID != "m1" {
		t.Fatalf("suggestions event: %+v", sg)
	}
	if got := sg.Suggestions.Replies; len(got) != 2 || got[0] != "hi!" {
		t.Fatalf("replies = %v", got)
	}
}

func TestViewExactlyOneCallPerInboundMessage(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventSuggestions)

	h.sub.updates <- inboundSeq("m1", "m2")
	h.waitEvent(EventSuggestions)

	// Identical re-delivery: no third call.
	h.sub.updates <- inboundSeq("m1", "m2")
	h.waitEvent(EventMessages)
	h.expectNoEvent(EventSuggestions, 100*time.Millisecond)

	if n := h.completer.callCount(); n != 2 {
		t.Fatalf("completer called %d times, want 2", n)
	}
}

func TestViewOwnMessageClearsAndDoesNotFire(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventSuggestions)

	seq := inboundSeq("m1")
	seq = append(seq, chat.Message{ID: "m3", SenderID: "me", Body: "my reply", CreatedAt: seq[0].CreatedAt.Add(time.Minute)})
	h.sub.updates <- seq

	// The live set is cleared and no new call fires.
	cleared := h.waitEvent(EventSuggestions)
	if cleared.Suggestions != nil {
		t.Fatalf("expected cleared suggestions, got %+v", cleared.Suggestions)
	}
	if n := h.completer.callCount(); n != 1 {
		t.Fatalf("completer called %d times, want 1", n)
	}
}

func TestViewStaleCompletionDiscarded(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.completer.gate = gate
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	// m1's call blocks on the gate; m2 supersedes it.
	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventMessages)
	h.sub.updates <- inboundSeq("m1", "m2")
	h.waitEvent(EventMessages)

	// Release both calls. Whichever order they land, only m2's set may go
	// live.
	close(gate)

	sg := h.waitEvent(EventSuggestions)
	if sg.Suggestions == nil || sg.Suggestions.MessageID != "m2" {
		t.Fatalf("live set = %+v, want m2", sg.Suggestions)
	}
	h.expectNoEvent(EventSuggestions, 100*time.Millisecond)
}

func TestViewSuggestionFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.completer.err = errors.New("model overloaded")
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventMessages)

	// Suppressed: no suggestions event, no error event for the user.
	h.expectNoEvent(EventSuggestions, 150*time.Millisecond)
}

func TestViewSubscriptionErrorKeepsStateAndSurfaces(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventMessages)

	h.sub.errs <- errors.New("permission denied")
	ev := h.waitEvent(EventError)
	if ev.Error == "" {
		t.Fatal("error event without message")
	}

	// The subscription stays live: a later update still lands.
	h.sub.updates <- inboundSeq("m1", "m2")
	ev = h.waitEvent(EventMessages)
	if len(ev.Messages) != 2 {
		t.Fatalf("update after error carried %d messages", len(ev.Messages))
	}
}

func TestViewPresenceReconciliation(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	// Initial: no ephemeral record, durable offline profile.
	ev := h.waitEvent(EventPresence)
	if ev.Presence.Online {
		t.Fatalf("initial presence should be offline: %+v", ev.Presence)
	}

	// Ephemeral online update wins.
	h.watch.updates <- &presence.Status{Online: true, Name: "Bob"}
	ev = h.waitEvent(EventPresence)
	if !ev.Presence.Online || ev.Presence.Label != "Online" {
		t.Fatalf("presence after ephemeral online: %+v", ev.Presence)
	}

	// Ephemeral going offline beats the durable mirror regardless of it.
	h.watch.updates <- &presence.Status{Online: false, LastSeen: time.Now().Add(-3 * time.Minute)}
	ev = h.waitEvent(EventPresence)
	if ev.Presence.Online {
		t.Fatalf("ephemeral offline must win: %+v", ev.Presence)
	}
}

func TestViewSendCommand(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventSuggestions)

	h.commands <- Command{Type: CommandSend, Text: "hello there"}
	cleared := h.waitEvent(EventSuggestions)
	if cleared.Suggestions != nil {
		t.Fatal("send must clear the live set")
	}
	if got := h.chat.sentBodies(); len(got) != 1 || got[0] != "hello there" {
		t.Fatalf("sent = %v", got)
	}
}

func TestViewSendFailureSurfacesError(t *testing.T) {
	h := newHarness(t)
	h.chat.sendErr = errors.New("write denied")
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.commands <- Command{Type: CommandSend, Text: "hello"}
	ev := h.waitEvent(EventError)
	if ev.Error == "" {
		t.Fatal("send failure must carry an error message")
	}
}

func TestViewComposerEditClearsSuggestions(t *testing.T) {
	h := newHarness(t)
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventSuggestions)

	h.commands <- Command{Type: CommandComposer, Text: "typing"}
	cleared := h.waitEvent(EventSuggestions)
	if cleared.Suggestions != nil {
		t.Fatal("composer edit must clear suggestions")
	}
}

func TestViewSelectSuggestionFillsComposer(t *testing.T) {
	h := newHarness(t)
	h.completer.replies["body m1"] = []string{"sure", "nope"}
	h.start()
	defer h.stop()
	h.waitEvent(EventConversation)

	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventSuggestions)

	h.commands <- Command{Type: CommandSelectItem, Index: 1}
	fill := h.waitEvent(EventComposerFill)
	if fill.Text != "nope" {
		t.Fatalf("composer fill = %q", fill.Text)
	}
	cleared := h.waitEvent(EventSuggestions)
	if cleared.Suggestions != nil {
		t.Fatal("selection must clear the set")
	}
}

func TestViewTeardownReleasesEverything(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitEvent(EventConversation)
	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventMessages)

	h.stop()

	if !h.sub.isClosed() {
		t.Error("message subscription not closed on teardown")
	}
	if !h.watch.isClosed() {
		t.Error("presence watch not closed on teardown")
	}
	if _, dc := h.pres.counts(); dc != 1 {
		t.Errorf("ephemeral disconnect writes = %d, want 1", dc)
	}
	if online, ok := h.profiles.online("me"); !ok || online {
		t.Error("durable mirror should be marked offline on teardown")
	}
}

func TestViewHeartbeatMarksOnline(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitEvent(EventConversation)

	// The initial heartbeat runs before the loop consumes its first
	// update, so a processed update is the synchronization point.
	h.sub.updates <- inboundSeq("m1")
	h.waitEvent(EventMessages)

	if hb, _ := h.pres.counts(); hb < 1 {
		t.Error("initial ephemeral heartbeat missing")
	}
	if online, ok := h.profiles.online("me"); !ok || !online {
		t.Error("durable mirror should be marked online while connected")
	}
	h.stop()
}

func TestViewClosedCommandsStopsLoop(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitEvent(EventConversation)

	close(h.commands)
	h.waitDone()

	if !h.sub.isClosed() {
		t.Error("subscription must be released when the client goes away")
	}
}
