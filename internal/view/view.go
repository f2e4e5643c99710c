package view

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go-messenger/internal/chat"
	"go-messenger/internal/logger"
	"go-messenger/internal/presence"
	"go-messenger/internal/suggest"
	"go-messenger/internal/user"
)

const (
	heartbeatInterval = 30 * time.Second
	durableRefresh    = 30 * time.Second
)

// MessageSubscription is a live handle on a conversation's message
// stream. Satisfied by *chat.Subscription.
type MessageSubscription interface {
	Updates() <-chan []chat.Message
	Errors() <-chan error
	Close()
}

type MessageStream interface {
	Subscribe(ctx context.Context, convID string) (MessageSubscription, error)
}

// PresenceWatch is a live handle on one user's ephemeral presence.
// Satisfied by *presence.Watch.
type PresenceWatch interface {
	Updates() <-chan *presence.Status
	Errors() <-chan error
	Close()
}

type PresenceSource interface {
	Watch(ctx context.Context, uid string) (PresenceWatch, error)
	Heartbeat(ctx context.Context, uid, name string) error
	Disconnect(ctx context.Context, uid, name string) error
}

// ProfileSource is the durable store side of presence plus the partner
// profile point read. Satisfied by *user.Repository.
type ProfileSource interface {
	GetByID(ctx context.Context, id string) (*user.Profile, error)
	SetPresence(ctx context.Context, id string, online bool) error
}

type ChatService interface {
	Get(ctx context.Context, convID, requesterUID string) (*chat.Conversation, error)
	Send(ctx context.Context, convID string, from chat.Sender, body string, replyTarget *chat.Message) (*chat.Message, error)
}

type Deps struct {
	Chat      ChatService
	Stream    MessageStream
	Presence  PresenceSource
	Profiles  ProfileSource
	Completer suggest.Completer
}

// LocalUser is the authenticated identity owning the view.
type LocalUser struct {
	ID     string
	Name   string
	Avatar string
}

type completionResult struct {
	id      string
	replies []string
	err     error
}

// View runs the reactive core for one open conversation: the message
// projector, the presence reconciler inputs and the smart-reply trigger,
// all mutated from a single event loop. One instance per websocket
// connection; nothing here is shared across views.
type View struct {
	deps   Deps
	local  LocalUser
	convID string

	events   chan<- Event
	commands <-chan Command

	projector *chat.Projector
	trigger   *suggest.Trigger

	log *slog.Logger
}

func New(deps Deps, local LocalUser, convID string, events chan<- Event, commands <-chan Command) *View {
	return &View{
		deps:      deps,
		local:     local,
		convID:    convID,
		events:    events,
		commands:  commands,
		projector: chat.NewProjector(),
		trigger:   suggest.NewTrigger(local.ID),
		log:       logger.Log,
	}
}

// Run drives the view until the client goes away or ctx is canceled.
// Every subscription acquired here is released on every exit path.
func (v *View) Run(ctx context.Context) {
	defer v.offline()

	conv, err := v.deps.Chat.Get(ctx, v.convID, v.local.ID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			v.push(Event{Type: EventNotFound, Error: "conversation not found"})
		} else {
			v.push(Event{Type: EventError, Error: err.Error()})
		}
		return
	}
	v.push(Event{Type: EventConversation, Conversation: conv})

	sub, err := v.deps.Stream.Subscribe(ctx, conv.ID)
	if err != nil {
		v.push(Event{Type: EventError, Error: "message stream: " + err.Error()})
		return
	}
	defer sub.Close()

	// Presence is only computed for one-to-one conversations; a group has
	// no single partner.
	var (
		ephemeral, durable *presence.Status
		watchUpdates       <-chan *presence.Status
		watchErrs          <-chan error
		durableCh          <-chan time.Time
	)
	partnerID, hasPartner := conv.PartnerOf(v.local.ID)
	if hasPartner {
		if w, werr := v.deps.Presence.Watch(ctx, partnerID); werr != nil {
			// Non-fatal: the durable mirror still provides a status.
			v.log.Warn("presence watch failed", "partner", partnerID, "err", werr)
		} else {
			defer w.Close()
			watchUpdates = w.Updates()
			watchErrs = w.Errors()
		}

		durable = v.durableStatus(ctx, partnerID)
		v.pushPresence(ephemeral, durable)

		t := time.NewTicker(durableRefresh)
		defer t.Stop()
		durableCh = t.C
	}

	v.heartbeat(ctx)
	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	completions := make(chan completionResult, 4)

	for {
		select {
		case msgs, ok := <-sub.Updates():
			if !ok {
				return
			}
			v.applyMessages(ctx, msgs, completions)

		case err := <-sub.Errors():
			// Last-known-good messages stay on screen; the subscription
			// remains live for later updates.
			v.push(Event{Type: EventError, Error: "message stream: " + err.Error()})

		case st, ok := <-watchUpdates:
			if !ok {
				watchUpdates = nil
				continue
			}
			ephemeral = st
			v.pushPresence(ephemeral, durable)

		case err := <-watchErrs:
			v.log.Warn("presence update failed", "partner", partnerID, "err", err)

		case <-durableCh:
			durable = v.durableStatus(ctx, partnerID)
			v.pushPresence(ephemeral, durable)

		case res := <-completions:
			v.finishCompletion(res)

		case cmd, ok := <-v.commands:
			if !ok {
				return
			}
			v.handleCommand(ctx, cmd, completions)

		case <-hb.C:
			v.heartbeat(ctx)

		case <-ctx.Done():
			return
		}
	}
}

func (v *View) applyMessages(ctx context.Context, msgs []chat.Message, completions chan<- completionResult) {
	changed := v.projector.Apply(msgs)
	v.push(Event{
		Type:           EventMessages,
		Messages:       v.projector.Messages(),
		ScrollToLatest: changed,
	})

	var lm *suggest.LatestMessage
	if latest := v.projector.Latest(); latest != nil {
		lm = &suggest.LatestMessage{ID: latest.ID, SenderID: latest.SenderID, Body: latest.Body}
	}

	before := v.trigger.State()
	fire, ok := v.trigger.Observe(lm)
	if ok {
		go v.fetchSuggestions(ctx, fire, completions)
		return
	}
	if before != suggest.StateIdle && v.trigger.State() == suggest.StateIdle {
		v.push(Event{Type: EventSuggestions})
	}
}

// fetchSuggestions runs off the loop so the view stays responsive while
// the completion call is in flight. A superseded call is not canceled;
// its result is discarded by the trigger's id check on arrival.
func (v *View) fetchSuggestions(ctx context.Context, m suggest.LatestMessage, out chan<- completionResult) {
	replies, err := v.deps.Completer.SuggestReplies(ctx, m.Body)
	select {
	case out <- completionResult{id: m.ID, replies: replies, err: err}:
	case <-ctx.Done():
	}
}

func (v *View) finishCompletion(res completionResult) {
	if res.err != nil {
		// Suppressed: silent beyond the absence of suggestions, no retry.
		v.trigger.Fail(res.id)
		v.log.Warn("suggestion call failed", "message", res.id, "err", res.err)
		return
	}
	if v.trigger.Complete(res.id, res.replies) {
		v.push(Event{Type: EventSuggestions, Suggestions: v.trigger.Suggestions()})
	}
}

func (v *View) handleCommand(ctx context.Context, cmd Command, completions chan<- completionResult) {
	switch cmd.Type {
	case CommandSend:
		var target *chat.Message
		if cmd.ReplyToID != "" {
			msgs := v.projector.Messages()
			for i := range msgs {
				if msgs[i].ID == cmd.ReplyToID {
					target = &msgs[i]
					break
				}
			}
		}

		from := chat.Sender{ID: v.local.ID, Name: v.local.Name, Avatar: v.local.Avatar}
		_, err := v.deps.Chat.Send(ctx, v.convID, from, cmd.Text, target)
		if err != nil {
			// The client keeps its composer text; no optimistic message.
			// A partial failure still stored the message, and the next
			// stream update will show it.
			v.push(Event{Type: EventError, Error: "send: " + err.Error()})
			return
		}
		v.trigger.Sent()
		v.push(Event{Type: EventSuggestions})

	case CommandComposer:
		before := v.trigger.State()
		v.trigger.ComposerChanged(cmd.Text)
		if before != suggest.StateIdle && v.trigger.State() == suggest.StateIdle {
			v.push(Event{Type: EventSuggestions})
		}

	case CommandSelectItem:
		if text, ok := v.trigger.Select(cmd.Index); ok {
			v.push(Event{Type: EventComposerFill, Text: text})
			v.push(Event{Type: EventSuggestions})
		}

	default:
		v.log.Debug("unknown command", "type", cmd.Type)
	}
}

func (v *View) durableStatus(ctx context.Context, partnerID string) *presence.Status {
	p, err := v.deps.Profiles.GetByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			v.log.Warn("partner profile not found", "partner", partnerID)
		} else {
			v.log.Warn("partner profile read failed", "partner", partnerID, "err", err)
		}
		return nil
	}
	st := &presence.Status{Online: p.IsOnline, Name: p.Label()}
	if p.LastSeen != nil {
		st.LastSeen = *p.LastSeen
	}
	return st
}

func (v *View) pushPresence(ephemeral, durable *presence.Status) {
	r := presence.Resolve(ephemeral, durable)
	v.push(Event{Type: EventPresence, Presence: &PresencePayload{
		Online: r.Online,
		Label:  r.Label(time.Now()),
		Name:   r.Name,
	}})
}

// heartbeat re-asserts the local user's presence in both stores: the
// ephemeral record (TTL refresh) and the durable mirror.
func (v *View) heartbeat(ctx context.Context) {
	if err := v.deps.Presence.Heartbeat(ctx, v.local.ID, v.local.Name); err != nil {
		v.log.Warn("ephemeral heartbeat failed", "err", err)
	}
	if err := v.deps.Profiles.SetPresence(ctx, v.local.ID, true); err != nil {
		v.log.Warn("durable heartbeat failed", "err", err)
	}
}

// offline is the graceful-teardown write: offline with a final last-seen
// in both stores. An abrupt disconnect skips this, which is exactly the
// case the ephemeral TTL covers.
func (v *View) offline() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.deps.Presence.Disconnect(ctx, v.local.ID, v.local.Name); err != nil {
		v.log.Warn("ephemeral disconnect write failed", "err", err)
	}
	if err := v.deps.Profiles.SetPresence(ctx, v.local.ID, false); err != nil {
		v.log.Warn("durable disconnect write failed", "err", err)
	}
}

// push hands an event to the write pump without ever blocking the loop.
// A client too slow to drain its buffer loses intermediate events; every
// state event carries full state, so the next one repairs the view.
func (v *View) push(ev Event) {
	select {
	case v.events <- ev:
	default:
		v.log.Warn("event dropped, slow client", "type", ev.Type)
	}
}
