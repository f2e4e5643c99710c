package view

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"go-messenger/internal/chat"
	"go-messenger/internal/logger"
	"go-messenger/internal/middleware"
	"go-messenger/internal/presence"
	"go-messenger/internal/suggest"
	"go-messenger/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dev mode; restrict origins in production.
	},
}

type Handler struct {
	deps Deps
}

// NewHandler wires the concrete collaborators behind the view's
// interfaces.
func NewHandler(svc *chat.Service, streamer *chat.Streamer, pres *presence.Store, users *user.Repository, completer suggest.Completer) *Handler {
	return &Handler{deps: Deps{
		Chat:      svc,
		Stream:    streamAdapter{streamer},
		Presence:  presenceAdapter{pres},
		Profiles:  users,
		Completer: completer,
	}}
}

// ServeWs opens one conversation view over a websocket. The view's
// lifetime is the connection's: when either pump dies, the loop tears
// down every subscription it owns.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	uid, ok := r.Context().Value(middleware.UserKey).(string)
	username, ok2 := r.Context().Value(middleware.UsernameKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	local := LocalUser{ID: uid, Name: username}
	if p, err := h.deps.Profiles.GetByID(r.Context(), uid); err == nil {
		local.Name = p.Label()
		local.Avatar = p.AvatarURL
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(conn)
	v := New(h.deps, local, convID, client.send, client.commands)

	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump()
	go client.readPump()
	go func() {
		defer cancel()
		v.Run(ctx)
		close(client.send)
	}()
}

type streamAdapter struct{ s *chat.Streamer }

func (a streamAdapter) Subscribe(ctx context.Context, convID string) (MessageSubscription, error) {
	return a.s.Subscribe(ctx, convID)
}

type presenceAdapter struct{ p *presence.Store }

func (a presenceAdapter) Watch(ctx context.Context, uid string) (PresenceWatch, error) {
	return a.p.Watch(ctx, uid)
}

func (a presenceAdapter) Heartbeat(ctx context.Context, uid, name string) error {
	return a.p.Heartbeat(ctx, uid, name)
}

func (a presenceAdapter) Disconnect(ctx context.Context, uid, name string) error {
	return a.p.Disconnect(ctx, uid, name)
}
