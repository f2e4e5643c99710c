package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"go-messenger/internal/middleware"
)

type Handler struct {
	service *Service
	repo    *Repository
}

func NewHandler(service *Service, repo *Repository) *Handler {
	return &Handler{service: service, repo: repo}
}

func identity(r *http.Request) (uid, username string, ok bool) {
	uid, ok1 := r.Context().Value(middleware.UserKey).(string)
	username, ok2 := r.Context().Value(middleware.UsernameKey).(string)
	return uid, username, ok1 && ok2
}

// StartConversation finds or creates the one-to-one conversation between
// the caller and a target user.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TargetID string `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		http.Error(w, "target_id is required", http.StatusBadRequest)
		return
	}
	if req.TargetID == uid {
		http.Error(w, "cannot start a conversation with yourself", http.StatusBadRequest)
		return
	}

	id, err := h.repo.FindOrCreateDirect(r.Context(), uid, req.TargetID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"conversation_id": id})
}

// GetChatHistory returns the conversation's full ordered message sequence.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	msgs, err := h.service.History(r.Context(), convID, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

// SendMessage is the REST entry to the send path. The websocket view
// offers the same operation as a command; both share Service.Send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	uid, username, ok := identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
		Body           string `json:"body"`
		ReplyToID      string `json:"reply_to_id,omitempty"`
		SenderName     string `json:"sender_name,omitempty"`
		SenderAvatar   string `json:"sender_avatar,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.service.Get(r.Context(), req.ConversationID, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var replyTarget *Message
	if req.ReplyToID != "" {
		msgs, err := h.service.History(r.Context(), conv.ID, uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for i := range msgs {
			if msgs[i].ID == req.ReplyToID {
				replyTarget = &msgs[i]
				break
			}
		}
		if replyTarget == nil {
			http.Error(w, "reply target not found", http.StatusBadRequest)
			return
		}
	}

	from := Sender{ID: uid, Name: req.SenderName, Avatar: req.SenderAvatar}
	if from.Name == "" {
		from.Name = username
	}

	m, err := h.service.Send(r.Context(), conv.ID, from, req.Body, replyTarget)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Partial failure after the insert still reports the error; the
		// client keeps its composer text and may retry manually.
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}
