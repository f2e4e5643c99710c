package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientPostsBodyAndParsesSuggestions(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		gotBody = req.Message
		json.NewEncoder(w).Encode(map[string]any{
			"suggestions": []string{"Sounds great!", "On my way", "Can't today"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	replies, err := c.SuggestReplies(context.Background(), "want to grab lunch?")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if gotBody != "want to grab lunch?" {
		t.Errorf("service received %q", gotBody)
	}
	if len(replies) != 3 || replies[0] != "Sounds great!" {
		t.Errorf("replies = %v", replies)
	}
}

func TestClientServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.SuggestReplies(context.Background(), "hi"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestClientUnconfiguredIsDisabled(t *testing.T) {
	c := NewClient("", time.Second)
	if _, err := c.SuggestReplies(context.Background(), "hi"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SuggestReplies(ctx, "hi"); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
