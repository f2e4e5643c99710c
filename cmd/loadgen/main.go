package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "number of conversation pairs")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type authResponse struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

type conversationResponse struct {
	ID string `json:"conversation_id"`
}

func main() {
	flag.Parse()
	log.Printf("starting load: %d users, %d messages each", *pairCount*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	convID := createConversation(tokenA, idB)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatSession(&wsWg, tokenA, convID, userA)
	go chatSession(&wsWg, tokenB, convID, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring the already-exists error) then logs in.
func authenticate(username, password string) (string, string) {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return "", ""
	}
	defer resp.Body.Close()

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.ID
}

func createConversation(token, targetID string) string {
	body, _ := json.Marshal(map[string]string{"target_id": targetID})
	req, _ := http.NewRequest("POST", *baseURL+"/api/conversations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("create conversation failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data conversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

// chatSession opens a conversation view and sends messages through it,
// draining server events on the side like a real client would.
func chatSession(wg *sync.WaitGroup, token, convID, username string) {
	defer wg.Done()

	url := fmt.Sprintf("%s?token=%s&conversation_id=%s", *wsURL, token, convID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain events so the server's write pump never stalls.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		cmd := map[string]string{
			"type": "send",
			"text": fmt.Sprintf("load message %d from %s", i, username),
		}
		if err := conn.WriteJSON(cmd); err != nil {
			log.Printf("send failed [%s]: %v", username, err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", username, *msgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	raw, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewReader(raw))
}
