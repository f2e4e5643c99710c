package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrDisabled is returned when no completion endpoint is configured.
var ErrDisabled = errors.New("suggestion service not configured")

// Completer produces candidate replies for a message body. The view
// depends on this interface so tests can substitute a fake.
type Completer interface {
	SuggestReplies(ctx context.Context, messageBody string) ([]string, error)
}

// Client calls the hosted completion service: POST the message body,
// receive a handful of short candidate replies (five-word target). The
// service does the prompting; we just ferry strings.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type suggestRequest struct {
	Message string `json:"message"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

func (c *Client) SuggestReplies(ctx context.Context, messageBody string) ([]string, error) {
	if c.url == "" {
		return nil, ErrDisabled
	}

	raw, err := json.Marshal(suggestRequest{Message: messageBody})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("suggestion call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggestion service returned %d", res.StatusCode)
	}

	var body suggestResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("suggestion decode: %w", err)
	}
	return body.Suggestions, nil
}
