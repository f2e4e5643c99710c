package view

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"go-messenger/internal/logger"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 4096                // Maximum command size allowed from peer.
)

// Client is the middleman between one websocket connection and its view:
// the read pump turns frames into commands, the write pump drains the
// event channel.
type Client struct {
	conn     *websocket.Conn
	send     chan Event
	commands chan Command
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan Event, 16),
		commands: make(chan Command, 4),
	}
}

// readPump pumps commands from the websocket connection to the view.
// When the connection dies the commands channel closes, which is the
// view's signal to tear down.
func (c *Client) readPump() {
	defer func() {
		close(c.commands)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Debug("websocket read", "err", err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.Log.Debug("bad command", "err", err)
			continue
		}
		c.commands <- cmd
	}
}

// writePump pumps events from the view to the websocket connection, with
// the usual ping heartbeat.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
