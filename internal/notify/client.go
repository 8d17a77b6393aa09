package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Control frames only, subscribe messages are tiny
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser UI runs on a different origin than the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is what clients send to join or leave a file's
// notification group.
type clientCommand struct {
	Action string `json:"action"`
	FileID string `json:"fileId"`
}

// Client is one live websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// ServeWS upgrades an HTTP request and runs the connection's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()

	return nil
}

// readPump handles subscribe/unsubscribe commands until the client
// goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil || cmd.FileID == "" {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.hub.subscribe <- subscription{client: c, fileID: cmd.FileID}
		case "unsubscribe":
			c.hub.unsubscribe <- subscription{client: c, fileID: cmd.FileID}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
