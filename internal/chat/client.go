package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"designguard/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10

	sendBuffer   = 256
	eventTimeout = 10 * time.Second
)

type pairKey struct{ lo, hi int64 }

func keyFor(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	ID     string
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID int64
	Email  string
	Role   identity.Role

	relay *Relay
	log   *zap.Logger

	// Only touched by the goroutine running ReadPump.
	currentRoom *Room
	joined      map[pairKey]string
}

func NewClient(hub *Hub, relay *Relay, conn *websocket.Conn, userID int64, email string, role identity.Role) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
		Email:  email,
		Role:   role,
		relay:  relay,
		log:    relay.log.With(zap.String("conn_id", id), zap.Int64("user_id", userID)),
		joined: make(map[pairKey]string),
	}
}

// ReadPump runs every inbound event through the relay, one at a time.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			break
		}
		evCtx, evCancel := context.WithTimeout(ctx, eventTimeout)
		c.relay.Dispatch(evCtx, c, message)
		evCancel()
	}
	c.log.Debug("disconnected")
}

// WritePump writes queued events and pings until the hub closes Send.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
