package push

import (
	"encoding/json"
	"net/http"
	"time"

	"community-chat/internal/identity"
	"community-chat/internal/middleware"
	"community-chat/internal/msglog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum frame size allowed from peer.
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	ID          string
	Hub         *Hub
	Conn        *websocket.Conn
	Send        chan []byte
	Participant identity.Participant
	Name        string
}

// ServeWs upgrades an authenticated request into a hub client.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Hub:         h,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Participant: p,
		Name:        middleware.NameFromContext(r.Context()),
	}
	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps frames from the websocket into engine operations.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("websocket read failed", "client", c.ID, "err", err)
			}
			break
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendError("malformed event")
			continue
		}
		c.handle(event)
	}
}

func (c *Client) handle(event Event) {
	ctx, cancel := opContext()
	defer cancel()

	switch event.Type {
	case "subscribe_conversation":
		member, err := c.Hub.members.IsMember(ctx, event.ConversationID, c.Participant)
		if err != nil || !member {
			c.sendError("not allowed")
			return
		}
		c.Hub.subscribe <- subscription{client: c, conversationID: event.ConversationID}

	case "message":
		_, err := c.Hub.messages.Send(ctx, c.Participant, &msglog.SendRequest{
			ConversationID: event.ConversationID,
			Body:           event.Body,
			ReplyToID:      event.ReplyToID,
		})
		if err != nil {
			c.sendError("send failed")
		}
		// Delivery to subscribers happens through the hub's notifier
		// hook once the send commits.

	case "typing_start":
		if err := c.Hub.typing.SetTyping(ctx, event.ConversationID, c.Participant); err != nil {
			c.sendError("not allowed")
			return
		}
		c.Hub.TypingChanged(event.ConversationID, c.Participant, c.Name, true)

	case "typing_stop":
		if err := c.Hub.typing.ClearTyping(ctx, event.ConversationID, c.Participant); err != nil {
			c.sendError("not allowed")
			return
		}
		c.Hub.TypingChanged(event.ConversationID, c.Participant, c.Name, false)

	default:
		c.sendError("unknown event type")
	}
}

func (c *Client) sendError(msg string) {
	payload, err := json.Marshal(Event{Type: "error", Error: msg})
	if err != nil {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

// writePump pumps hub payloads out to the websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain anything queued to cut down on syscalls.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
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
