package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"community-chat/internal/identity"
	"community-chat/internal/msglog"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Memberships gates subscriptions the same way the HTTP reads are gated.
type Memberships interface {
	IsMember(ctx context.Context, conversationID int, p identity.Participant) (bool, error)
}

// MessageSender is the message log's send path; the hub is just another
// caller of the same engine operation the HTTP layer uses.
type MessageSender interface {
	Send(ctx context.Context, sender identity.Participant, req *msglog.SendRequest) (*msglog.Message, error)
}

// TypingSignals maps typing_start/typing_stop frames onto the presence
// service.
type TypingSignals interface {
	SetTyping(ctx context.Context, conversationID int, p identity.Participant) error
	ClearTyping(ctx context.Context, conversationID int, p identity.Participant) error
}

// Event is the wire format in both directions.
type Event struct {
	Type           string          `json:"type"`
	ConversationID int             `json:"conversation_id,omitempty"`
	Body           string          `json:"body,omitempty"`
	ReplyToID      *int            `json:"reply_to_id,omitempty"`
	Message        *msglog.Message `json:"message,omitempty"`
	Participant    string          `json:"participant,omitempty"`
	Name           string          `json:"name,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type subscription struct {
	client         *Client
	conversationID int
}

type envelope struct {
	conversationID int
	payload        []byte
}

// Hub routes events between websocket clients, and relays through Redis
// pub/sub so clients attached to different instances still hear each
// other. One channel per conversation ("conv:<id>").
type Hub struct {
	clients       map[*Client]bool
	subscriptions map[int]map[*Client]bool

	register     chan *Client
	unregister   chan *Client
	subscribe    chan subscription
	broadcast    chan envelope
	localDeliver chan envelope

	redis    *redis.Client
	members  Memberships
	messages MessageSender
	typing   TypingSignals
	logger   *log.Logger
}

// NewHub builds a hub. redisClient may be nil in dev mode, in which case
// fan-out stays in-process.
func NewHub(redisClient *redis.Client, members Memberships, messages MessageSender, typing TypingSignals, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[int]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan subscription),
		broadcast:     make(chan envelope),
		localDeliver:  make(chan envelope),
		redis:         redisClient,
		members:       members,
		messages:      messages,
		typing:        typing,
		logger:        logger,
	}
}

// SetMessages breaks the construction cycle: the hub is a notifier of the
// message service, and the message service is the hub's send path.
func (h *Hub) SetMessages(messages MessageSender) {
	h.messages = messages
}

// Run owns all hub state; nothing else touches the maps.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for _, subs := range h.subscriptions {
					delete(subs, client)
				}
				close(client.Send)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			subs, ok := h.subscriptions[sub.conversationID]
			if !ok {
				subs = make(map[*Client]bool)
				h.subscriptions[sub.conversationID] = subs
			}
			subs[sub.client] = true

		case env := <-h.broadcast:
			// Outbound: relay through Redis when clustered, otherwise
			// deliver straight to local subscribers.
			if h.redis != nil {
				if err := h.redis.Publish(context.Background(), channelFor(env.conversationID), env.payload).Err(); err != nil {
					h.logger.Warn("redis publish failed, delivering locally", "conversation", env.conversationID, "err", err)
					h.deliver(env)
				}
			} else {
				h.deliver(env)
			}

		case env := <-h.localDeliver:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	for client := range h.subscriptions[env.conversationID] {
		select {
		case client.Send <- env.payload:
		default:
			close(client.Send)
			delete(h.clients, client)
			for _, subs := range h.subscriptions {
				delete(subs, client)
			}
		}
	}
}

// SubscribeToRedis relays conversation channels published by any instance
// into the local delivery loop.
func (h *Hub) SubscribeToRedis() {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.PSubscribe(context.Background(), "conv:*")
	ch := pubsub.Channel()

	for msg := range ch {
		conversationID, ok := conversationFromChannel(msg.Channel)
		if !ok {
			continue
		}
		h.localDeliver <- envelope{conversationID: conversationID, payload: []byte(msg.Payload)}
	}
}

// MessageSent implements msglog.Notifier: every committed send, whether it
// arrived over HTTP or a websocket, is pushed to subscribers.
func (h *Hub) MessageSent(_ context.Context, conversationID int, sender identity.Participant, m *msglog.Message) {
	payload, err := json.Marshal(Event{
		Type:           "message",
		ConversationID: conversationID,
		Participant:    sender.String(),
		Message:        m,
	})
	if err != nil {
		return
	}
	h.broadcast <- envelope{conversationID: conversationID, payload: payload}
}

// TypingChanged pushes a typing on/off event to subscribers.
func (h *Hub) TypingChanged(conversationID int, p identity.Participant, name string, typing bool) {
	eventType := "typing_stop"
	if typing {
		eventType = "typing_start"
	}
	payload, err := json.Marshal(Event{
		Type:           eventType,
		ConversationID: conversationID,
		Participant:    p.String(),
		Name:           name,
	})
	if err != nil {
		return
	}
	h.broadcast <- envelope{conversationID: conversationID, payload: payload}
}

func channelFor(conversationID int) string {
	return fmt.Sprintf("conv:%d", conversationID)
}

func conversationFromChannel(channel string) (int, bool) {
	raw, ok := strings.CutPrefix(channel, "conv:")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// opTimeout bounds engine calls made on behalf of a websocket frame.
const opTimeout = 10 * time.Second

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}
