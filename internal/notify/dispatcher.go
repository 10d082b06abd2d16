package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"community-chat/internal/identity"
	"community-chat/internal/msglog"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"
)

// Store is the dispatcher's persistence surface.
type Store interface {
	InsertNotification(ctx context.Context, n *Notification) (*Notification, error)
	ListForRecipient(ctx context.Context, p identity.Participant, limit, offset int) ([]Notification, error)
}

// MemberLister resolves a conversation's current members.
type MemberLister interface {
	Participants(ctx context.Context, conversationID int) ([]identity.Participant, error)
}

// Resolver turns the sender into a display name for the title line.
type Resolver interface {
	DisplayName(ctx context.Context, p identity.Participant) (string, error)
}

// Dispatcher fans a sent message out as one notification row per
// non-sender member. Everything here is best-effort: the message is
// already committed, so failures are logged and swallowed, never
// propagated back to the send path. With a queue client attached the
// fan-out is deferred to an asynq task instead of running inline.
type Dispatcher struct {
	store    Store
	members  MemberLister
	resolver Resolver
	queue    *asynq.Client
	logger   *log.Logger
}

func NewDispatcher(store Store, members MemberLister, resolver Resolver, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		store:    store,
		members:  members,
		resolver: resolver,
		logger:   logger,
	}
}

// WithQueue switches the dispatcher to queued fan-out.
func (d *Dispatcher) WithQueue(client *asynq.Client) *Dispatcher {
	d.queue = client
	return d
}

// MessageSent implements msglog.Notifier.
func (d *Dispatcher) MessageSent(ctx context.Context, conversationID int, sender identity.Participant, m *msglog.Message) {
	if d.queue != nil {
		payload, err := json.Marshal(messageTaskPayload{
			ConversationID: conversationID,
			Sender:         sender.String(),
			MessageID:      m.ID,
			Body:           m.Body,
		})
		if err == nil {
			task := asynq.NewTask(TaskTypeMessage, payload)
			if _, err := d.queue.EnqueueContext(ctx, task, asynq.Queue("notifications"), asynq.MaxRetry(3)); err == nil {
				return
			}
			d.logger.Warn("notification enqueue failed, falling back to inline fan-out",
				"conversation", conversationID, "message", m.ID)
		}
	}
	d.fanOut(ctx, conversationID, sender, m.ID, m.Body)
}

func (d *Dispatcher) fanOut(ctx context.Context, conversationID int, sender identity.Participant, messageID int, body string) {
	members, err := d.members.Participants(ctx, conversationID)
	if err != nil {
		d.logger.Warn("notification fan-out could not list members",
			"conversation", conversationID, "err", err)
		return
	}

	senderName, err := d.resolver.DisplayName(ctx, sender)
	if err != nil {
		senderName = sender.String()
	}

	for _, member := range members {
		if member.Equal(sender) {
			continue
		}
		convID := conversationID
		n := &Notification{
			Recipient:      member,
			Type:           TypeNewMessage,
			Title:          "New message from " + senderName,
			Body:           truncate(body, 120),
			Link:           fmt.Sprintf("/conversations/%d", conversationID),
			ConversationID: &convID,
		}
		if _, err := d.store.InsertNotification(ctx, n); err != nil {
			// One failed recipient must not stop the rest.
			d.logger.Warn("notification insert failed",
				"conversation", conversationID, "message", messageID,
				"recipient", member, "err", err)
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
