package notify

import (
	"time"

	"community-chat/internal/identity"
)

const TypeNewMessage = "new_message"

type Notification struct {
	ID             int                  `json:"id"`
	Recipient      identity.Participant `json:"recipient"`
	Type           string               `json:"type"`
	Title          string               `json:"title"`
	Body           string               `json:"body"`
	Link           string               `json:"link"`
	ConversationID *int                 `json:"conversation_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
