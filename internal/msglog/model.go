package msglog

import (
	"time"

	"community-chat/internal/identity"
)

type Message struct {
	ID             int                  `json:"id"`
	ConversationID int                  `json:"conversation_id"`
	Sender         identity.Participant `json:"sender"`
	SenderName     string               `json:"sender_name,omitempty"`
	Body           string               `json:"body"`
	ReplyToID      *int                 `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	EditedAt       *time.Time           `json:"edited_at,omitempty"`
	DeletedAt      *time.Time           `json:"-"`
}

// SearchHit carries enough conversation context for the caller to link
// back to the thread the match came from.
type SearchHit struct {
	Message
	ConversationType  string `json:"conversation_type"`
	ConversationTitle string `json:"conversation_title,omitempty"`
}

type SendRequest struct {
	ConversationID int    `json:"conversation_id"`
	Body           string `json:"body"`
	ReplyToID      *int   `json:"reply_to_id,omitempty"`
}

type EditRequest struct {
	Body string `json:"body"`
}
