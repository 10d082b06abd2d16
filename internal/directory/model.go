package directory

import (
	"time"

	"community-chat/internal/identity"
)

// Type classifies a conversation.
type Type string

const (
	TypeDirect    Type = "direct"
	TypeTeam      Type = "team"
	TypeBroadcast Type = "broadcast"
	TypeExercise  Type = "exercise"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDirect, TypeTeam, TypeBroadcast, TypeExercise:
		return true
	}
	return false
}

type Conversation struct {
	ID             int                  `json:"id"`
	Type           Type                 `json:"type"`
	Title          string               `json:"title,omitempty"`
	TeamID         *int                 `json:"team_id,omitempty"`
	ExerciseID     *int                 `json:"exercise_id,omitempty"`
	Creator        identity.Participant `json:"creator"`
	CreatedAt      time.Time            `json:"created_at"`
	LastActivityAt time.Time            `json:"last_activity_at"`
}

// Membership is one participant's enrollment in a conversation.
// Append-only: there is no leave operation.
type Membership struct {
	Participant identity.Participant `json:"participant"`
	JoinedAt    time.Time            `json:"joined_at"`
}

// Member is a membership resolved to a display name for the UI.
type Member struct {
	Participant identity.Participant `json:"participant"`
	DisplayName string               `json:"display_name"`
	JoinedAt    time.Time            `json:"joined_at"`
}

// Summary is what the conversation list renders: the conversation plus its
// resolved members, last-message preview, and the viewer's unread count.
// For direct conversations DisplayName is the other member's name.
type Summary struct {
	Conversation
	Members       []Member   `json:"members"`
	DisplayName   string     `json:"display_name"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

type CreateRequest struct {
	Type         Type                   `json:"type"`
	Participants []identity.Participant `json:"participants"`
	Title        string                 `json:"title,omitempty"`
	TeamID       *int                   `json:"team_id,omitempty"`
	ExerciseID   *int                   `json:"exercise_id,omitempty"`
}

// CreateResult reports the conversation and whether it already existed
// (direct-pair dedup makes create idempotent for direct threads).
type CreateResult struct {
	Conversation *Conversation `json:"conversation"`
	Existing     bool          `json:"existing"`
}

// Preview is the raw list row before member/unread resolution.
type Preview struct {
	Conversation
	LastMessage   string
	LastMessageAt *time.Time
}
