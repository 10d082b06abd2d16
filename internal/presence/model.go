package presence

import (
	"time"

	"community-chat/internal/identity"
)

// Status is a participant's presence state. Whatever is stored, a record
// older than the offline threshold reads back as StatusOffline.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	return s == StatusOnline || s == StatusAway || s == StatusOffline
}

// Record is the stored presence of one participant.
type Record struct {
	Participant identity.Participant `json:"participant"`
	Status      Status               `json:"status"`
	LastSeen    time.Time            `json:"last_seen"`
}

// TypingRow is one live typing indicator within a conversation.
type TypingRow struct {
	Participant identity.Participant
	StartedAt   time.Time
}

// Typist is a typing participant resolved for display.
type Typist struct {
	Participant identity.Participant `json:"participant"`
	DisplayName string               `json:"display_name"`
}
