package notify

import (
	"context"
	"encoding/json"

	"community-chat/internal/identity"

	"github.com/hibiken/asynq"
)

// TaskTypeMessage is the queue task name for deferred message fan-out.
const TaskTypeMessage = "notify:message"

type messageTaskPayload struct {
	ConversationID int    `json:"conversation_id"`
	Sender         string `json:"sender"`
	MessageID      int    `json:"message_id"`
	Body           string `json:"body"`
}

// RegisterTasks binds the fan-out task handler to the worker mux. The
// handler runs the same fan-out the inline path does.
func (d *Dispatcher) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeMessage, func(ctx context.Context, t *asynq.Task) error {
		var p messageTaskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// Malformed payload will never succeed; drop it.
			return nil
		}
		sender, err := identity.Parse(p.Sender)
		if err != nil {
			return nil
		}
		d.fanOut(ctx, p.ConversationID, sender, p.MessageID, p.Body)
		return nil
	})
}
