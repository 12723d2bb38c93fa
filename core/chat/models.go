package chat

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ustawi/core"
)

type (
	Conversation struct {
		ID             string    `json:"id" db:"id"`
		CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
		ParticipantIDs []string  `json:"participant_ids" db:"-"`
	}

	Message struct {
		ID             string    `json:"id" db:"id"`
		ConversationID string    `json:"conversation_id" db:"conversation_id"`
		SenderID       string    `json:"sender_id" db:"sender_id"`
		Content        string    `json:"content" db:"content"`
		CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
	}
)

// Payloads

type NewConversation struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,required"`
}

func (nc NewConversation) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

type NewMessage struct {
	Content string `json:"content" validate:"required"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}
