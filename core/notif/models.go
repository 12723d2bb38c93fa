package notif

import "time"

// Notification types
const (
	TypeNewAssignment   = "new_assignment"
	TypeSurveyCompleted = "survey_completed"
)

type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Content   string    `json:"content" db:"content"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}
