package survey

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ustawi/core"
)

// Occurrence describes how often an assigned survey is expected to be taken.
// It is carried as metadata for the frontend; the backend never expands it
// into concrete occurrences.
type Occurrence string

const (
	OccurrenceOnce    Occurrence = "once"
	OccurrenceDaily   Occurrence = "daily"
	OccurrenceWeekly  Occurrence = "weekly"
	OccurrenceMonthly Occurrence = "monthly"
)

// Assignment statuses; they only ever advance in this order.
type AssignmentStatus string

const (
	StatusNotStarted AssignmentStatus = "not_started"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusCompleted  AssignmentStatus = "completed"
)

var statusRank = map[AssignmentStatus]int{
	StatusNotStarted: 0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

// Advance returns the further along of s and next.
func (s AssignmentStatus) Advance(next AssignmentStatus) AssignmentStatus {
	if statusRank[next] > statusRank[s] {
		return next
	}
	return s
}

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionCompleted  SubmissionStatus = "completed"
)

type (
	Survey struct {
		ID          string    `json:"id" db:"id"`
		Name        string    `json:"name" db:"name"`
		Description string    `json:"description" db:"description"`
		Definition  null.JSON `json:"definition" db:"definition"` // opaque question blob
		CreatorID   string    `json:"creator_id" db:"creator_id"`
		CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
		UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
	}

	Assignment struct {
		ID         string           `json:"id" db:"id"`
		SurveyID   string           `json:"survey_id" db:"survey_id"`
		UserID     string           `json:"user_id" db:"user_id"`
		Occurrence Occurrence       `json:"occurrence" db:"occurrence"`
		StartDate  time.Time        `json:"start_date" db:"start_date"`
		EndDate    null.Time        `json:"end_date" db:"end_date"`
		DueDate    null.Time        `json:"due_date" db:"due_date"`
		Status     AssignmentStatus `json:"status" db:"status"`
		CreatedAt  time.Time        `json:"created_at" db:"created_at"` // UTC
		UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"` // UTC
	}

	// AssignmentDetail is an Assignment joined with the survey and assignee names.
	AssignmentDetail struct {
		Assignment
		SurveyName string `json:"survey_name" db:"survey_name"`
		UserName   string `json:"user_name" db:"user_name"`
		UserEmail  string `json:"user_email" db:"user_email"`
	}

	// AssignedSurvey is a participant's view of one of their assignments.
	AssignedSurvey struct {
		AssignmentID string           `json:"assignment_id" db:"assignment_id"`
		SurveyID     string           `json:"survey_id" db:"survey_id"`
		SurveyName   string           `json:"survey_name" db:"survey_name"`
		Description  string           `json:"description" db:"description"`
		Occurrence   Occurrence       `json:"occurrence" db:"occurrence"`
		Status       AssignmentStatus `json:"status" db:"status"`
		StartDate    time.Time        `json:"start_date" db:"start_date"`
		DueDate      null.Time        `json:"due_date" db:"due_date"`
	}

	Submission struct {
		ID           string           `json:"id" db:"id"`
		AssignmentID string           `json:"assignment_id" db:"assignment_id"`
		Data         null.JSON        `json:"data" db:"data"` // answers keyed by question
		Status       SubmissionStatus `json:"status" db:"status"`
		CreatedAt    time.Time        `json:"created_at" db:"created_at"` // UTC
	}

	// SubmissionWithOwner carries the submitting participant's ID alongside
	// the submission; results aggregation and export key strata off it.
	SubmissionWithOwner struct {
		Submission
		UserID string `json:"user_id" db:"user_id"`
	}

	// SubmissionDetail is a staff view of a single submission.
	SubmissionDetail struct {
		ID               string           `json:"id" db:"id"`
		SurveyName       string           `json:"survey_name" db:"survey_name"`
		ParticipantName  string           `json:"participant_name" db:"participant_name"`
		ParticipantEmail string           `json:"participant_email" db:"participant_email"`
		Status           SubmissionStatus `json:"status" db:"status"`
		SubmittedAt      time.Time        `json:"submitted_at" db:"submitted_at"`
		Data             null.JSON        `json:"-" db:"data"`
		Answers          []AnswerPair     `json:"answers" db:"-"`
	}

	AnswerPair struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
)

// Payloads

type NewSurvey struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Definition  null.JSON `json:"definition" validate:"required"`
}

func (ns *NewSurvey) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	return validate.Struct(ns)
}

type NewAssignment struct {
	SurveyID   string     `json:"survey_id" validate:"required"`
	UserID     string     `json:"user_id" validate:"required"`
	Occurrence Occurrence `json:"occurrence" validate:"required,oneof=once daily weekly monthly"`
	StartDate  time.Time  `json:"start_date" validate:"required"`
	EndDate    null.Time  `json:"end_date"`
	DueDate    null.Time  `json:"due_date"`
}

func (na NewAssignment) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

type UpdateAssignment struct {
	Occurrence Occurrence `json:"occurrence" validate:"omitempty,oneof=once daily weekly monthly"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    null.Time  `json:"end_date"`
	DueDate    null.Time  `json:"due_date"`
}

func (ua UpdateAssignment) Validate(validate *validator.Validate) error {
	return validate.Struct(ua)
}

type NewSubmission struct {
	SurveyID string           `json:"survey_id" validate:"required"`
	Data     null.JSON        `json:"data" validate:"required"`
	Status   SubmissionStatus `json:"status" validate:"required,oneof=in_progress completed"`
}

func (ns NewSubmission) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

// Export formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

type ExportParams struct {
	Columns []string `json:"columns"`
	Strata  []string `json:"strata"`
	Format  string   `json:"format" validate:"required,oneof=xlsx csv"`
}

func (ep *ExportParams) Validate(validate *validator.Validate) error {
	for i, col := range ep.Columns {
		ep.Columns[i] = core.CleanString(col)
	}
	for i, s := range ep.Strata {
		ep.Strata[i] = core.CleanString(s)
	}
	return validate.Struct(ep)
}

// ExportFile is a rendered results document ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
