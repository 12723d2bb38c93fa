package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/survey"
)

const (
	surveyColumns = `id, name, description, definition, creator_id, created_at, updated_at`

	assignmentDetailSelect = `
		SELECT a.id, a.survey_id, a.user_id, a.occurrence, a.start_date, a.end_date, a.due_date,
		       a.status, a.created_at, a.updated_at,
		       s.name AS survey_name, u.name AS user_name, u.email AS user_email
		FROM survey_assignment a
		JOIN survey s ON s.id = a.survey_id
		JOIN "user" u ON u.id = a.user_id`
)

type surveyRepository struct {
	db core.DB
}

var _ survey.Repository = (*surveyRepository)(nil) // interface compliance check

func NewSurveyRepository(db core.DB) *surveyRepository {
	return &surveyRepository{db: db}
}

func (repo *surveyRepository) CreateSurvey(ctx context.Context, s survey.Survey, exec ...core.DBExecutor) (survey.Survey, error) {
	ex := getExec(repo.db, exec)

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO survey (` + surveyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := ex.ExecContext(ctx, query, s.ID, s.Name, s.Description, s.Definition, s.CreatorID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return survey.Survey{}, errors.Wrap(err, "creating survey")
	}
	return s, nil
}

func (repo *surveyRepository) GetSurvey(ctx context.Context, id string, exec ...core.DBExecutor) (survey.Survey, error) {
	ex := getExec(repo.db, exec)

	var s survey.Survey
	query := `SELECT ` + surveyColumns + ` FROM survey WHERE id = $1`
	if err := ex.GetContext(ctx, &s, query, id); err != nil {
		return survey.Survey{}, trapNoRowsErr(err, survey.ErrNotFound)
	}
	return s, nil
}

func (repo *surveyRepository) GetSurveyAssignedTo(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (survey.Survey, error) {
	ex := getExec(repo.db, exec)

	var s survey.Survey
	query := `
		SELECT s.id, s.name, s.description, s.definition, s.creator_id, s.created_at, s.updated_at
		FROM survey s
		JOIN survey_assignment a ON a.survey_id = s.id
		WHERE s.id = $1 AND a.user_id = $2
		LIMIT 1`
	if err := ex.GetContext(ctx, &s, query, surveyID, userID); err != nil {
		return survey.Survey{}, trapNoRowsErr(err, survey.ErrNotFound)
	}
	return s, nil
}

func (repo *surveyRepository) CreateAssignment(ctx context.Context, a survey.Assignment, exec ...core.DBExecutor) (survey.Assignment, error) {
	ex := getExec(repo.db, exec)

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `
		INSERT INTO survey_assignment (id, survey_id, user_id, occurrence, start_date, end_date, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := ex.ExecContext(ctx, query,
		a.ID, a.SurveyID, a.UserID, a.Occurrence, a.StartDate, a.EndDate, a.DueDate, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isPqError(err, foreignKeyViolation) {
			return survey.Assignment{}, survey.ErrNotFound
		}
		return survey.Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return a, nil
}

func (repo *surveyRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (survey.AssignmentDetail, error) {
	ex := getExec(repo.db, exec)

	var detail survey.AssignmentDetail
	query := assignmentDetailSelect + ` WHERE a.id = $1`
	if err := ex.GetContext(ctx, &detail, query, id); err != nil {
		return survey.AssignmentDetail{}, trapNoRowsErr(err, survey.ErrAssignmentNotFound)
	}
	return detail, nil
}

func (repo *surveyRepository) GetAssignmentFor(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (survey.Assignment, error) {
	ex := getExec(repo.db, exec)

	var a survey.Assignment
	query := `
		SELECT id, survey_id, user_id, occurrence, start_date, end_date, due_date, status, created_at, updated_at
		FROM survey_assignment
		WHERE survey_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1`
	if err := ex.GetContext(ctx, &a, query, surveyID, userID); err != nil {
		return survey.Assignment{}, trapNoRowsErr(err, survey.ErrAssignmentNotFound)
	}
	return a, nil
}

func (repo *surveyRepository) UpdateAssignment(ctx context.Context, a survey.Assignment, exec ...core.DBExecutor) (survey.Assignment, error) {
	ex := getExec(repo.db, exec)

	query := `
		UPDATE survey_assignment
		SET occurrence = $1, start_date = $2, end_date = $3, due_date = $4, status = $5, updated_at = $6
		WHERE id = $7`
	res, err := ex.ExecContext(ctx, query, a.Occurrence, a.StartDate, a.EndDate, a.DueDate, a.Status, a.UpdatedAt, a.ID)
	if err != nil {
		return survey.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return survey.Assignment{}, survey.ErrAssignmentNotFound
	}
	return a, nil
}

func (repo *surveyRepository) QueryAssignments(ctx context.Context, supervisorID string, status survey.AssignmentStatus, exec ...core.DBExecutor) ([]survey.AssignmentDetail, error) {
	ex := getExec(repo.db, exec)

	var (
		where []string
		args  []interface{}
	)
	if supervisorID != "" {
		args = append(args, supervisorID)
		where = append(where, fmt.Sprintf("u.supervisor_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}

	query := assignmentDetailSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC"

	var details []survey.AssignmentDetail
	if err := ex.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return details, nil
}

func (repo *surveyRepository) QueryAssignedSurveys(ctx context.Context, userID string, exec ...core.DBExecutor) ([]survey.AssignedSurvey, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT a.id AS assignment_id, s.id AS survey_id, s.name AS survey_name, s.description,
		       a.occurrence, a.status, a.start_date, a.due_date
		FROM survey_assignment a
		JOIN survey s ON s.id = a.survey_id
		WHERE a.user_id = $1
		ORDER BY a.start_date, a.created_at`

	var assigned []survey.AssignedSurvey
	if err := ex.SelectContext(ctx, &assigned, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying assigned surveys")
	}
	return assigned, nil
}

func (repo *surveyRepository) CreateSubmission(ctx context.Context, sub survey.Submission, exec ...core.DBExecutor) (survey.Submission, error) {
	ex := getExec(repo.db, exec)

	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	query := `
		INSERT INTO survey_submission (id, assignment_id, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := ex.ExecContext(ctx, query, sub.ID, sub.AssignmentID, sub.Data, sub.Status, sub.CreatedAt)
	if err != nil {
		if isPqError(err, foreignKeyViolation) {
			return survey.Submission{}, survey.ErrAssignmentNotFound
		}
		return survey.Submission{}, errors.Wrap(err, "creating submission")
	}
	return sub, nil
}

func (repo *surveyRepository) GetSubmissionDetail(ctx context.Context, id string, exec ...core.DBExecutor) (survey.SubmissionDetail, error) {
	ex := getExec(repo.db, exec)

	var detail survey.SubmissionDetail
	query := `
		SELECT sub.id, s.name AS survey_name, u.name AS participant_name, u.email AS participant_email,
		       sub.status, sub.created_at AS submitted_at, sub.data
		FROM survey_submission sub
		JOIN survey_assignment a ON a.id = sub.assignment_id
		JOIN survey s ON s.id = a.survey_id
		JOIN "user" u ON u.id = a.user_id
		WHERE sub.id = $1`
	if err := ex.GetContext(ctx, &detail, query, id); err != nil {
		return survey.SubmissionDetail{}, trapNoRowsErr(err, survey.ErrSubmissionNotFound)
	}
	return detail, nil
}

func (repo *surveyRepository) QuerySurveySubmissions(ctx context.Context, surveyID string, exec ...core.DBExecutor) ([]survey.SubmissionWithOwner, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT sub.id, sub.assignment_id, sub.data, sub.status, sub.created_at, a.user_id
		FROM survey_submission sub
		JOIN survey_assignment a ON a.id = sub.assignment_id
		WHERE a.survey_id = $1
		ORDER BY sub.created_at`

	var subs []survey.SubmissionWithOwner
	if err := ex.SelectContext(ctx, &subs, query, surveyID); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}
