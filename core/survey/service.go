package survey

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/notif"
	"github.com/trezcool/ustawi/core/user"
)

var (
	// errors
	ErrNotFound           = errors.New("survey not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrSubmissionNotFound = errors.New("submission not found")
)

type (
	Repository interface {
		CreateSurvey(ctx context.Context, s Survey, exec ...core.DBExecutor) (Survey, error)
		GetSurvey(ctx context.Context, id string, exec ...core.DBExecutor) (Survey, error)
		// GetSurveyAssignedTo returns the survey only if it is assigned to userID.
		GetSurveyAssignedTo(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (Survey, error)

		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (AssignmentDetail, error)
		GetAssignmentFor(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		// QueryAssignments lists assignments joined with survey and user names.
		// A non-empty supervisorID restricts to that supervisor's participants;
		// a non-empty status restricts to assignments in that status.
		QueryAssignments(ctx context.Context, supervisorID string, status AssignmentStatus, exec ...core.DBExecutor) ([]AssignmentDetail, error)
		QueryAssignedSurveys(ctx context.Context, userID string, exec ...core.DBExecutor) ([]AssignedSurvey, error)

		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmissionDetail(ctx context.Context, id string, exec ...core.DBExecutor) (SubmissionDetail, error)
		// QuerySurveySubmissions returns all submissions of a survey along with
		// the submitting participant's ID.
		QuerySurveySubmissions(ctx context.Context, surveyID string, exec ...core.DBExecutor) ([]SubmissionWithOwner, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.Actor, ns NewSurvey) (Survey, error)
		GetByID(ctx context.Context, actor user.Actor, id string) (Survey, error)
		Assign(ctx context.Context, actor user.Actor, na NewAssignment) (Assignment, error)
		UpdateAssignment(ctx context.Context, actor user.Actor, id string, ua UpdateAssignment) (Assignment, error)
		GetAssignment(ctx context.Context, actor user.Actor, id string) (AssignmentDetail, error)
		ListAssignments(ctx context.Context, actor user.Actor) ([]AssignmentDetail, error)
		ListCompleted(ctx context.Context, actor user.Actor) ([]AssignmentDetail, error)
		ListAssigned(ctx context.Context, actor user.Actor) ([]AssignedSurvey, error)
		Submit(ctx context.Context, actor user.Actor, ns NewSubmission) (Submission, error)
		GetSubmission(ctx context.Context, actor user.Actor, id string) (SubmissionDetail, error)
		Results(ctx context.Context, actor user.Actor, surveyID string) (Aggregation, error)
		Export(ctx context.Context, actor user.Actor, surveyID string, params ExportParams) (ExportFile, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		userRepo  user.Repository
		notifRepo notif.Repository
		broker    *notif.Broker
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(db core.DB, repo Repository, userRepo user.Repository, notifRepo notif.Repository, broker *notif.Broker) *service {
	return &service{
		db:        db,
		repo:      repo,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		broker:    broker,
	}
}

func (svc *service) Create(ctx context.Context, actor user.Actor, ns NewSurvey) (Survey, error) {
	if err := actor.Require(user.OpSurveyCreate); err != nil {
		return Survey{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateSurvey(ctx, Survey{
		Name:        ns.Name,
		Description: ns.Description,
		Definition:  ns.Definition,
		CreatorID:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// GetByID returns a survey. Participants can only see surveys assigned to
// them; anything else is reported as not found.
func (svc *service) GetByID(ctx context.Context, actor user.Actor, id string) (Survey, error) {
	if actor.IsParticipant() {
		return svc.repo.GetSurveyAssignedTo(ctx, id, actor.ID)
	}
	return svc.repo.GetSurvey(ctx, id)
}

// Assign links a survey to a participant and notifies them, atomically.
func (svc *service) Assign(ctx context.Context, actor user.Actor, na NewAssignment) (Assignment, error) {
	if err := actor.Require(user.OpSurveyAssign); err != nil {
		return Assignment{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	a, err := svc.repo.CreateAssignment(ctx, Assignment{
		SurveyID:   na.SurveyID,
		UserID:     na.UserID,
		Occurrence: na.Occurrence,
		StartDate:  na.StartDate,
		EndDate:    na.EndDate,
		DueDate:    na.DueDate,
		Status:     StatusNotStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, tx)
	if err != nil {
		return Assignment{}, err
	}

	// an unknown survey aborts the whole assignment
	s, err := svc.repo.GetSurvey(ctx, na.SurveyID, tx)
	if err != nil {
		return Assignment{}, err
	}

	n, err := svc.notifRepo.CreateNotification(ctx, notif.Notification{
		UserID:    na.UserID,
		Type:      notif.TypeNewAssignment,
		Content:   fmt.Sprintf("You have been assigned a new survey: %s", s.Name),
		CreatedAt: now,
	}, tx)
	if err != nil {
		return Assignment{}, err
	}

	if err = tx.Commit(); err != nil {
		return Assignment{}, errors.Wrap(err, "committing transaction")
	}
	svc.broker.Publish(n)
	return a, nil
}

func (svc *service) UpdateAssignment(ctx context.Context, actor user.Actor, id string, ua UpdateAssignment) (Assignment, error) {
	if err := actor.Require(user.OpAssignmentUpdate); err != nil {
		return Assignment{}, err
	}

	detail, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	a := detail.Assignment

	if ua.Occurrence != "" {
		a.Occurrence = ua.Occurrence
	}
	if !ua.StartDate.IsZero() {
		a.StartDate = ua.StartDate
	}
	if ua.EndDate.Valid {
		a.EndDate = ua.EndDate
	}
	if ua.DueDate.Valid {
		a.DueDate = ua.DueDate
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *service) GetAssignment(ctx context.Context, actor user.Actor, id string) (AssignmentDetail, error) {
	if err := actor.Require(user.OpAssignmentList); err != nil {
		return AssignmentDetail{}, err
	}
	return svc.repo.GetAssignment(ctx, id)
}

// ListAssignments returns all assignments for admins and only their own
// participants' assignments for social workers.
func (svc *service) ListAssignments(ctx context.Context, actor user.Actor) ([]AssignmentDetail, error) {
	return svc.listAssignments(ctx, actor, "")
}

func (svc *service) ListCompleted(ctx context.Context, actor user.Actor) ([]AssignmentDetail, error) {
	return svc.listAssignments(ctx, actor, StatusCompleted)
}

func (svc *service) listAssignments(ctx context.Context, actor user.Actor, status AssignmentStatus) ([]AssignmentDetail, error) {
	if err := actor.Require(user.OpAssignmentList); err != nil {
		return nil, err
	}
	supervisorID := ""
	if actor.IsSocialWorker() {
		supervisorID = actor.ID
	}
	return svc.repo.QueryAssignments(ctx, supervisorID, status)
}

func (svc *service) ListAssigned(ctx context.Context, actor user.Actor) ([]AssignedSurvey, error) {
	if !actor.IsParticipant() {
		return nil, core.ErrPermissionDenied
	}
	return svc.repo.QueryAssignedSurveys(ctx, actor.ID)
}

// Submit records a participant's answers and advances the assignment status,
// atomically. A completed submission notifies the participant's supervisor
// when one is set; participants without a supervisor complete silently.
func (svc *service) Submit(ctx context.Context, actor user.Actor, ns NewSubmission) (Submission, error) {
	if !actor.IsParticipant() {
		return Submission{}, core.ErrPermissionDenied
	}

	a, err := svc.repo.GetAssignmentFor(ctx, ns.SurveyID, actor.ID)
	if err != nil {
		return Submission{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Submission{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	sub, err := svc.repo.CreateSubmission(ctx, Submission{
		AssignmentID: a.ID,
		Data:         ns.Data,
		Status:       ns.Status,
		CreatedAt:    now,
	}, tx)
	if err != nil {
		return Submission{}, err
	}

	// status only ever moves forward
	newStatus := StatusInProgress
	if ns.Status == SubmissionCompleted {
		newStatus = StatusCompleted
	}
	if advanced := a.Status.Advance(newStatus); advanced != a.Status {
		a.Status = advanced
		a.UpdatedAt = now
		if _, err = svc.repo.UpdateAssignment(ctx, a, tx); err != nil {
			return Submission{}, err
		}
	}

	var completedNotif *notif.Notification
	if ns.Status == SubmissionCompleted {
		usr, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: actor.ID}, tx)
		if err != nil {
			return Submission{}, err
		}
		if usr.SupervisorID.Valid {
			s, err := svc.repo.GetSurvey(ctx, ns.SurveyID, tx)
			if err != nil {
				return Submission{}, err
			}
			n, err := svc.notifRepo.CreateNotification(ctx, notif.Notification{
				UserID:    usr.SupervisorID.String,
				Type:      notif.TypeSurveyCompleted,
				Content:   fmt.Sprintf("%s has completed the survey: %s", usr.Name, s.Name),
				CreatedAt: now,
			}, tx)
			if err != nil {
				return Submission{}, err
			}
			completedNotif = &n
		}
	}

	if err = tx.Commit(); err != nil {
		return Submission{}, errors.Wrap(err, "committing transaction")
	}
	if completedNotif != nil {
		svc.broker.Publish(*completedNotif)
	}
	return sub, nil
}

func (svc *service) GetSubmission(ctx context.Context, actor user.Actor, id string) (SubmissionDetail, error) {
	if err := actor.Require(user.OpSubmissionList); err != nil {
		return SubmissionDetail{}, err
	}

	detail, err := svc.repo.GetSubmissionDetail(ctx, id)
	if err != nil {
		return SubmissionDetail{}, err
	}

	payload := decodePayload(detail.Data.JSON)
	questions := make([]string, 0, len(payload))
	for q := range payload {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	detail.Answers = make([]AnswerPair, 0, len(questions))
	for _, q := range questions {
		detail.Answers = append(detail.Answers, AnswerPair{Question: q, Answer: stringifyCell(payload[q])})
	}
	return detail, nil
}

func (svc *service) Results(ctx context.Context, actor user.Actor, surveyID string) (Aggregation, error) {
	if err := actor.Require(user.OpSurveyResults); err != nil {
		return Aggregation{}, err
	}
	if _, err := svc.repo.GetSurvey(ctx, surveyID); err != nil {
		return Aggregation{}, err
	}

	subs, err := svc.repo.QuerySurveySubmissions(ctx, surveyID)
	if err != nil {
		return Aggregation{}, err
	}
	return Aggregate(subs), nil
}

func (svc *service) Export(ctx context.Context, actor user.Actor, surveyID string, params ExportParams) (ExportFile, error) {
	if err := actor.Require(user.OpSurveyExport); err != nil {
		return ExportFile{}, err
	}

	s, err := svc.repo.GetSurvey(ctx, surveyID)
	if err != nil {
		return ExportFile{}, err
	}
	subs, err := svc.repo.QuerySurveySubmissions(ctx, surveyID)
	if err != nil {
		return ExportFile{}, err
	}

	var users []user.User
	if len(params.Strata) > 0 && len(subs) > 0 {
		ids := make([]string, 0, len(subs))
		seen := make(map[string]bool, len(subs))
		for _, sub := range subs {
			if !seen[sub.UserID] {
				seen[sub.UserID] = true
				ids = append(ids, sub.UserID)
			}
		}
		if users, err = svc.userRepo.QueryUsersByID(ctx, ids); err != nil {
			return ExportFile{}, err
		}
	}

	return Export(s, subs, users, params)
}
