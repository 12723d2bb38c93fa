package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/survey"
)

type surveyRepository struct {
	db *DB
}

var _ survey.Repository = (*surveyRepository)(nil) // interface compliance check

func NewSurveyRepository(db *DB) *surveyRepository {
	return &surveyRepository{db: db}
}

func (repo *surveyRepository) CreateSurvey(ctx context.Context, s survey.Survey, exec ...core.DBExecutor) (survey.Survey, error) {
	repo.db.survey.mutex.Lock()
	defer repo.db.survey.mutex.Unlock()

	s.ID = uuid.New().String()
	repo.db.survey.surveys[s.ID] = &s
	return s, nil
}

func (repo *surveyRepository) GetSurvey(ctx context.Context, id string, exec ...core.DBExecutor) (survey.Survey, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	if s, ok := repo.db.survey.surveys[id]; ok {
		return *s, nil
	}
	return survey.Survey{}, survey.ErrNotFound
}

func (repo *surveyRepository) GetSurveyAssignedTo(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (survey.Survey, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	for _, a := range repo.db.survey.assignments {
		if a.SurveyID == surveyID && a.UserID == userID {
			if s, ok := repo.db.survey.surveys[surveyID]; ok {
				return *s, nil
			}
			break
		}
	}
	return survey.Survey{}, survey.ErrNotFound
}

func (repo *surveyRepository) CreateAssignment(ctx context.Context, a survey.Assignment, exec ...core.DBExecutor) (survey.Assignment, error) {
	repo.db.survey.mutex.Lock()
	defer repo.db.survey.mutex.Unlock()

	a.ID = uuid.New().String()
	repo.db.survey.assignments[a.ID] = &a
	return a, nil
}

func (repo *surveyRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (survey.AssignmentDetail, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	a, ok := repo.db.survey.assignments[id]
	if !ok {
		return survey.AssignmentDetail{}, survey.ErrAssignmentNotFound
	}
	return repo.detail(*a), nil
}

// detail joins survey and user names; callers hold the survey lock.
func (repo *surveyRepository) detail(a survey.Assignment) survey.AssignmentDetail {
	d := survey.AssignmentDetail{Assignment: a}
	if s, ok := repo.db.survey.surveys[a.SurveyID]; ok {
		d.SurveyName = s.Name
	}

	repo.db.user.mutex.RLock()
	defer repo.db.user.mutex.RUnlock()
	if usr, ok := repo.db.user.table[a.UserID]; ok {
		d.UserName = usr.Name
		d.UserEmail = usr.Email
	}
	return d
}

func (repo *surveyRepository) GetAssignmentFor(ctx context.Context, surveyID, userID string, exec ...core.DBExecutor) (survey.Assignment, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	for _, a := range repo.db.survey.assignments {
		if a.SurveyID == surveyID && a.UserID == userID {
			return *a, nil
		}
	}
	return survey.Assignment{}, survey.ErrAssignmentNotFound
}

func (repo *surveyRepository) UpdateAssignment(ctx context.Context, a survey.Assignment, exec ...core.DBExecutor) (survey.Assignment, error) {
	repo.db.survey.mutex.Lock()
	defer repo.db.survey.mutex.Unlock()

	if _, ok := repo.db.survey.assignments[a.ID]; !ok {
		return survey.Assignment{}, survey.ErrAssignmentNotFound
	}
	repo.db.survey.assignments[a.ID] = &a
	return a, nil
}

func (repo *surveyRepository) QueryAssignments(ctx context.Context, supervisorID string, status survey.AssignmentStatus, exec ...core.DBExecutor) ([]survey.AssignmentDetail, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	supervised := func(userID string) bool {
		if supervisorID == "" {
			return true
		}
		repo.db.user.mutex.RLock()
		defer repo.db.user.mutex.RUnlock()
		usr, ok := repo.db.user.table[userID]
		return ok && usr.SupervisorID.String == supervisorID
	}

	details := make([]survey.AssignmentDetail, 0)
	for _, a := range repo.db.survey.assignments {
		if status != "" && a.Status != status {
			continue
		}
		if !supervised(a.UserID) {
			continue
		}
		details = append(details, repo.detail(*a))
	}
	sort.Slice(details, func(i, j int) bool { return details[i].CreatedAt.Before(details[j].CreatedAt) })
	return details, nil
}

func (repo *surveyRepository) QueryAssignedSurveys(ctx context.Context, userID string, exec ...core.DBExecutor) ([]survey.AssignedSurvey, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	assigned := make([]survey.AssignedSurvey, 0)
	for _, a := range repo.db.survey.assignments {
		if a.UserID != userID {
			continue
		}
		as := survey.AssignedSurvey{
			AssignmentID: a.ID,
			SurveyID:     a.SurveyID,
			Occurrence:   a.Occurrence,
			Status:       a.Status,
			StartDate:    a.StartDate,
			DueDate:      a.DueDate,
		}
		if s, ok := repo.db.survey.surveys[a.SurveyID]; ok {
			as.SurveyName = s.Name
			as.Description = s.Description
		}
		assigned = append(assigned, as)
	}
	sort.Slice(assigned, func(i, j int) bool { return assigned[i].StartDate.Before(assigned[j].StartDate) })
	return assigned, nil
}

func (repo *surveyRepository) CreateSubmission(ctx context.Context, sub survey.Submission, exec ...core.DBExecutor) (survey.Submission, error) {
	repo.db.survey.mutex.Lock()
	defer repo.db.survey.mutex.Unlock()

	sub.ID = uuid.New().String()
	repo.db.survey.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *surveyRepository) GetSubmissionDetail(ctx context.Context, id string, exec ...core.DBExecutor) (survey.SubmissionDetail, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	sub, ok := repo.db.survey.submissions[id]
	if !ok {
		return survey.SubmissionDetail{}, survey.ErrSubmissionNotFound
	}
	detail := survey.SubmissionDetail{
		ID:          sub.ID,
		Status:      sub.Status,
		SubmittedAt: sub.CreatedAt,
		Data:        sub.Data,
	}
	if a, ok := repo.db.survey.assignments[sub.AssignmentID]; ok {
		if s, ok := repo.db.survey.surveys[a.SurveyID]; ok {
			detail.SurveyName = s.Name
		}
		repo.db.user.mutex.RLock()
		if usr, ok := repo.db.user.table[a.UserID]; ok {
			detail.ParticipantName = usr.Name
			detail.ParticipantEmail = usr.Email
		}
		repo.db.user.mutex.RUnlock()
	}
	return detail, nil
}

func (repo *surveyRepository) QuerySurveySubmissions(ctx context.Context, surveyID string, exec ...core.DBExecutor) ([]survey.SubmissionWithOwner, error) {
	repo.db.survey.mutex.RLock()
	defer repo.db.survey.mutex.RUnlock()

	subs := make([]survey.SubmissionWithOwner, 0)
	for _, sub := range repo.db.survey.submissions {
		a, ok := repo.db.survey.assignments[sub.AssignmentID]
		if !ok || a.SurveyID != surveyID {
			continue
		}
		subs = append(subs, survey.SubmissionWithOwner{Submission: *sub, UserID: a.UserID})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}
