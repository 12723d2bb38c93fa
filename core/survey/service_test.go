package survey_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/notif"
	"github.com/trezcool/ustawi/core/survey"
	"github.com/trezcool/ustawi/core/user"
	inmemdb "github.com/trezcool/ustawi/storage/database/inmem"
)

type testEnv struct {
	db        *inmemdb.DB
	userRepo  user.Repository
	notifRepo notif.Repository
	broker    *notif.Broker
	svc       survey.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := inmemdb.Open()
	require.NoError(t, err)

	userRepo := inmemdb.NewUserRepository(db)
	notifRepo := inmemdb.NewNotificationRepository(db)
	broker := notif.NewBroker()
	svc := survey.NewService(db, inmemdb.NewSurveyRepository(db), userRepo, notifRepo, broker)
	return &testEnv{
		db:        db,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		broker:    broker,
		svc:       svc,
	}
}

func (env *testEnv) createUser(t *testing.T, name string, role user.Role, supervisorID string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     name + "@test.test",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if supervisorID != "" {
		usr.SupervisorID = null.StringFrom(supervisorID)
	}
	usr, err := env.userRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createSurvey(t *testing.T, actor user.Actor, name string) survey.Survey {
	t.Helper()
	s, err := env.svc.Create(context.Background(), actor, survey.NewSurvey{
		Name:       name,
		Definition: null.JSONFrom([]byte(`{"questions": [{"key": "q1"}]}`)),
	})
	require.NoError(t, err)
	return s
}

func (env *testEnv) assign(t *testing.T, actor user.Actor, surveyID, userID string) survey.Assignment {
	t.Helper()
	a, err := env.svc.Assign(context.Background(), actor, survey.NewAssignment{
		SurveyID:   surveyID,
		UserID:     userID,
		Occurrence: survey.OccurrenceOnce,
		StartDate:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return a
}

func TestServiceCreateRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	part := env.createUser(t, "part", user.RoleParticipant, "")
	_, err := env.svc.Create(ctx, part.Actor(), survey.NewSurvey{Name: "x", Definition: null.JSONFrom([]byte(`{}`))})
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	assert.Equal(t, sw.ID, s.CreatorID)
	assert.NotEmpty(t, s.ID)
}

func TestServiceGetByIDScopesParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")

	// not assigned yet
	_, err := env.svc.GetByID(ctx, part.Actor(), s.ID)
	assert.Equal(t, survey.ErrNotFound, errors.Cause(err))

	env.assign(t, sw.Actor(), s.ID, part.ID)

	got, err := env.svc.GetByID(ctx, part.Actor(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestServiceAssignNotifiesAssignee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")

	feed, cancel := env.broker.Subscribe(part.ID)
	defer cancel()

	a := env.assign(t, sw.Actor(), s.ID, part.ID)
	assert.Equal(t, survey.StatusNotStarted, a.Status)

	notifs, err := env.notifRepo.QueryUnread(ctx, part.ID)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notif.TypeNewAssignment, notifs[0].Type)
	assert.Contains(t, notifs[0].Content, "Wellbeing")

	select {
	case n := <-feed:
		assert.Equal(t, notifs[0].ID, n.ID)
	case <-time.After(time.Second):
		t.Fatal("notification not published to broker")
	}
}

func TestServiceAssignUnknownSurvey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)

	_, err := env.svc.Assign(ctx, sw.Actor(), survey.NewAssignment{
		SurveyID:   "ffffffff-0000-0000-0000-000000000000",
		UserID:     part.ID,
		Occurrence: survey.OccurrenceOnce,
		StartDate:  time.Now().UTC(),
	})
	assert.Equal(t, survey.ErrNotFound, errors.Cause(err))

	// the aborted assignment was rolled back and nothing was notified
	assigned, err := env.svc.ListAssigned(ctx, part.Actor())
	require.NoError(t, err)
	assert.Empty(t, assigned)

	all, err := env.svc.ListAssignments(ctx, sw.Actor())
	require.NoError(t, err)
	assert.Empty(t, all)

	notifs, err := env.notifRepo.QueryUnread(ctx, part.ID)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestServiceSubmitAdvancesStatusMonotonically(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	a := env.assign(t, sw.Actor(), s.ID, part.ID)

	submit := func(status survey.SubmissionStatus) {
		t.Helper()
		_, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
			SurveyID: s.ID,
			Data:     null.JSONFrom([]byte(`{"q1": "yes"}`)),
			Status:   status,
		})
		require.NoError(t, err)
	}
	assignmentStatus := func() survey.AssignmentStatus {
		t.Helper()
		detail, err := env.svc.GetAssignment(ctx, sw.Actor(), a.ID)
		require.NoError(t, err)
		return detail.Status
	}

	submit(survey.SubmissionInProgress)
	assert.Equal(t, survey.StatusInProgress, assignmentStatus())

	submit(survey.SubmissionCompleted)
	assert.Equal(t, survey.StatusCompleted, assignmentStatus())

	// a later in-progress submission never regresses the status
	submit(survey.SubmissionInProgress)
	assert.Equal(t, survey.StatusCompleted, assignmentStatus())
}

func TestServiceSubmitNotifiesSupervisor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	env.assign(t, sw.Actor(), s.ID, part.ID)

	feed, cancel := env.broker.Subscribe(sw.ID)
	defer cancel()

	_, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
		SurveyID: s.ID,
		Data:     null.JSONFrom([]byte(`{"q1": "yes"}`)),
		Status:   survey.SubmissionCompleted,
	})
	require.NoError(t, err)

	notifs, err := env.notifRepo.QueryUnread(ctx, sw.ID)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notif.TypeSurveyCompleted, notifs[0].Type)
	assert.Contains(t, notifs[0].Content, part.Name)

	select {
	case <-feed:
	case <-time.After(time.Second):
		t.Fatal("notification not published to broker")
	}
}

func TestServiceSubmitWithoutSupervisor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "admin", user.RoleAdmin, "")
	part := env.createUser(t, "part", user.RoleParticipant, "") // no supervisor
	s := env.createSurvey(t, admin.Actor(), "Wellbeing")
	env.assign(t, admin.Actor(), s.ID, part.ID)

	_, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
		SurveyID: s.ID,
		Data:     null.JSONFrom([]byte(`{"q1": "yes"}`)),
		Status:   survey.SubmissionCompleted,
	})
	require.NoError(t, err)

	// completes silently; the assignment notification is still there but
	// no completion notification was added for anyone
	notifs, err := env.notifRepo.QueryUnread(ctx, part.ID)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, notif.TypeNewAssignment, notifs[0].Type)

	notifs, err = env.notifRepo.QueryUnread(ctx, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, notifs)
}

func TestServiceSubmitUnassignedSurvey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")

	_, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
		SurveyID: s.ID,
		Data:     null.JSONFrom([]byte(`{"q1": "yes"}`)),
		Status:   survey.SubmissionInProgress,
	})
	assert.Equal(t, survey.ErrAssignmentNotFound, errors.Cause(err))
}

func TestServiceListAssignmentsScoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "admin", user.RoleAdmin, "")
	sw1 := env.createUser(t, "sw1", user.RoleSocialWorker, "")
	sw2 := env.createUser(t, "sw2", user.RoleSocialWorker, "")
	part1 := env.createUser(t, "part1", user.RoleParticipant, sw1.ID)
	part2 := env.createUser(t, "part2", user.RoleParticipant, sw2.ID)
	s := env.createSurvey(t, admin.Actor(), "Wellbeing")
	env.assign(t, admin.Actor(), s.ID, part1.ID)
	env.assign(t, admin.Actor(), s.ID, part2.ID)

	all, err := env.svc.ListAssignments(ctx, admin.Actor())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := env.svc.ListAssignments(ctx, sw1.Actor())
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, part1.ID, own[0].UserID)
	assert.Equal(t, "Wellbeing", own[0].SurveyName)

	_, err = env.svc.ListAssignments(ctx, part1.Actor())
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
}

func TestServiceResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part1 := env.createUser(t, "part1", user.RoleParticipant, sw.ID)
	part2 := env.createUser(t, "part2", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	env.assign(t, sw.Actor(), s.ID, part1.ID)
	env.assign(t, sw.Actor(), s.ID, part2.ID)

	for actor, answer := range map[user.Actor]string{
		part1.Actor(): `{"q1": "yes"}`,
		part2.Actor(): `{"q1": "no"}`,
	} {
		_, err := env.svc.Submit(ctx, actor, survey.NewSubmission{
			SurveyID: s.ID,
			Data:     null.JSONFrom([]byte(answer)),
			Status:   survey.SubmissionCompleted,
		})
		require.NoError(t, err)
	}

	agg, err := env.svc.Results(ctx, sw.Actor(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, map[string]int{"yes": 1, "no": 1}, agg.Results["q1"])

	_, err = env.svc.Results(ctx, part1.Actor(), s.ID)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))

	_, err = env.svc.Results(ctx, sw.Actor(), "ffffffff-0000-0000-0000-000000000000")
	assert.Equal(t, survey.ErrNotFound, errors.Cause(err))
}

func TestServiceExportWithStrata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	env.assign(t, sw.Actor(), s.ID, part.ID)

	_, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
		SurveyID: s.ID,
		Data:     null.JSONFrom([]byte(`{"q1": "yes"}`)),
		Status:   survey.SubmissionCompleted,
	})
	require.NoError(t, err)

	file, err := env.svc.Export(ctx, sw.Actor(), s.ID, survey.ExportParams{
		Strata: []string{"email"},
		Format: survey.FormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, "Wellbeing_results.csv", file.Filename)
	assert.Contains(t, string(file.Data), "part@test.test")
}

func TestServiceGetSubmissionDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sw := env.createUser(t, "sw", user.RoleSocialWorker, "")
	part := env.createUser(t, "part", user.RoleParticipant, sw.ID)
	s := env.createSurvey(t, sw.Actor(), "Wellbeing")
	env.assign(t, sw.Actor(), s.ID, part.ID)

	sub, err := env.svc.Submit(ctx, part.Actor(), survey.NewSubmission{
		SurveyID: s.ID,
		Data:     null.JSONFrom([]byte(`{"q2": 4, "q1": "yes"}`)),
		Status:   survey.SubmissionCompleted,
	})
	require.NoError(t, err)

	detail, err := env.svc.GetSubmission(ctx, sw.Actor(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wellbeing", detail.SurveyName)
	assert.Equal(t, part.Name, detail.ParticipantName)
	assert.Equal(t, []survey.AnswerPair{
		{Question: "q1", Answer: "yes"},
		{Question: "q2", Answer: "4"},
	}, detail.Answers)

	_, err = env.svc.GetSubmission(ctx, part.Actor(), sub.ID)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
}
