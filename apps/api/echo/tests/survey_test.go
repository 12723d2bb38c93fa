package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ustawi/core/notif"
	"github.com/trezcool/ustawi/core/survey"
	"github.com/trezcool/ustawi/core/user"
	testutil "github.com/trezcool/ustawi/tests"
)

func TestSurveyAPI_fullFlow(t *testing.T) {
	ctx := context.Background()

	admin := testutil.CreateUser(t, usrRepo, "Survey Admin", "survey.admin@test.cd", "LePassw0rd!", user.RoleAdmin, true)
	sw := testutil.CreateUser(t, usrRepo, "Survey Worker", "survey.worker@test.cd", "LePassw0rd!", user.RoleSocialWorker, true)
	participant := testutil.CreateUser(t, usrRepo, "Survey Taker", "survey.taker@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	// supervise the participant so completion notifies the social worker
	participant.SupervisorID = null.StringFrom(sw.ID)
	participant, err := usrRepo.UpdateUser(ctx, participant)
	require.NoError(t, err)

	adminTok := getToken(t, admin)
	swTok := getToken(t, sw)
	participantTok := getToken(t, participant)

	var s survey.Survey
	t.Run("create survey", func(t *testing.T) {
		body := []byte(`{
			"name": "Wellbeing Check",
			"description": "Weekly wellbeing questionnaire",
			"definition": {"questions": [{"key": "mood", "type": "choice"}, {"key": "sleep_hours", "type": "number"}]}
		}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys", adminTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &s)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, admin.ID, s.CreatorID)
	})

	t.Run("participant cannot create surveys", func(t *testing.T) {
		body := []byte(`{"name": "Nope", "definition": {}}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys", participantTok, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unassigned survey is hidden from participants", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/"+s.ID, participantTok)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "survey not found"})}
		checkCodeAndData(t, tt, rec)
	})

	var a survey.Assignment
	t.Run("assign survey", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"survey_id":  s.ID,
			"user_id":    participant.ID,
			"occurrence": "weekly",
			"start_date": time.Now().UTC().Format(time.RFC3339),
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/assignments", swTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &a)
		assert.Equal(t, survey.StatusNotStarted, a.Status)
	})

	t.Run("assignment to unknown survey rolls back", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"survey_id":  "nope",
			"user_id":    participant.ID,
			"occurrence": "once",
			"start_date": time.Now().UTC().Format(time.RFC3339),
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/assignments", swTok, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})

	var assignedNotif notif.Notification
	t.Run("assignment notifies the participant", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", participantTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var notifications []notif.Notification
		decodeBody(t, rec, &notifications)
		require.Len(t, notifications, 1)
		assignedNotif = notifications[0]
		assert.Equal(t, notif.TypeNewAssignment, assignedNotif.Type)
		assert.Contains(t, assignedNotif.Content, "Wellbeing Check")
	})

	t.Run("participant sees the assigned survey", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/assigned", participantTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var assigned []survey.AssignedSurvey
		decodeBody(t, rec, &assigned)
		require.Len(t, assigned, 1)
		assert.Equal(t, a.ID, assigned[0].AssignmentID)
		assert.Equal(t, "Wellbeing Check", assigned[0].SurveyName)
		assert.Equal(t, survey.StatusNotStarted, assigned[0].Status)

		// the survey itself is now visible
		req, rec = newAuthRequest(http.MethodGet, "/v1/surveys/"+s.ID, participantTok)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("staff cannot list assigned surveys", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/assigned", adminTok)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("update assignment", func(t *testing.T) {
		due := time.Now().UTC().Add(7 * 24 * time.Hour)
		body := marchallObj(t, map[string]interface{}{"due_date": due.Format(time.RFC3339)})
		req, rec := newAuthRequest(http.MethodPut, "/v1/surveys/assignments/"+a.ID, swTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var updated survey.Assignment
		decodeBody(t, rec, &updated)
		assert.True(t, updated.DueDate.Valid)
	})

	var sub survey.Submission
	t.Run("in progress submission advances the assignment", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"survey_id": s.ID,
			"data":      map[string]interface{}{"mood": "good"},
			"status":    "in_progress",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/submissions", participantTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/surveys/assignments/"+a.ID, swTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var detail survey.AssignmentDetail
		decodeBody(t, rec, &detail)
		assert.Equal(t, survey.StatusInProgress, detail.Status)
		assert.Equal(t, participant.Name, detail.UserName)
	})

	t.Run("completed submission notifies the supervisor", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"survey_id": s.ID,
			"data":      map[string]interface{}{"mood": "good", "sleep_hours": 7},
			"status":    "completed",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/submissions", participantTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decodeBody(t, rec, &sub)
		assert.Equal(t, a.ID, sub.AssignmentID)

		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications", swTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var notifications []notif.Notification
		decodeBody(t, rec, &notifications)
		require.Len(t, notifications, 1)
		assert.Equal(t, notif.TypeSurveyCompleted, notifications[0].Type)
		assert.Contains(t, notifications[0].Content, participant.Name)
	})

	t.Run("staff cannot submit", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"survey_id": s.ID,
			"data":      map[string]interface{}{"mood": "meh"},
			"status":    "completed",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/submissions", adminTok, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("completed assignments", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/assignments/completed", swTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var details []survey.AssignmentDetail
		decodeBody(t, rec, &details)
		require.Len(t, details, 1)
		assert.Equal(t, a.ID, details[0].ID)
		assert.Equal(t, survey.StatusCompleted, details[0].Status)
	})

	t.Run("submission detail sorts answers by question", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/submissions/"+sub.ID, adminTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var detail survey.SubmissionDetail
		decodeBody(t, rec, &detail)
		assert.Equal(t, "Wellbeing Check", detail.SurveyName)
		assert.Equal(t, participant.Name, detail.ParticipantName)
		require.Len(t, detail.Answers, 2)
		assert.Equal(t, survey.AnswerPair{Question: "mood", Answer: "good"}, detail.Answers[0])
		assert.Equal(t, survey.AnswerPair{Question: "sleep_hours", Answer: "7"}, detail.Answers[1])
	})

	t.Run("results tally answers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/"+s.ID+"/results", adminTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var agg survey.Aggregation
		decodeBody(t, rec, &agg)
		assert.Equal(t, 2, agg.Total)
		assert.Equal(t, 2, agg.Results["mood"]["good"])
		assert.Equal(t, 1, agg.Results["sleep_hours"]["7"])
	})

	t.Run("participant cannot see results", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/surveys/"+s.ID+"/results", participantTok)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("export csv", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"columns": []string{"mood", "sleep_hours"},
			"strata":  []string{"name"},
			"format":  "csv",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/"+s.ID+"/export", adminTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="Wellbeing Check_results.csv"`)

		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "mood,sleep_hours,name", strings.TrimSpace(lines[0]))
		assert.Equal(t, "good,,"+participant.Name, strings.TrimSpace(lines[1]))
		assert.Equal(t, "good,7,"+participant.Name, strings.TrimSpace(lines[2]))
	})

	t.Run("export requires a known format", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"format": "pdf"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/surveys/"+s.ID+"/export", adminTok, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("mark notification read", func(t *testing.T) {
		// another user's notification reads as not found
		req, rec := newAuthRequest(http.MethodPut, "/v1/notifications/"+assignedNotif.ID+"/read", adminTok)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodPut, "/v1/notifications/"+assignedNotif.ID+"/read", participantTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var n notif.Notification
		decodeBody(t, rec, &n)
		assert.True(t, n.IsRead)

		// read notifications drop out of the unread list
		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications", participantTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var notifications []notif.Notification
		decodeBody(t, rec, &notifications)
		assert.Empty(t, notifications)
	})
}

func TestSurveyAPI_participantOverviews(t *testing.T) {
	ctx := context.Background()

	sw := testutil.CreateUser(t, usrRepo, "Olive Verseer", "olive.verseer@test.cd", "LePassw0rd!", user.RoleSocialWorker, true)
	p1 := testutil.CreateUser(t, usrRepo, "Over Viewed", "over.viewed@test.cd", "LePassw0rd!", user.RoleParticipant, true)
	testutil.CreateUser(t, usrRepo, "Un Supervised", "un.supervised@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	p1.SupervisorID = null.StringFrom(sw.ID)
	_, err := usrRepo.UpdateUser(ctx, p1)
	require.NoError(t, err)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/participants", getToken(t, sw))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var overviews []user.ParticipantOverview
	decodeBody(t, rec, &overviews)
	require.Len(t, overviews, 1)
	assert.Equal(t, p1.ID, overviews[0].ID)
	assert.Equal(t, 0, overviews[0].TotalAssigned)
	assert.False(t, overviews[0].HasOverdueSurveys)
}
