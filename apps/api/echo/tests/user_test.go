package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ustawi/core/user"
	emailsvc "github.com/trezcool/ustawi/services/email"
	testutil "github.com/trezcool/ustawi/tests"
)

func TestUserAPI_login(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Jane Login", "jane.login@test.cd", "LePassw0rd!", user.RoleParticipant, true)
	testutil.CreateUser(t, usrRepo, "Numb Locked", "numb.locked@test.cd", "LePassw0rd!", user.RoleParticipant, false)

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/v1/users/login",
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/login",
			body: []byte(`{"email": "ghost@test.cd", "password": "LePassw0rd!"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body: []byte(`{"email": "jane.login@test.cd", "password": "lmaooolol"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", method: http.MethodPost, path: "/v1/users/login",
			body: []byte(`{"email": "numb.locked@test.cd", "password": "LePassw0rd!"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("login ok", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{"email": "jane.login@test.cd", "password": "LePassw0rd!"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Token string `json:"token"`
		}
		decodeBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)

		// last login is recorded
		refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.True(t, refreshed.LastLogin.Valid)
	})
}

func TestUserAPI_register(t *testing.T) {
	t.Run("register ok sends verification mail", func(t *testing.T) {
		emailsvc.SentMessages = nil

		body := []byte(`{
			"name": "Reg Istrant",
			"email": "reg.istrant@test.cd",
			"role": "participant",
			"password": "LePassw0rd!",
			"password_confirm": "LePassw0rd!"
		}`)
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, user.RoleParticipant, usr.Role)
		assert.True(t, usr.IsActive)

		require.Len(t, emailsvc.SentMessages, 1)
		assert.Contains(t, emailsvc.SentMessages[0].Subject, "Verify your email")
	})

	tests := []httpTest{
		{
			name: "admin role rejected", method: http.MethodPost, path: "/v1/users/register",
			body: []byte(`{"name": "Evil Join", "email": "evil.join@test.cd", "role": "admin",
				"password": "LePassw0rd!", "password_confirm": "LePassw0rd!"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"role": "role must be one of social_worker or participant"}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/users/register",
			body: []byte(`{"name": "Weak Pwd", "email": "weak.pwd@test.cd", "role": "participant",
				"password": "short", "password_confirm": "short"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "duplicate email", method: http.MethodPost, path: "/v1/users/register",
			body: []byte(`{"name": "Reg Again", "email": "reg.istrant@test.cd", "role": "participant",
				"password": "LePassw0rd!", "password_confirm": "LePassw0rd!"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "a user with this email already exists"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestUserAPI_passwordReset(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "For Getful", "for.getful@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	emailsvc.SentMessages = nil
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", []byte(`{"email": "for.getful@test.cd"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, emailsvc.SentMessages, 1)

	// unknown emails get the same neutral answer and no mail
	emailsvc.SentMessages = nil
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset", []byte(`{"email": "ghost@test.cd"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, emailsvc.SentMessages)

	// confirm with a valid token
	token, err := user.MakeResetToken(usr, conf)
	require.NoError(t, err)
	body := marchallObj(t, map[string]string{
		"uid":              user.EncodeUID(usr),
		"token":            token,
		"password":         "NewPassw0rd!",
		"password_confirm": "NewPassw0rd!",
	})
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("NewPassw0rd!"))

	// token is single use
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestUserAPI_verifyEmail(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Un Verified", "un.verified@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	token, err := user.MakeVerifyToken(usr, conf)
	require.NoError(t, err)
	body := marchallObj(t, map[string]string{"uid": user.EncodeUID(usr), "token": token})

	req, rec := newRequest(http.MethodPost, "/v1/users/verify-email", body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.True(t, refreshed.EmailVerified.Valid)

	// verification invalidates the token
	req, rec = newRequest(http.MethodPost, "/v1/users/verify-email", body)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestUserAPI_query(t *testing.T) {
	admin := testutil.CreateUser(t, usrRepo, "Quentin Query", "quentin.query@test.cd", "LePassw0rd!", user.RoleAdmin, true)
	participant := testutil.CreateUser(t, usrRepo, "Paula Query", "paula.query@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	tests := []httpTest{
		{
			name: "auth required", method: http.MethodGet, path: "/v1/users",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "admin only", method: http.MethodGet, path: "/v1/users", token: getToken(t, participant),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("search filters by name or email", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?search=paula", getToken(t, admin))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var users []user.User
		decodeBody(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, participant.ID, users[0].ID)
	})
}

func TestUserAPI_roleAndSupervisor(t *testing.T) {
	admin := testutil.CreateUser(t, usrRepo, "Ad Min", "ad.min@test.cd", "LePassw0rd!", user.RoleAdmin, true)
	sw := testutil.CreateUser(t, usrRepo, "Sue Pervisor", "sue.pervisor@test.cd", "LePassw0rd!", user.RoleSocialWorker, true)
	participant := testutil.CreateUser(t, usrRepo, "Pat Icipant", "pat.icipant@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	adminTok := getToken(t, admin)
	swTok := getToken(t, sw)

	t.Run("set supervisor", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"supervisor_id": sw.ID})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+participant.ID+"/supervisor", adminTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, null.StringFrom(sw.ID), usr.SupervisorID)
	})

	t.Run("supervisor must be a social worker", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"supervisor_id": admin.ID})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+participant.ID+"/supervisor", adminTok, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"supervisor_id": "supervisor must be an active social worker"}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("non-admin cannot change roles", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"role": "social_worker"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+participant.ID+"/role", swTok, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	})

	t.Run("promotion clears the supervisor", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"role": "social_worker"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+participant.ID+"/role", adminTok, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		decodeBody(t, rec, &usr)
		assert.Equal(t, user.RoleSocialWorker, usr.Role)
		assert.False(t, usr.SupervisorID.Valid)
	})
}

func TestUserAPI_destroy(t *testing.T) {
	admin := testutil.CreateUser(t, usrRepo, "Des Troyer", "des.troyer@test.cd", "LePassw0rd!", user.RoleAdmin, true)
	doomed := testutil.CreateUser(t, usrRepo, "Doo Med", "doo.med@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	adminTok := getToken(t, admin)

	t.Run("self delete is refused", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users?id="+admin.ID, adminTok)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"ids": "cannot delete own account"}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("delete ok", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users?id="+doomed.ID, adminTok)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: doomed.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestUserAPI_tokenRefresh(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "Re Fresh", "re.fresh@test.cd", "LePassw0rd!", user.RoleParticipant, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, usr))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
}
