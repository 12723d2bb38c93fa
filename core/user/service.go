package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ustawi/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")

	errInvalidOrExpiredToken = "invalid or expired token"
	errCannotDeleteSelf      = "cannot delete own account"
	errNotASocialWorker      = "supervisor must be an active social worker"
	errNotAParticipant       = "supervisor can only be set on a participant"
)

type (
	// GetFilter selects a single user by exactly one of its fields.
	GetFilter struct {
		ID    string
		Email string
	}

	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if email is taken by a user
		// other than excludedUsers.
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		// QueryUsersByID returns the users matching ids; unknown ids are skipped.
		QueryUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
		// QueryParticipantOverviews returns assignment stats for all participants
		// supervised by supervisorID.
		QueryParticipantOverviews(ctx context.Context, supervisorID string, now time.Time, exec ...core.DBExecutor) ([]ParticipantOverview, error)
	}

	Service interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Register(ctx context.Context, ru RegisterUser) (User, error)
		VerifyEmail(ctx context.Context, data VerifyUserEmail) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		UpdateRole(ctx context.Context, actor Actor, id string, role Role) (User, error)
		SetSupervisor(ctx context.Context, actor Actor, participantID, supervisorID string) (User, error)
		Delete(ctx context.Context, actor Actor, ids ...string) error
		ListParticipants(ctx context.Context, actor Actor) ([]ParticipantOverview, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedUsers); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:          nu.Name,
		Email:         nu.Email,
		ContactNumber: nu.ContactNumber,
		Role:          nu.Role,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Register(ctx context.Context, ru RegisterUser) (User, error) {
	usr, err := svc.Create(ctx, NewUser{
		Name:          ru.Name,
		Email:         ru.Email,
		ContactNumber: ru.ContactNumber,
		Role:          ru.Role,
		Password:      ru.Password,
	})
	if err != nil {
		return User{}, err
	}
	go svc.sendEmailVerificationMail(usr)
	return usr, nil
}

func (svc *service) VerifyEmail(ctx context.Context, data VerifyUserEmail) (User, error) {
	id, err := decodeUID(data.UID)
	if err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidOrExpiredToken})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if err = verifyEmailToken(usr, data.Token, svc.conf); err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidOrExpiredToken})
	}

	usr.EmailVerified = null.TimeFrom(time.Now().UTC())
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "uid", Error: errInvalidOrExpiredToken})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return err
	}
	if err = verifyResetToken(usr, data.Token, svc.conf); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: errInvalidOrExpiredToken})
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) UpdateRole(ctx context.Context, actor Actor, id string, role Role) (User, error) {
	if err := actor.Require(OpUserUpdateRole); err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: roleText})
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if usr.Role == role {
		return usr, nil
	}

	usr.Role = role
	if role != RoleParticipant {
		// only participants have supervisors
		usr.SupervisorID = null.String{}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetSupervisor(ctx context.Context, actor Actor, participantID, supervisorID string) (User, error) {
	if err := actor.Require(OpUserSetSupervisor); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: participantID})
	if err != nil {
		return User{}, err
	}
	if !usr.IsParticipant() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "participant_id", Error: errNotAParticipant})
	}

	if supervisorID == "" {
		usr.SupervisorID = null.String{}
	} else {
		sup, err := svc.repo.GetUser(ctx, GetFilter{ID: supervisorID})
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return User{}, core.NewValidationError(err, core.FieldError{Field: "supervisor_id", Error: errNotASocialWorker})
			}
			return User{}, err
		}
		if !sup.IsSocialWorker() || !sup.IsActive {
			return User{}, core.NewValidationError(nil, core.FieldError{Field: "supervisor_id", Error: errNotASocialWorker})
		}
		usr.SupervisorID = null.StringFrom(sup.ID)
	}

	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, actor Actor, ids ...string) error {
	if err := actor.Require(OpUserDelete); err != nil {
		return err
	}
	for _, id := range ids {
		if id == actor.ID {
			return core.NewValidationError(nil, core.FieldError{Field: "ids", Error: errCannotDeleteSelf})
		}
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

func (svc *service) ListParticipants(ctx context.Context, actor Actor) ([]ParticipantOverview, error) {
	if err := actor.Require(OpParticipantList); err != nil {
		return nil, err
	}
	return svc.repo.QueryParticipantOverviews(ctx, actor.ID, time.Now().UTC())
}

// Mails

type tokenMailData struct {
	Name  string
	UID   string
	Token string
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeResetToken(usr, svc.conf)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      svc.conf.AppName + " - Password Reset",
		TemplateName: "password_reset",
		TemplateData: tokenMailData{Name: usr.Name, UID: EncodeUID(usr), Token: token},
	})
}

func (svc *service) sendEmailVerificationMail(usr User) {
	token, err := MakeVerifyToken(usr, svc.conf)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      svc.conf.AppName + " - Verify your email",
		TemplateName: "email_verify",
		TemplateData: tokenMailData{Name: usr.Name, UID: EncodeUID(usr), Token: token},
	})
}
