package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ustawi/core"
)

// Roles
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleSocialWorker Role = "social_worker"
	RoleParticipant  Role = "participant"
)

var (
	AllRoles = []Role{RoleAdmin, RoleSocialWorker, RoleParticipant}

	// SignupRoles are the roles self-registration may pick;
	// admins are only created by other admins or the CLI.
	SignupRoles = []Role{RoleSocialWorker, RoleParticipant}

	Roles = []RoleInfo{
		{Name: "Participant", Value: RoleParticipant},
		{Name: "Social Worker", Value: RoleSocialWorker},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor identifies the user performing an operation. It is passed explicitly
// into service calls; there is no ambient session state.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool        { return a.Role == RoleAdmin }
func (a Actor) IsSocialWorker() bool { return a.Role == RoleSocialWorker }
func (a Actor) IsParticipant() bool  { return a.Role == RoleParticipant }
func (a Actor) IsStaff() bool        { return a.IsAdmin() || a.IsSocialWorker() }

type User struct {
	ID            string      `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	Email         string      `json:"email" db:"email"`
	ContactNumber string      `json:"contact_number" db:"contact_number"`
	Role          Role        `json:"role" db:"role"`
	SupervisorID  null.String `json:"supervisor_id" db:"supervisor_id"`
	PasswordHash  []byte      `json:"-" db:"password_hash"`
	EmailVerified null.Time   `json:"email_verified" db:"email_verified"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin     null.Time   `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool        { return u.Role == RoleAdmin }
func (u *User) IsSocialWorker() bool { return u.Role == RoleSocialWorker }
func (u *User) IsParticipant() bool  { return u.Role == RoleParticipant }

func (u *User) Actor() Actor { return Actor{ID: u.ID, Role: u.Role} }

// NewUser contains information needed to create a new User.
// Role is unrestricted; it backs the admin/CLI creation path.
type NewUser struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	ContactNumber string `json:"contact_number"`
	Role          Role   `json:"role" validate:"required,role"`
	Password      string `json:"password" validate:"required"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, nu.Email)
}

// RegisterUser is the self-service signup payload; Role is limited to
// SignupRoles and a verification email is sent on success.
type RegisterUser struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	ContactNumber   string `json:"contact_number"`
	Role            Role   `json:"role" validate:"required,signuprole"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ru *RegisterUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	ru.Name = core.CleanString(ru.Name)
	ru.Email = core.CleanString(ru.Email, true /* lower */)

	if err := validate.Struct(ru); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ctx, ru.Email)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type VerifyUserEmail struct {
	UID   string `json:"uid,omitempty" validate:"required"`
	Token string `json:"token,omitempty" validate:"required"`
}

func (ve VerifyUserEmail) Validate(validate *validator.Validate) error {
	return validate.Struct(ve)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        Role      `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// ParticipantOverview is a social worker's view of one of their participants.
type ParticipantOverview struct {
	ID                string `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	Email             string `json:"email" db:"email"`
	TotalAssigned     int    `json:"total_assigned_surveys" db:"total_assigned"`
	CompletedSurveys  int    `json:"completed_surveys" db:"completed"`
	HasOverdueSurveys bool   `json:"has_overdue_surveys" db:"has_overdue"`
}
