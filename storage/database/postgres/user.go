package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core"
	"github.com/trezcool/ustawi/core/user"
)

const userColumns = `id, name, email, contact_number, role, supervisor_id, password_hash, email_verified, is_active, created_at, updated_at, last_login`

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ex := getExec(repo.db, exec)

	query := `SELECT EXISTS (SELECT 1 FROM "user" WHERE email = $1)`
	args := []interface{}{email}
	if len(excludedUsers) > 0 {
		ids := make([]string, len(excludedUsers))
		for i, usr := range excludedUsers {
			ids[i] = usr.ID
		}
		q, inArgs, err := sqlx.In(`SELECT EXISTS (SELECT 1 FROM "user" WHERE email = ? AND id NOT IN (?))`, email, ids)
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		query = sqlx.Rebind(sqlx.DOLLAR, q)
		args = inArgs
	}

	var exists bool
	if err := ex.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	query := `
		INSERT INTO "user" (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := ex.ExecContext(ctx, query,
		usr.ID, usr.Name, usr.Email, usr.ContactNumber, usr.Role, usr.SupervisorID,
		usr.PasswordHash, usr.EmailVerified, usr.IsActive, usr.CreatedAt, usr.UpdatedAt, usr.LastLogin,
	)
	if err != nil {
		if isPqError(err, uniqueViolation) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)

	var (
		field string
		arg   string
	)
	switch {
	case filter.ID != "":
		field, arg = "id", filter.ID
	case filter.Email != "":
		field, arg = "email", filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	query := `SELECT ` + userColumns + ` FROM "user" WHERE ` + field + ` = $1`
	if err := ex.GetContext(ctx, &usr, query, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	ex := getExec(repo.db, exec)

	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			ph := fmt.Sprintf("$%d", len(args))
			where = append(where, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s)", ph, ph))
		}
		if filter.Role != "" {
			args = append(args, filter.Role)
			where = append(where, fmt.Sprintf("role = $%d", len(args)))
		}
		if filter.IsActive != nil {
			args = append(args, *filter.IsActive)
			where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
		}
		if !filter.CreatedFrom.IsZero() {
			args = append(args, filter.CreatedFrom)
			where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if !filter.CreatedTo.IsZero() {
			args = append(args, filter.CreatedTo)
			where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
		}
	}

	query := `SELECT ` + userColumns + ` FROM "user"`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	orderBy := "created_at DESC"
	if len(ordering) > 0 {
		parts := make([]string, len(ordering))
		for i, ord := range ordering {
			parts[i] = ord.String()
		}
		orderBy = strings.Join(parts, ", ")
	}
	query += " ORDER BY " + orderBy

	var users []user.User
	if err := ex.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) QueryUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ex := getExec(repo.db, exec)

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var users []user.User
	if err = ex.SelectContext(ctx, &users, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := getExec(repo.db, exec)

	query := `
		UPDATE "user"
		SET name = $1, email = $2, contact_number = $3, role = $4, supervisor_id = $5,
		    password_hash = $6, email_verified = $7, is_active = $8, updated_at = $9, last_login = $10
		WHERE id = $11`
	res, err := ex.ExecContext(ctx, query,
		usr.Name, usr.Email, usr.ContactNumber, usr.Role, usr.SupervisorID,
		usr.PasswordHash, usr.EmailVerified, usr.IsActive, usr.UpdatedAt, usr.LastLogin, usr.ID,
	)
	if err != nil {
		if isPqError(err, uniqueViolation) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ex := getExec(repo.db, exec)

	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := ex.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}

func (repo *userRepository) QueryParticipantOverviews(ctx context.Context, supervisorID string, now time.Time, exec ...core.DBExecutor) ([]user.ParticipantOverview, error) {
	ex := getExec(repo.db, exec)

	query := `
		SELECT u.id, u.name, u.email,
		       COUNT(a.id)                                       AS total_assigned,
		       COUNT(a.id) FILTER (WHERE a.status = 'completed') AS completed,
		       COALESCE(BOOL_OR(a.status <> 'completed' AND a.due_date IS NOT NULL AND a.due_date < $2), FALSE) AS has_overdue
		FROM "user" u
		LEFT JOIN survey_assignment a ON a.user_id = u.id
		WHERE u.supervisor_id = $1 AND u.role = 'participant'
		GROUP BY u.id, u.name, u.email
		ORDER BY u.name`

	var overviews []user.ParticipantOverview
	if err := ex.SelectContext(ctx, &overviews, query, supervisorID, now); err != nil {
		return nil, errors.Wrap(err, "querying participant overviews")
	}
	return overviews, nil
}
