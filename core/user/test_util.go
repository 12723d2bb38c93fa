package user

import (
	"context"

	"github.com/trezcool/ustawi/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose mails are sent synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}

func (svc *serviceMock) Register(ctx context.Context, ru RegisterUser) (User, error) {
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
	// run synchronously
	svc.sendEmailVerificationMail(usr)
	return usr, nil
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
