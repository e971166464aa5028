package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrAccountExists      = errors.New("an account with this name already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is not active")
)

type (
	Repository interface {
		Create(ctx context.Context, acct Account) (Account, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Account, error)
		// GetByAccount does a case-insensitive match on the account name.
		GetByAccount(ctx context.Context, account string) (Account, error)
		// Filter applies AND on available QueryFilter fields; Search does a
		// case-insensitive match on account name, display name or email.
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Account, int64, error)
		Update(ctx context.Context, acct Account) (Account, error)
		SetLastLogin(ctx context.Context, id primitive.ObjectID, t time.Time) error
		SetPassword(ctx context.Context, id primitive.ObjectID, hash []byte) error
		SetAvatar(ctx context.Context, id primitive.ObjectID, ref blob.Reference) error
		SetRole(ctx context.Context, id primitive.ObjectID, role string) error
		SetStatus(ctx context.Context, id primitive.ObjectID, status string) error
		// SetAffiliation sets or clears (ref == nil) the organization/school
		// back-reference named by field.
		SetAffiliation(ctx context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error
		Delete(ctx context.Context, ids ...primitive.ObjectID) error
	}

	Service struct {
		repo     Repository
		uploader *blob.Uploader
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(repo Repository, uploader *blob.Uploader, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		uploader: uploader,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// Register creates a new active Account with the lowest role.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Account, error) {
	now := time.Now().UTC()
	acct := Account{
		Account:   na.Account,
		Name:      na.Name,
		Email:     na.Email,
		Phone:     na.Phone,
		Role:      RoleUser,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	acct, err := svc.repo.Create(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	svc.sendWelcomeEmail(acct)
	return acct, nil
}

// Authenticate checks the credentials and records the login time.
func (svc *Service) Authenticate(ctx context.Context, account, password string) (Account, error) {
	acct, err := svc.repo.GetByAccount(ctx, core.CleanString(account, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account")
	}
	if err = acct.CheckPassword(password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if !acct.IsActive() {
		return Account{}, ErrAccountDisabled
	}

	now := time.Now().UTC()
	if err = svc.repo.SetLastLogin(ctx, acct.ID, now); err != nil {
		return Account{}, errors.Wrap(err, "setting lastLogin")
	}
	acct.LastLogin = now
	return acct, nil
}

func (svc *Service) GetByID(ctx context.Context, id primitive.ObjectID) (Account, error) {
	return svc.repo.GetByID(ctx, id)
}

func (svc *Service) GetByAccount(ctx context.Context, account string) (Account, error) {
	return svc.repo.GetByAccount(ctx, core.CleanString(account, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Account, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

func (svc *Service) UpdateProfile(ctx context.Context, id primitive.ObjectID, up UpdateProfile) (Account, error) {
	acct, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if up.Name != "" {
		acct.Name = up.Name
	}
	acct.Email = up.Email
	acct.Phone = up.Phone
	acct.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, acct)
}

func (svc *Service) ChangePassword(ctx context.Context, id primitive.ObjectID, cp ChangePassword) error {
	acct, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = acct.CheckPassword(cp.OldPassword); err != nil {
		return core.NewValidationError(ErrInvalidCredentials, core.FieldError{Field: "oldPassword", Error: "wrong password"})
	}
	if err = acct.SetPassword(cp.NewPassword); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.SetPassword(ctx, id, acct.PasswordHash)
}

// SetAvatar stores the new avatar before dropping the old one so the
// account never points at missing content.
func (svc *Service) SetAvatar(ctx context.Context, id primitive.ObjectID, up blob.Upload) (Account, error) {
	acct, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	ref, err := svc.uploader.Replace(ctx, acct.Avatar, up.Data, up.Meta)
	if err != nil {
		return Account{}, errors.Wrap(err, "storing avatar")
	}
	if err = svc.repo.SetAvatar(ctx, id, ref); err != nil {
		return Account{}, err
	}
	acct.Avatar = ref
	return acct, nil
}

// RemoveAvatar clears the reference even when the blob delete fails.
func (svc *Service) RemoveAvatar(ctx context.Context, id primitive.ObjectID) error {
	acct, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return svc.repo.SetAvatar(ctx, id, svc.uploader.Remove(ctx, acct.Avatar))
}

func (svc *Service) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	return svc.repo.SetRole(ctx, id, role)
}

func (svc *Service) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return svc.repo.SetStatus(ctx, id, status)
}

func (svc *Service) SetAffiliation(ctx context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error {
	return svc.repo.SetAffiliation(ctx, id, field, ref)
}

// Delete removes the accounts and cleans up their avatars best-effort.
func (svc *Service) Delete(ctx context.Context, ids ...primitive.ObjectID) error {
	for _, id := range ids {
		if acct, err := svc.repo.GetByID(ctx, id); err == nil {
			svc.uploader.Cleanup(ctx, acct.Avatar)
		}
	}
	return svc.repo.Delete(ctx, ids...)
}

func (svc *Service) sendWelcomeEmail(acct Account) {
	if svc.mailSvc == nil || acct.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject:      fmt.Sprintf("Welcome to %s", core.Conf.AppName),
		TemplateName: "welcome",
		TemplateData: struct{ Name string }{Name: acct.Name},
	}
	svc.mailSvc.SendMessages(msg)
}
