package scholarship

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
)

// Application statuses
const (
	AppStatusPending  = "pending"
	AppStatusApproved = "approved"
	AppStatusRejected = "rejected"
)

var (
	ErrAppNotFound    = errors.New("application not found")
	ErrAlreadyApplied = errors.New("already applied to this scholarship")
	ErrQuotaFull      = errors.New("scholarship application quota is full")
	ErrNotOpen        = errors.New("scholarship is not open for applications")
	ErrNotPending     = errors.New("application is no longer pending")
)

// Application is one account's candidacy for a scholarship. At most one
// exists per (account, scholarship).
type Application struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Scholarship primitive.ObjectID `bson:"scholarship" json:"scholarship"`
	Account     primitive.ObjectID `bson:"account" json:"account"`
	Statement   string             `bson:"statement,omitempty" json:"statement,omitempty"`
	Status      string             `bson:"status" json:"status"`

	Reviewer      *primitive.ObjectID `bson:"reviewer,omitempty" json:"reviewer,omitempty"`
	ReviewedAt    time.Time           `bson:"reviewedAt,omitempty" json:"reviewedAt"`
	ReviewComment string              `bson:"reviewComment,omitempty" json:"reviewComment,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"` // UTC
}

type NewApplication struct {
	Statement string `json:"statement"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.Statement = core.CleanString(na.Statement)
	return validate.Struct(na)
}

// AppReviewDecision is an admin's verdict on an application.
type AppReviewDecision struct {
	Status  string `json:"status" validate:"required,oneof=approved rejected"`
	Comment string `json:"comment"`
}

func (rd *AppReviewDecision) Validate(validate *validator.Validate) error {
	rd.Comment = core.CleanString(rd.Comment)
	return validate.Struct(rd)
}

type AppQueryFilter struct {
	Scholarship string `query:"scholarship" validate:"omitempty,objectid"`
	Account     string `query:"account" validate:"omitempty,objectid"`
	Status      string `query:"status" validate:"omitempty,oneof=pending approved rejected"`
}

type ApplicationRepository interface {
	// Create fails with ErrAlreadyApplied on a duplicate
	// (scholarship, account).
	Create(ctx context.Context, app Application) (Application, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (Application, error)
	Filter(ctx context.Context, filter AppQueryFilter, args core.ListArgs) ([]Application, int64, error)
	Update(ctx context.Context, app Application) (Application, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Apply creates a pending application. The quota counter is claimed
// before the record is written; a duplicate application releases the
// claimed slot again.
func (svc *Service) Apply(ctx context.Context, scholarshipID, accountID primitive.ObjectID, na NewApplication) (Application, error) {
	sch, err := svc.repo.GetByID(ctx, scholarshipID)
	if err != nil {
		return Application{}, err
	}
	if err = applicationWindowOpen(sch, time.Now()); err != nil {
		return Application{}, err
	}

	if err = svc.repo.TryIncrementApplications(ctx, scholarshipID, sch.Quota); err != nil {
		return Application{}, err
	}

	now := time.Now().UTC()
	app, err := svc.apps.Create(ctx, Application{
		Scholarship: scholarshipID,
		Account:     accountID,
		Statement:   na.Statement,
		Status:      AppStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if dErr := svc.repo.DecrementApplications(ctx, scholarshipID); dErr != nil {
			svc.warn("releasing application slot", dErr)
		}
		return Application{}, err
	}
	return app, nil
}

// Withdraw removes the caller's pending application and frees its slot.
func (svc *Service) Withdraw(ctx context.Context, appID primitive.ObjectID) error {
	app, err := svc.apps.GetByID(ctx, appID)
	if err != nil {
		return err
	}
	if app.Status != AppStatusPending {
		return ErrNotPending
	}
	if err = svc.apps.Delete(ctx, appID); err != nil {
		return err
	}
	return svc.repo.DecrementApplications(ctx, app.Scholarship)
}

// ReviewApplication applies an admin decision to a pending application.
func (svc *Service) ReviewApplication(ctx context.Context, appID, reviewerID primitive.ObjectID, rd AppReviewDecision) (Application, error) {
	app, err := svc.apps.GetByID(ctx, appID)
	if err != nil {
		return Application{}, err
	}
	if app.Status != AppStatusPending {
		return Application{}, ErrNotPending
	}

	app.Status = rd.Status
	app.Reviewer = &reviewerID
	app.ReviewedAt = time.Now().UTC()
	app.ReviewComment = rd.Comment
	app.UpdatedAt = app.ReviewedAt
	return svc.apps.Update(ctx, app)
}

func (svc *Service) GetApplication(ctx context.Context, id primitive.ObjectID) (Application, error) {
	return svc.apps.GetByID(ctx, id)
}

func (svc *Service) FilterApplications(ctx context.Context, filter AppQueryFilter, args core.ListArgs) ([]Application, int64, error) {
	return svc.apps.Filter(ctx, filter, args)
}

func applicationWindowOpen(sch Scholarship, now time.Time) error {
	if sch.Status != StatusPublished {
		return ErrNotOpen
	}
	if !sch.PublishAt.IsZero() && now.Before(sch.PublishAt) {
		return ErrNotOpen
	}
	if !sch.Deadline.IsZero() && now.After(sch.Deadline) {
		return ErrNotOpen
	}
	return nil
}
