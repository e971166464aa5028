package scholarship

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusClosed    = "closed"
)

var ErrNotFound = errors.New("scholarship not found")

type Scholarship struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title               string             `bson:"title" json:"title"`
	Description         string             `bson:"description,omitempty" json:"description,omitempty"`
	Provider            string             `bson:"provider,omitempty" json:"provider,omitempty"`
	Amount              int64              `bson:"amount,omitempty" json:"amount,omitempty"`
	Quota               int64              `bson:"quota" json:"quota"` // 0 = unlimited
	CurrentApplications int64              `bson:"currentApplications" json:"currentApplications"`
	Status              string             `bson:"status" json:"status"`
	Tags                []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	DocumentFile        blob.Reference     `bson:"documentFile,omitempty" json:"documentFile"`
	PublishAt           time.Time          `bson:"publishAt,omitempty" json:"publishAt"`
	Deadline            time.Time          `bson:"deadline,omitempty" json:"deadline"`
	AnnounceAt          time.Time          `bson:"announceAt,omitempty" json:"announceAt"`
	Views               int64              `bson:"views" json:"views"`
	Author              primitive.ObjectID `bson:"author" json:"author"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"` // UTC
}

type NewScholarship struct {
	Title       string    `json:"title" form:"title" validate:"required"`
	Description string    `json:"description" form:"description"`
	Provider    string    `json:"provider" form:"provider"`
	Amount      int64     `json:"amount" form:"amount" validate:"min=0"`
	Quota       int64     `json:"quota" form:"quota" validate:"min=0"`
	Status      string    `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
	Tags        []string  `json:"tags" form:"tags"`
	PublishAt   time.Time `json:"publishAt" form:"publishAt"`
	Deadline    time.Time `json:"deadline" form:"deadline"`
	AnnounceAt  time.Time `json:"announceAt" form:"announceAt"`

	Document *blob.Upload `json:"-" form:"-"`
}

func (ns *NewScholarship) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Provider = core.CleanString(ns.Provider)
	return validate.Struct(ns)
}

type UpdateScholarship struct {
	Title       string    `json:"title" form:"title"`
	Description string    `json:"description" form:"description"`
	Provider    string    `json:"provider" form:"provider"`
	Amount      *int64    `json:"amount" form:"amount" validate:"omitempty,min=0"`
	Quota       *int64    `json:"quota" form:"quota" validate:"omitempty,min=0"`
	Status      string    `json:"status" form:"status" validate:"omitempty,oneof=draft published closed"`
	Tags        []string  `json:"tags" form:"tags"`
	PublishAt   time.Time `json:"publishAt" form:"publishAt"`
	Deadline    time.Time `json:"deadline" form:"deadline"`
	AnnounceAt  time.Time `json:"announceAt" form:"announceAt"`

	Document       *blob.Upload `json:"-" form:"-"`
	RemoveDocument bool         `json:"removeDocument" form:"removeDocument"`
}

func (us *UpdateScholarship) Validate(validate *validator.Validate) error {
	us.Title = core.CleanString(us.Title)
	us.Provider = core.CleanString(us.Provider)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status" validate:"omitempty,oneof=draft published closed"`
	Tag    string `query:"tag"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tag = core.CleanString(qf.Tag)
}

type (
	Repository interface {
		Create(ctx context.Context, sch Scholarship) (Scholarship, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Scholarship, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Scholarship, int64, error)
		Update(ctx context.Context, sch Scholarship) (Scholarship, error)
		IncrementViews(ctx context.Context, id primitive.ObjectID) error
		// TryIncrementApplications bumps the application count only while
		// below quota (quota 0 = unlimited); fails with ErrQuotaFull.
		TryIncrementApplications(ctx context.Context, id primitive.ObjectID, quota int64) error
		// DecrementApplications floors the counter at zero.
		DecrementApplications(ctx context.Context, id primitive.ObjectID) error
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	Service struct {
		repo     Repository
		apps     ApplicationRepository
		uploader *blob.Uploader
		logger   core.Logger
	}
)

func NewService(repo Repository, apps ApplicationRepository, uploader *blob.Uploader, logger core.Logger) *Service {
	return &Service{repo: repo, apps: apps, uploader: uploader, logger: logger}
}

func (svc *Service) Create(ctx context.Context, authorID primitive.ObjectID, ns NewScholarship) (Scholarship, error) {
	now := time.Now().UTC()
	sch := Scholarship{
		Title:       ns.Title,
		Description: ns.Description,
		Provider:    ns.Provider,
		Amount:      ns.Amount,
		Quota:       ns.Quota,
		Status:      ns.Status,
		Tags:        ns.Tags,
		PublishAt:   ns.PublishAt,
		Deadline:    ns.Deadline,
		AnnounceAt:  ns.AnnounceAt,
		Author:      authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sch.Status == "" {
		sch.Status = StatusDraft
	}

	if ns.Document != nil {
		ref, err := svc.uploader.Put(ctx, ns.Document.Data, ns.Document.Meta)
		if err != nil {
			svc.warn("storing document", err)
		}
		sch.DocumentFile = ref
	}
	return svc.repo.Create(ctx, sch)
}

func (svc *Service) Get(ctx context.Context, id primitive.ObjectID, countView bool) (Scholarship, error) {
	sch, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Scholarship{}, err
	}
	if countView {
		if err := svc.repo.IncrementViews(ctx, id); err != nil {
			svc.warn("incrementing views", err)
		} else {
			sch.Views++
		}
	}
	return sch, nil
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Scholarship, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, us UpdateScholarship) (Scholarship, error) {
	sch, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Scholarship{}, err
	}

	if us.Title != "" {
		sch.Title = us.Title
	}
	if us.Description != "" {
		sch.Description = us.Description
	}
	if us.Provider != "" {
		sch.Provider = us.Provider
	}
	if us.Amount != nil {
		sch.Amount = *us.Amount
	}
	if us.Quota != nil {
		sch.Quota = *us.Quota
	}
	if us.Status != "" {
		sch.Status = us.Status
	}
	if us.Tags != nil {
		sch.Tags = us.Tags
	}
	if !us.PublishAt.IsZero() {
		sch.PublishAt = us.PublishAt
	}
	if !us.Deadline.IsZero() {
		sch.Deadline = us.Deadline
	}
	if !us.AnnounceAt.IsZero() {
		sch.AnnounceAt = us.AnnounceAt
	}

	switch {
	case us.Document != nil:
		ref, err := svc.uploader.Replace(ctx, sch.DocumentFile, us.Document.Data, us.Document.Meta)
		if err != nil {
			return Scholarship{}, errors.Wrap(err, "replacing document")
		}
		sch.DocumentFile = ref
	case us.RemoveDocument:
		sch.DocumentFile = svc.uploader.Remove(ctx, sch.DocumentFile)
	}

	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, sch)
}

func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	sch, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	svc.uploader.Cleanup(ctx, sch.DocumentFile)
	return svc.repo.Delete(ctx, id)
}

func (svc *Service) warn(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err)
	}
}
