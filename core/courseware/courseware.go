package courseware

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

// Types
const (
	TypeLecture  = "lecture"
	TypeExercise = "exercise"
	TypeVideo    = "video"
	TypeReading  = "reading"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var ErrNotFound = errors.New("courseware not found")

type Courseware struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Type          string             `bson:"type" json:"type"`
	Subject       string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Status        string             `bson:"status" json:"status"`
	Tags          []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	DocumentFile  blob.Reference     `bson:"documentFile,omitempty" json:"documentFile"`
	Thumbnail     blob.Reference     `bson:"thumbnail,omitempty" json:"thumbnail"`
	Author        primitive.ObjectID `bson:"author" json:"author"`
	Views         int64              `bson:"views" json:"views"`
	FavoriteCount int64              `bson:"favoriteCount" json:"favoriteCount"`
	Downloads     int64              `bson:"downloads" json:"downloads"`
	Rating        float64            `bson:"rating" json:"rating"`
	RatingCount   int64              `bson:"ratingCount" json:"ratingCount"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"` // UTC
}

func (cw *Courseware) BlobRefs() []blob.Reference {
	return []blob.Reference{cw.DocumentFile, cw.Thumbnail}
}

type NewCourseware struct {
	Title       string   `json:"title" form:"title" validate:"required"`
	Description string   `json:"description" form:"description"`
	Type        string   `json:"type" form:"type" validate:"required,oneof=lecture exercise video reading"`
	Subject     string   `json:"subject" form:"subject"`
	Status      string   `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
	Tags        []string `json:"tags" form:"tags"`

	Document  *blob.Upload `json:"-" form:"-"`
	Thumbnail *blob.Upload `json:"-" form:"-"`
}

func (nc *NewCourseware) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Subject = core.CleanString(nc.Subject)
	return validate.Struct(nc)
}

type UpdateCourseware struct {
	Title       string   `json:"title" form:"title"`
	Description string   `json:"description" form:"description"`
	Type        string   `json:"type" form:"type" validate:"omitempty,oneof=lecture exercise video reading"`
	Subject     string   `json:"subject" form:"subject"`
	Status      string   `json:"status" form:"status" validate:"omitempty,oneof=draft published archived"`
	Tags        []string `json:"tags" form:"tags"`

	Document        *blob.Upload `json:"-" form:"-"`
	Thumbnail       *blob.Upload `json:"-" form:"-"`
	RemoveThumbnail bool         `json:"removeThumbnail" form:"removeThumbnail"`
}

func (uc *UpdateCourseware) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Subject = core.CleanString(uc.Subject)
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search  string `query:"search"`
	Type    string `query:"type" validate:"omitempty,oneof=lecture exercise video reading"`
	Subject string `query:"subject"`
	Status  string `query:"status" validate:"omitempty,oneof=draft published archived"`
	Tag     string `query:"tag"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Subject = core.CleanString(qf.Subject)
	qf.Tag = core.CleanString(qf.Tag)
}

type (
	Repository interface {
		Create(ctx context.Context, cw Courseware) (Courseware, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Courseware, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Courseware, int64, error)
		Update(ctx context.Context, cw Courseware) (Courseware, error)
		IncrementViews(ctx context.Context, id primitive.ObjectID) error
		IncrementDownloads(ctx context.Context, id primitive.ObjectID) error
		// IncrementFavorites floors the counter at zero on decrement.
		IncrementFavorites(ctx context.Context, id primitive.ObjectID, delta int64) error
		// AddRating folds score into the running average and bumps ratingCount.
		AddRating(ctx context.Context, id primitive.ObjectID, score int) error
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	Service struct {
		repo     Repository
		uploader *blob.Uploader
		logger   core.Logger
	}
)

func NewService(repo Repository, uploader *blob.Uploader, logger core.Logger) *Service {
	return &Service{repo: repo, uploader: uploader, logger: logger}
}

func (svc *Service) Create(ctx context.Context, authorID primitive.ObjectID, nc NewCourseware) (Courseware, error) {
	now := time.Now().UTC()
	cw := Courseware{
		Title:       nc.Title,
		Description: nc.Description,
		Type:        nc.Type,
		Subject:     nc.Subject,
		Status:      nc.Status,
		Tags:        nc.Tags,
		Author:      authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if cw.Status == "" {
		cw.Status = StatusDraft
	}

	if nc.Document != nil {
		ref, err := svc.uploader.Put(ctx, nc.Document.Data, nc.Document.Meta)
		if err != nil {
			svc.warn("storing document", err)
		}
		cw.DocumentFile = ref
	}
	if nc.Thumbnail != nil {
		ref, err := svc.uploader.Put(ctx, nc.Thumbnail.Data, nc.Thumbnail.Meta)
		if err != nil {
			svc.warn("storing thumbnail", err)
		}
		cw.Thumbnail = ref
	}
	return svc.repo.Create(ctx, cw)
}

func (svc *Service) Get(ctx context.Context, id primitive.ObjectID, countView bool) (Courseware, error) {
	cw, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Courseware{}, err
	}
	if countView {
		if err := svc.repo.IncrementViews(ctx, id); err != nil {
			svc.warn("incrementing views", err)
		} else {
			cw.Views++
		}
	}
	return cw, nil
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Courseware, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, uc UpdateCourseware) (Courseware, error) {
	cw, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Courseware{}, err
	}

	if uc.Title != "" {
		cw.Title = uc.Title
	}
	if uc.Description != "" {
		cw.Description = uc.Description
	}
	if uc.Type != "" {
		cw.Type = uc.Type
	}
	if uc.Subject != "" {
		cw.Subject = uc.Subject
	}
	if uc.Status != "" {
		cw.Status = uc.Status
	}
	if uc.Tags != nil {
		cw.Tags = uc.Tags
	}

	if uc.Document != nil {
		ref, err := svc.uploader.Replace(ctx, cw.DocumentFile, uc.Document.Data, uc.Document.Meta)
		if err != nil {
			return Courseware{}, errors.Wrap(err, "replacing document")
		}
		cw.DocumentFile = ref
	}
	switch {
	case uc.Thumbnail != nil:
		ref, err := svc.uploader.Replace(ctx, cw.Thumbnail, uc.Thumbnail.Data, uc.Thumbnail.Meta)
		if err != nil {
			return Courseware{}, errors.Wrap(err, "replacing thumbnail")
		}
		cw.Thumbnail = ref
	case uc.RemoveThumbnail:
		cw.Thumbnail = svc.uploader.Remove(ctx, cw.Thumbnail)
	}

	cw.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, cw)
}

// DownloadRef returns the document reference and counts the download.
func (svc *Service) DownloadRef(ctx context.Context, id primitive.ObjectID) (blob.Reference, error) {
	cw, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return blob.None(), err
	}
	if cw.DocumentFile.IsNone() {
		return blob.None(), blob.ErrNotFound
	}
	if err := svc.repo.IncrementDownloads(ctx, id); err != nil {
		svc.warn("incrementing downloads", err)
	}
	return cw.DocumentFile, nil
}

// Rate folds a 1..5 score into the running average rating.
func (svc *Service) Rate(ctx context.Context, id primitive.ObjectID, score int) (Courseware, error) {
	if err := svc.repo.AddRating(ctx, id, score); err != nil {
		return Courseware{}, err
	}
	return svc.repo.GetByID(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	cw, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	svc.uploader.Cleanup(ctx, cw.BlobRefs()...)
	return svc.repo.Delete(ctx, id)
}

func (svc *Service) warn(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err)
	}
}
