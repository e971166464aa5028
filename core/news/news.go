package news

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
	StatusArchived  = "archived"
)

// Categories
const (
	CategoryAnnouncement = "announcement"
	CategoryPolicy       = "policy"
	CategoryEvent        = "event"
	CategoryGeneral      = "general"
)

var ErrNotFound = errors.New("article not found")

type Article struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	Summary      string             `bson:"summary,omitempty" json:"summary,omitempty"`
	Content      string             `bson:"content,omitempty" json:"content,omitempty"`
	Category     string             `bson:"category" json:"category"`
	Status       string             `bson:"status" json:"status"`
	Tags         []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	CoverImage   blob.Reference     `bson:"coverImage,omitempty" json:"coverImage"`
	DocumentFile blob.Reference     `bson:"documentFile,omitempty" json:"documentFile"`
	DocumentName string             `bson:"documentName,omitempty" json:"documentName,omitempty"`
	DocumentType string             `bson:"documentType,omitempty" json:"documentType,omitempty"`
	Author       primitive.ObjectID `bson:"author" json:"author"`
	Views        int64              `bson:"views" json:"views"`
	PublishedAt  time.Time          `bson:"publishedAt,omitempty" json:"publishedAt"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"` // UTC
}

func (a *Article) BlobRefs() []blob.Reference {
	return []blob.Reference{a.CoverImage, a.DocumentFile}
}

type NewArticle struct {
	Title    string   `json:"title" form:"title" validate:"required"`
	Summary  string   `json:"summary" form:"summary"`
	Content  string   `json:"content" form:"content"`
	Category string   `json:"category" form:"category" validate:"required,oneof=announcement policy event general"`
	Status   string   `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
	Tags     []string `json:"tags" form:"tags"`

	Cover        *blob.Upload `json:"-" form:"-"`
	Document     *blob.Upload `json:"-" form:"-"`
	DocumentName string       `json:"documentName" form:"documentName"`
	DocumentType string       `json:"documentType" form:"documentType"`
}

func (na *NewArticle) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Summary = core.CleanString(na.Summary)
	return validate.Struct(na)
}

type UpdateArticle struct {
	Title    string   `json:"title" form:"title"`
	Summary  string   `json:"summary" form:"summary"`
	Content  string   `json:"content" form:"content"`
	Category string   `json:"category" form:"category" validate:"omitempty,oneof=announcement policy event general"`
	Status   string   `json:"status" form:"status" validate:"omitempty,oneof=draft published archived"`
	Tags     []string `json:"tags" form:"tags"`

	Cover          *blob.Upload `json:"-" form:"-"`
	RemoveCover    bool         `json:"removeCover" form:"removeCover"`
	Document       *blob.Upload `json:"-" form:"-"`
	RemoveDocument bool         `json:"removeDocument" form:"removeDocument"`
	DocumentName   string       `json:"documentName" form:"documentName"`
	DocumentType   string       `json:"documentType" form:"documentType"`
}

func (ua *UpdateArticle) Validate(validate *validator.Validate) error {
	ua.Title = core.CleanString(ua.Title)
	ua.Summary = core.CleanString(ua.Summary)
	return validate.Struct(ua)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Category string `query:"category" validate:"omitempty,oneof=announcement policy event general"`
	Status   string `query:"status" validate:"omitempty,oneof=draft published archived"`
	Tag      string `query:"tag"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tag = core.CleanString(qf.Tag)
}

type (
	Repository interface {
		Create(ctx context.Context, art Article) (Article, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Article, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Article, int64, error)
		Update(ctx context.Context, art Article) (Article, error)
		IncrementViews(ctx context.Context, id primitive.ObjectID) error
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

// Create stores attachments first but never blocks article creation on
// blob-store health; failed uploads degrade to whatever reference the
// uploader could produce.
func (svc *Service) Create(ctx context.Context, authorID primitive.ObjectID, na NewArticle) (Article, error) {
	now := time.Now().UTC()
	art := Article{
		Title:        na.Title,
		Summary:      na.Summary,
		Content:      na.Content,
		Category:     na.Category,
		Status:       na.Status,
		Tags:         na.Tags,
		DocumentName: na.DocumentName,
		DocumentType: na.DocumentType,
		Author:       authorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if art.Status == "" {
		art.Status = StatusDraft
	}
	if art.Status == StatusPublished {
		art.PublishedAt = now
	}

	if na.Cover != nil {
		ref, err := svc.uploader.Put(ctx, na.Cover.Data, na.Cover.Meta)
		if err != nil {
			svc.warn("storing cover image", err)
		}
		art.CoverImage = ref
	}
	if na.Document != nil {
		ref, err := svc.uploader.Put(ctx, na.Document.Data, na.Document.Meta)
		if err != nil {
			svc.warn("storing document", err)
		}
		art.DocumentFile = ref
	}
	return svc.repo.Create(ctx, art)
}

// Get returns the article, bumping its view counter when asked.
func (svc *Service) Get(ctx context.Context, id primitive.ObjectID, countView bool) (Article, error) {
	art, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Article{}, err
	}
	if countView {
		if err := svc.repo.IncrementViews(ctx, id); err != nil {
			svc.warn("incrementing views", err)
		} else {
			art.Views++
		}
	}
	return art, nil
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Article, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

// Update applies edits and the attachment lifecycle: a replacement
// upload must succeed before the old blob is dropped, an explicit
// removal clears the reference even when the delete fails.
func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, ua UpdateArticle) (Article, error) {
	art, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Article{}, err
	}

	if ua.Title != "" {
		art.Title = ua.Title
	}
	if ua.Summary != "" {
		art.Summary = ua.Summary
	}
	if ua.Content != "" {
		art.Content = ua.Content
	}
	if ua.Category != "" {
		art.Category = ua.Category
	}
	if ua.Tags != nil {
		art.Tags = ua.Tags
	}
	if ua.DocumentName != "" {
		art.DocumentName = ua.DocumentName
	}
	if ua.DocumentType != "" {
		art.DocumentType = ua.DocumentType
	}
	if ua.Status != "" && ua.Status != art.Status {
		if ua.Status == StatusPublished {
			art.PublishedAt = time.Now().UTC()
		}
		art.Status = ua.Status
	}

	switch {
	case ua.Cover != nil:
		ref, err := svc.uploader.Replace(ctx, art.CoverImage, ua.Cover.Data, ua.Cover.Meta)
		if err != nil {
			return Article{}, errors.Wrap(err, "replacing cover image")
		}
		art.CoverImage = ref
	case ua.RemoveCover:
		art.CoverImage = svc.uploader.Remove(ctx, art.CoverImage)
	}

	switch {
	case ua.Document != nil:
		ref, err := svc.uploader.Replace(ctx, art.DocumentFile, ua.Document.Data, ua.Document.Meta)
		if err != nil {
			return Article{}, errors.Wrap(err, "replacing document")
		}
		art.DocumentFile = ref
	case ua.RemoveDocument:
		art.DocumentFile = svc.uploader.Remove(ctx, art.DocumentFile)
		art.DocumentName = ""
		art.DocumentType = ""
	}

	art.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, art)
}

// Delete removes the article; attachment cleanup is best-effort and
// never aborts the delete.
func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	art, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	svc.uploader.Cleanup(ctx, art.BlobRefs()...)
	return svc.repo.Delete(ctx, id)
}

func (svc *Service) warn(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err)
	}
}
