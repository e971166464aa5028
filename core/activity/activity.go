package activity

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
)

// Activity types
const (
	TypeCoursewareFavorite = "courseware_favorite"
	TypeCoursewareDownload = "courseware_download"
	TypeExamRegister       = "exam_register"
	TypeQuestionSubmit     = "question_submit"
	TypeScholarshipView    = "scholarship_view"
)

var (
	ErrNotFound = errors.New("activity not found")
	ErrExists   = errors.New("activity already recorded")

	AllTypes = []string{
		TypeCoursewareFavorite,
		TypeCoursewareDownload,
		TypeExamRegister,
		TypeQuestionSubmit,
		TypeScholarshipView,
	}
)

// Record links an account to an action on a resource. At most one
// record exists per (account, type, resource); question submissions are
// upserted instead so resubmitting overwrites rather than duplicates.
type Record struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Account      primitive.ObjectID     `bson:"account" json:"account"`
	Type         string                 `bson:"type" json:"type"`
	ResourceType string                 `bson:"resourceType,omitempty" json:"resourceType,omitempty"`
	Resource     primitive.ObjectID     `bson:"resource" json:"resource"`
	Extra        map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
	CreatedAt    time.Time              `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt    time.Time              `bson:"updatedAt" json:"updatedAt"` // UTC
}

type NewRecord struct {
	Type         string                 `json:"type" validate:"required,oneof=courseware_favorite courseware_download exam_register question_submit scholarship_view"`
	ResourceType string                 `json:"resourceType"`
	Resource     string                 `json:"resource" validate:"required,objectid"`
	Extra        map[string]interface{} `json:"extra"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	return validate.Struct(nr)
}

type QueryFilter struct {
	Type     string `query:"type" validate:"omitempty,oneof=courseware_favorite courseware_download exam_register question_submit scholarship_view"`
	Resource string `query:"resource" validate:"omitempty,objectid"`
}

type (
	Repository interface {
		// Create fails with ErrExists on a duplicate (account, type, resource).
		Create(ctx context.Context, rec Record) (Record, error)
		// Upsert overwrites the existing (account, type, resource) record.
		Upsert(ctx context.Context, rec Record) (Record, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Record, error)
		Find(ctx context.Context, account primitive.ObjectID, typ string, resource primitive.ObjectID) (Record, error)
		Filter(ctx context.Context, account primitive.ObjectID, filter QueryFilter, args core.ListArgs) ([]Record, int64, error)
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	// FavoriteCounter maintains the favorite count on the resource a
	// favorite activity points at. Decrements floor at zero.
	FavoriteCounter interface {
		IncrementFavorites(ctx context.Context, id primitive.ObjectID, delta int64) error
	}

	Service struct {
		repo      Repository
		favorites FavoriteCounter
		logger    core.Logger
	}
)

func NewService(repo Repository, favorites FavoriteCounter, logger core.Logger) *Service {
	return &Service{repo: repo, favorites: favorites, logger: logger}
}

// Track records an activity for the account. Favorite records bump the
// resource's favorite counter; submission records are idempotent.
func (svc *Service) Track(ctx context.Context, accountID primitive.ObjectID, nr NewRecord) (Record, error) {
	resID, err := primitive.ObjectIDFromHex(nr.Resource)
	if err != nil {
		return Record{}, core.NewValidationError(err, core.FieldError{Field: "resource", Error: "must be a valid resource id"})
	}

	now := time.Now().UTC()
	rec := Record{
		Account:      accountID,
		Type:         nr.Type,
		ResourceType: nr.ResourceType,
		Resource:     resID,
		Extra:        nr.Extra,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if nr.Type == TypeQuestionSubmit {
		return svc.repo.Upsert(ctx, rec)
	}

	rec, err = svc.repo.Create(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if rec.Type == TypeCoursewareFavorite {
		svc.bumpFavorites(ctx, rec.Resource, 1)
	}
	return rec, nil
}

// Exists reports whether the account already has a record of this type
// for the resource.
func (svc *Service) Exists(ctx context.Context, accountID primitive.ObjectID, typ string, resource primitive.ObjectID) (bool, error) {
	_, err := svc.repo.Find(ctx, accountID, typ, resource)
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (svc *Service) GetByID(ctx context.Context, id primitive.ObjectID) (Record, error) {
	return svc.repo.GetByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, accountID primitive.ObjectID, filter QueryFilter, args core.ListArgs) ([]Record, int64, error) {
	return svc.repo.Filter(ctx, accountID, filter, args)
}

// Delete removes the record and reverses its favorite count.
func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	rec, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.Delete(ctx, rec.ID); err != nil {
		return err
	}
	if rec.Type == TypeCoursewareFavorite {
		svc.bumpFavorites(ctx, rec.Resource, -1)
	}
	return nil
}

// DeleteBy removes the account's record for (type, resource), for
// unfavorite-style calls that address the resource instead of the
// record id.
func (svc *Service) DeleteBy(ctx context.Context, accountID primitive.ObjectID, typ string, resource primitive.ObjectID) error {
	rec, err := svc.repo.Find(ctx, accountID, typ, resource)
	if err != nil {
		return err
	}
	return svc.Delete(ctx, rec.ID)
}

func (svc *Service) bumpFavorites(ctx context.Context, id primitive.ObjectID, delta int64) {
	if svc.favorites == nil {
		return
	}
	if err := svc.favorites.IncrementFavorites(ctx, id, delta); err != nil && svc.logger != nil {
		svc.logger.Warn("adjusting favorite count", err)
	}
}
