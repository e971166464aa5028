package exam

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusClosed    = "closed"
)

var (
	ErrNotFound          = errors.New("exam not found")
	ErrFull              = errors.New("exam has reached its participant limit")
	ErrAlreadyRegistered = errors.New("already registered for this exam")
	ErrNotOpen           = errors.New("exam is not open for registration")
	ErrInvalidScores     = errors.New("passing score cannot exceed total score")
)

// QuestionRef assigns a score to a question within the exam.
type QuestionRef struct {
	Question primitive.ObjectID `bson:"question" json:"question"`
	Score    int64              `bson:"score" json:"score"`
}

type Exam struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title               string             `bson:"title" json:"title"`
	Description         string             `bson:"description,omitempty" json:"description,omitempty"`
	Subject             string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Status              string             `bson:"status" json:"status"`
	Questions           []QuestionRef      `bson:"questions,omitempty" json:"questions"`
	TotalScore          int64              `bson:"totalScore" json:"totalScore"`
	PassingScore        int64              `bson:"passingScore" json:"passingScore"`
	Duration            time.Duration      `bson:"duration,omitempty" json:"duration,omitempty"`
	StartAt             time.Time          `bson:"startAt,omitempty" json:"startAt"`
	EndAt               time.Time          `bson:"endAt,omitempty" json:"endAt"`
	MaxParticipants     int64              `bson:"maxParticipants" json:"maxParticipants"` // 0 = unlimited
	CurrentParticipants int64              `bson:"currentParticipants" json:"currentParticipants"`
	Author              primitive.ObjectID `bson:"author" json:"author"`
	CreatedAt           time.Time          `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt           time.Time          `bson:"updatedAt" json:"updatedAt"` // UTC
}

type NewQuestionRef struct {
	Question string `json:"question" validate:"required,objectid"`
	Score    int64  `json:"score" validate:"required,min=1"`
}

type NewExam struct {
	Title           string           `json:"title" validate:"required"`
	Description     string           `json:"description"`
	Subject         string           `json:"subject"`
	Status          string           `json:"status" validate:"omitempty,oneof=draft published"`
	Questions       []NewQuestionRef `json:"questions" validate:"omitempty,dive"`
	PassingScore    int64            `json:"passingScore" validate:"min=0"`
	DurationMinutes int64            `json:"durationMinutes" validate:"min=0"`
	StartAt         time.Time        `json:"startAt"`
	EndAt           time.Time        `json:"endAt"`
	MaxParticipants int64            `json:"maxParticipants" validate:"min=0"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Subject = core.CleanString(ne.Subject)
	return validate.Struct(ne)
}

type UpdateExam struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Subject         string           `json:"subject"`
	Status          string           `json:"status" validate:"omitempty,oneof=draft published closed"`
	Questions       []NewQuestionRef `json:"questions" validate:"omitempty,dive"`
	PassingScore    *int64           `json:"passingScore" validate:"omitempty,min=0"`
	DurationMinutes *int64           `json:"durationMinutes" validate:"omitempty,min=0"`
	StartAt         time.Time        `json:"startAt"`
	EndAt           time.Time        `json:"endAt"`
	MaxParticipants *int64           `json:"maxParticipants" validate:"omitempty,min=0"`
}

func (ue *UpdateExam) Validate(validate *validator.Validate) error {
	ue.Title = core.CleanString(ue.Title)
	ue.Subject = core.CleanString(ue.Subject)
	return validate.Struct(ue)
}

type QueryFilter struct {
	Search  string `query:"search"`
	Subject string `query:"subject"`
	Status  string `query:"status" validate:"omitempty,oneof=draft published closed"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Subject = core.CleanString(qf.Subject)
}

type (
	Repository interface {
		Create(ctx context.Context, ex Exam) (Exam, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Exam, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Exam, int64, error)
		Update(ctx context.Context, ex Exam) (Exam, error)
		// TryIncrementParticipants atomically bumps the participant count
		// only while it is below max (max 0 = unlimited); it fails with
		// ErrFull when the exam is at capacity.
		TryIncrementParticipants(ctx context.Context, id primitive.ObjectID, max int64) error
		DecrementParticipants(ctx context.Context, id primitive.ObjectID) error
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	// Tracker is the slice of the activity service used to keep
	// registrations unique per account.
	Tracker interface {
		Track(ctx context.Context, accountID primitive.ObjectID, nr activity.NewRecord) (activity.Record, error)
		DeleteBy(ctx context.Context, accountID primitive.ObjectID, typ string, resource primitive.ObjectID) error
	}

	Service struct {
		repo    Repository
		tracker Tracker
		logger  core.Logger
	}
)

func NewService(repo Repository, tracker Tracker, logger core.Logger) *Service {
	return &Service{repo: repo, tracker: tracker, logger: logger}
}

func (svc *Service) Create(ctx context.Context, authorID primitive.ObjectID, ne NewExam) (Exam, error) {
	now := time.Now().UTC()
	ex := Exam{
		Title:           ne.Title,
		Description:     ne.Description,
		Subject:         ne.Subject,
		Status:          ne.Status,
		PassingScore:    ne.PassingScore,
		Duration:        time.Duration(ne.DurationMinutes) * time.Minute,
		StartAt:         ne.StartAt,
		EndAt:           ne.EndAt,
		MaxParticipants: ne.MaxParticipants,
		Author:          authorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if ex.Status == "" {
		ex.Status = StatusDraft
	}

	var err error
	if ex.Questions, ex.TotalScore, err = buildQuestionRefs(ne.Questions); err != nil {
		return Exam{}, err
	}
	if ex.PassingScore > ex.TotalScore {
		return Exam{}, ErrInvalidScores
	}
	return svc.repo.Create(ctx, ex)
}

func (svc *Service) GetByID(ctx context.Context, id primitive.ObjectID) (Exam, error) {
	return svc.repo.GetByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Exam, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, ue UpdateExam) (Exam, error) {
	ex, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Exam{}, err
	}

	if ue.Title != "" {
		ex.Title = ue.Title
	}
	if ue.Description != "" {
		ex.Description = ue.Description
	}
	if ue.Subject != "" {
		ex.Subject = ue.Subject
	}
	if ue.Status != "" {
		ex.Status = ue.Status
	}
	if ue.Questions != nil {
		if ex.Questions, ex.TotalScore, err = buildQuestionRefs(ue.Questions); err != nil {
			return Exam{}, err
		}
	}
	if ue.PassingScore != nil {
		ex.PassingScore = *ue.PassingScore
	}
	if ue.DurationMinutes != nil {
		ex.Duration = time.Duration(*ue.DurationMinutes) * time.Minute
	}
	if !ue.StartAt.IsZero() {
		ex.StartAt = ue.StartAt
	}
	if !ue.EndAt.IsZero() {
		ex.EndAt = ue.EndAt
	}
	if ue.MaxParticipants != nil {
		ex.MaxParticipants = *ue.MaxParticipants
	}

	if ex.PassingScore > ex.TotalScore {
		return Exam{}, ErrInvalidScores
	}
	ex.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, ex)
}

// Register signs the account up for the exam. The activity record keeps
// registrations unique per account; the participant counter is bumped
// only while below the cap, and the record is compensated away when the
// exam turns out to be full.
func (svc *Service) Register(ctx context.Context, examID, accountID primitive.ObjectID) error {
	ex, err := svc.repo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if ex.Status != StatusPublished {
		return ErrNotOpen
	}
	now := time.Now()
	if !ex.StartAt.IsZero() && now.After(ex.StartAt) {
		return ErrNotOpen
	}

	_, err = svc.tracker.Track(ctx, accountID, activity.NewRecord{
		Type:         activity.TypeExamRegister,
		ResourceType: "exam",
		Resource:     examID.Hex(),
	})
	if err != nil {
		if errors.Cause(err) == activity.ErrExists {
			return ErrAlreadyRegistered
		}
		return errors.Wrap(err, "recording registration")
	}

	if err = svc.repo.TryIncrementParticipants(ctx, examID, ex.MaxParticipants); err != nil {
		if dErr := svc.tracker.DeleteBy(ctx, accountID, activity.TypeExamRegister, examID); dErr != nil && svc.logger != nil {
			svc.logger.Warn("removing registration record", dErr)
		}
		return err
	}
	return nil
}

// Unregister drops the account's registration and frees its seat.
func (svc *Service) Unregister(ctx context.Context, examID, accountID primitive.ObjectID) error {
	if err := svc.tracker.DeleteBy(ctx, accountID, activity.TypeExamRegister, examID); err != nil {
		if errors.Cause(err) == activity.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	return svc.repo.DecrementParticipants(ctx, examID)
}

func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	return svc.repo.Delete(ctx, id)
}

func buildQuestionRefs(refs []NewQuestionRef) ([]QuestionRef, int64, error) {
	if refs == nil {
		return nil, 0, nil
	}
	out := make([]QuestionRef, 0, len(refs))
	var total int64
	for _, nr := range refs {
		qid, err := primitive.ObjectIDFromHex(nr.Question)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "questions", Error: "must be valid question ids"})
		}
		out = append(out, QuestionRef{Question: qid, Score: nr.Score})
		total += nr.Score
	}
	return out, total, nil
}
