package question

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

// Question types
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeFillBlank      = "fill_blank"
)

var ErrNotFound = errors.New("question not found")

// Option is one selectable answer, addressed by its label.
type Option struct {
	Label   string `bson:"label" json:"label"`
	Content string `bson:"content" json:"content"`
}

// TestCase pairs a sample input with its expected output.
type TestCase struct {
	Input  string `bson:"input" json:"input"`
	Output string `bson:"output" json:"output"`
}

type Question struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	Content      string             `bson:"content,omitempty" json:"content,omitempty"`
	Type         string             `bson:"type" json:"type"`
	Subject      string             `bson:"subject,omitempty" json:"subject,omitempty"`
	Difficulty   int64              `bson:"difficulty,omitempty" json:"difficulty,omitempty"`
	Options      []Option           `bson:"options,omitempty" json:"options,omitempty"`
	Answer       []string           `bson:"answer" json:"answer,omitempty"`
	Explanation  string             `bson:"explanation,omitempty" json:"explanation,omitempty"`
	TestCases    []TestCase         `bson:"testCases,omitempty" json:"testCases,omitempty"`
	AttemptCount int64              `bson:"attemptCount" json:"attemptCount"`
	CorrectCount int64              `bson:"correctCount" json:"correctCount"`
	Author       primitive.ObjectID `bson:"author" json:"author"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"` // UTC
}

// Redact strips grading fields before the question is shown to a
// candidate.
func (q Question) Redact() Question {
	q.Answer = nil
	q.Explanation = ""
	return q
}

type NewQuestion struct {
	Title       string     `json:"title" validate:"required"`
	Content     string     `json:"content"`
	Type        string     `json:"type" validate:"required,oneof=single_choice multiple_choice true_false fill_blank"`
	Subject     string     `json:"subject"`
	Difficulty  int64      `json:"difficulty" validate:"min=0,max=5"`
	Options     []Option   `json:"options"`
	Answer      []string   `json:"answer" validate:"required,min=1"`
	Explanation string     `json:"explanation"`
	TestCases   []TestCase `json:"testCases"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Subject = core.CleanString(nq.Subject)
	return validate.Struct(nq)
}

type UpdateQuestion struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Type        string     `json:"type" validate:"omitempty,oneof=single_choice multiple_choice true_false fill_blank"`
	Subject     string     `json:"subject"`
	Difficulty  *int64     `json:"difficulty" validate:"omitempty,min=0,max=5"`
	Options     []Option   `json:"options"`
	Answer      []string   `json:"answer" validate:"omitempty,min=1"`
	Explanation string     `json:"explanation"`
	TestCases   []TestCase `json:"testCases"`
}

func (uq *UpdateQuestion) Validate(validate *validator.Validate) error {
	uq.Title = core.CleanString(uq.Title)
	uq.Subject = core.CleanString(uq.Subject)
	return validate.Struct(uq)
}

// Submission is a candidate's answer to one question.
type Submission struct {
	Answer []string `json:"answer" validate:"required,min=1"`
}

func (s *Submission) Validate(validate *validator.Validate) error {
	return validate.Struct(s)
}

// Result grades a submission; the right answer and explanation are
// revealed with the verdict.
type Result struct {
	Correct     bool     `json:"correct"`
	Answer      []string `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type QueryFilter struct {
	Search     string `query:"search"`
	Type       string `query:"type" validate:"omitempty,oneof=single_choice multiple_choice true_false fill_blank"`
	Subject    string `query:"subject"`
	Difficulty int64  `query:"difficulty" validate:"omitempty,min=0,max=5"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Subject = core.CleanString(qf.Subject)
}

type (
	Repository interface {
		Create(ctx context.Context, q Question) (Question, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Question, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Question, int64, error)
		Update(ctx context.Context, q Question) (Question, error)
		// IncrementCounters bumps attemptCount, and correctCount when the
		// submission was right.
		IncrementCounters(ctx context.Context, id primitive.ObjectID, correct bool) error
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	// Tracker upserts the submission activity so resubmissions overwrite.
	Tracker interface {
		Track(ctx context.Context, accountID primitive.ObjectID, nr activity.NewRecord) (activity.Record, error)
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

func (svc *Service) Create(ctx context.Context, authorID primitive.ObjectID, nq NewQuestion) (Question, error) {
	now := time.Now().UTC()
	q := Question{
		Title:       nq.Title,
		Content:     nq.Content,
		Type:        nq.Type,
		Subject:     nq.Subject,
		Difficulty:  nq.Difficulty,
		Options:     nq.Options,
		Answer:      nq.Answer,
		Explanation: nq.Explanation,
		TestCases:   nq.TestCases,
		Author:      authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.Create(ctx, q)
}

func (svc *Service) GetByID(ctx context.Context, id primitive.ObjectID) (Question, error) {
	return svc.repo.GetByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Question, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, uq UpdateQuestion) (Question, error) {
	q, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Question{}, err
	}

	if uq.Title != "" {
		q.Title = uq.Title
	}
	if uq.Content != "" {
		q.Content = uq.Content
	}
	if uq.Type != "" {
		q.Type = uq.Type
	}
	if uq.Subject != "" {
		q.Subject = uq.Subject
	}
	if uq.Difficulty != nil {
		q.Difficulty = *uq.Difficulty
	}
	if uq.Options != nil {
		q.Options = uq.Options
	}
	if uq.Answer != nil {
		q.Answer = uq.Answer
	}
	if uq.Explanation != "" {
		q.Explanation = uq.Explanation
	}
	if uq.TestCases != nil {
		q.TestCases = uq.TestCases
	}
	q.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, q)
}

// Submit grades the answer, bumps the attempt counters and upserts the
// submission activity so the latest attempt wins.
func (svc *Service) Submit(ctx context.Context, questionID, accountID primitive.ObjectID, sub Submission) (Result, error) {
	q, err := svc.repo.GetByID(ctx, questionID)
	if err != nil {
		return Result{}, err
	}

	correct := answersMatch(q.Answer, sub.Answer)
	if err = svc.repo.IncrementCounters(ctx, questionID, correct); err != nil {
		return Result{}, errors.Wrap(err, "incrementing counters")
	}

	if svc.tracker != nil {
		_, err = svc.tracker.Track(ctx, accountID, activity.NewRecord{
			Type:         activity.TypeQuestionSubmit,
			ResourceType: "question",
			Resource:     questionID.Hex(),
			Extra: map[string]interface{}{
				"answer":  sub.Answer,
				"correct": correct,
			},
		})
		if err != nil && svc.logger != nil {
			svc.logger.Warn("recording submission", err)
		}
	}

	return Result{Correct: correct, Answer: q.Answer, Explanation: q.Explanation}, nil
}

func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	return svc.repo.Delete(ctx, id)
}

// answersMatch compares answers order-insensitively; multiple-choice
// submissions may list options in any order.
func answersMatch(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	w := append([]string(nil), want...)
	g := append([]string(nil), got...)
	sort.Strings(w)
	sort.Strings(g)
	for i := range w {
		if w[i] != g[i] {
			return false
		}
	}
	return true
}
