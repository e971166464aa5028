package exam

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

type fakeRepo struct {
	exams map[primitive.ObjectID]Exam
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{exams: make(map[primitive.ObjectID]Exam)}
}

func (r *fakeRepo) Create(_ context.Context, ex Exam) (Exam, error) {
	ex.ID = primitive.NewObjectID()
	r.exams[ex.ID] = ex
	return ex, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id primitive.ObjectID) (Exam, error) {
	if ex, ok := r.exams[id]; ok {
		return ex, nil
	}
	return Exam{}, ErrNotFound
}

func (r *fakeRepo) Filter(context.Context, QueryFilter, core.ListArgs) ([]Exam, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Update(_ context.Context, ex Exam) (Exam, error) {
	r.exams[ex.ID] = ex
	return ex, nil
}

func (r *fakeRepo) TryIncrementParticipants(_ context.Context, id primitive.ObjectID, max int64) error {
	ex, ok := r.exams[id]
	if !ok {
		return ErrNotFound
	}
	if max > 0 && ex.CurrentParticipants >= max {
		return ErrFull
	}
	ex.CurrentParticipants++
	r.exams[id] = ex
	return nil
}

func (r *fakeRepo) DecrementParticipants(_ context.Context, id primitive.ObjectID) error {
	ex, ok := r.exams[id]
	if !ok {
		return ErrNotFound
	}
	if ex.CurrentParticipants > 0 {
		ex.CurrentParticipants--
	}
	r.exams[id] = ex
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	delete(r.exams, id)
	return nil
}

type trackKey struct {
	account  primitive.ObjectID
	typ      string
	resource string
}

type fakeTracker struct {
	recs map[trackKey]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{recs: make(map[trackKey]bool)}
}

func (t *fakeTracker) Track(_ context.Context, accountID primitive.ObjectID, nr activity.NewRecord) (activity.Record, error) {
	k := trackKey{accountID, nr.Type, nr.Resource}
	if t.recs[k] {
		return activity.Record{}, activity.ErrExists
	}
	t.recs[k] = true
	return activity.Record{Account: accountID, Type: nr.Type}, nil
}

func (t *fakeTracker) DeleteBy(_ context.Context, accountID primitive.ObjectID, typ string, resource primitive.ObjectID) error {
	k := trackKey{accountID, typ, resource.Hex()}
	if !t.recs[k] {
		return activity.ErrNotFound
	}
	delete(t.recs, k)
	return nil
}

func TestCreateValidatesScores(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeRepo(), newFakeTracker(), nil)
	q1 := primitive.NewObjectID().Hex()
	q2 := primitive.NewObjectID().Hex()

	ex, err := svc.Create(ctx, primitive.NewObjectID(), NewExam{
		Title:        "Midterm",
		Questions:    []NewQuestionRef{{Question: q1, Score: 40}, {Question: q2, Score: 60}},
		PassingScore: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), ex.TotalScore)

	_, err = svc.Create(ctx, primitive.NewObjectID(), NewExam{
		Title:        "Broken",
		Questions:    []NewQuestionRef{{Question: q1, Score: 40}},
		PassingScore: 60,
	})
	assert.Equal(t, ErrInvalidScores, errors.Cause(err))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tracker := newFakeTracker()
	svc := NewService(repo, tracker, nil)

	ex, err := repo.Create(ctx, Exam{Title: "Finals", Status: StatusPublished, MaxParticipants: 2})
	require.NoError(t, err)

	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	require.NoError(t, svc.Register(ctx, ex.ID, a))
	require.NoError(t, svc.Register(ctx, ex.ID, b))

	t.Run("duplicate registration", func(t *testing.T) {
		assert.Equal(t, ErrAlreadyRegistered, errors.Cause(svc.Register(ctx, ex.ID, a)))
	})

	t.Run("capacity reached", func(t *testing.T) {
		err := svc.Register(ctx, ex.ID, c)
		assert.Equal(t, ErrFull, errors.Cause(err))
		// the registration record must have been compensated away
		assert.False(t, tracker.recs[trackKey{c, activity.TypeExamRegister, ex.ID.Hex()}])
	})

	t.Run("unregister frees a seat", func(t *testing.T) {
		require.NoError(t, svc.Unregister(ctx, ex.ID, b))
		assert.NoError(t, svc.Register(ctx, ex.ID, c))
	})

	t.Run("draft exam not open", func(t *testing.T) {
		draft, err := repo.Create(ctx, Exam{Title: "Draft", Status: StatusDraft})
		require.NoError(t, err)
		assert.Equal(t, ErrNotOpen, errors.Cause(svc.Register(ctx, draft.ID, a)))
	})
}
