package question

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

type fakeRepo struct {
	qs map[primitive.ObjectID]Question
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{qs: make(map[primitive.ObjectID]Question)}
}

func (r *fakeRepo) Create(_ context.Context, q Question) (Question, error) {
	q.ID = primitive.NewObjectID()
	r.qs[q.ID] = q
	return q, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id primitive.ObjectID) (Question, error) {
	if q, ok := r.qs[id]; ok {
		return q, nil
	}
	return Question{}, ErrNotFound
}

func (r *fakeRepo) Filter(context.Context, QueryFilter, core.ListArgs) ([]Question, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Update(_ context.Context, q Question) (Question, error) {
	r.qs[q.ID] = q
	return q, nil
}

func (r *fakeRepo) IncrementCounters(_ context.Context, id primitive.ObjectID, correct bool) error {
	q := r.qs[id]
	q.AttemptCount++
	if correct {
		q.CorrectCount++
	}
	r.qs[id] = q
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	delete(r.qs, id)
	return nil
}

type fakeTracker struct {
	tracked []activity.NewRecord
}

func (t *fakeTracker) Track(_ context.Context, _ primitive.ObjectID, nr activity.NewRecord) (activity.Record, error) {
	t.tracked = append(t.tracked, nr)
	return activity.Record{}, nil
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	tracker := &fakeTracker{}
	svc := NewService(repo, tracker, nil)

	q, err := svc.Create(ctx, primitive.NewObjectID(), NewQuestion{
		Title:       "Pick two",
		Type:        TypeMultipleChoice,
		Answer:      []string{"A", "C"},
		Explanation: "because",
	})
	require.NoError(t, err)

	acct := primitive.NewObjectID()

	t.Run("correct regardless of option order", func(t *testing.T) {
		res, err := svc.Submit(ctx, q.ID, acct, Submission{Answer: []string{"C", "A"}})
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.Equal(t, []string{"A", "C"}, res.Answer)
		assert.Equal(t, "because", res.Explanation)
	})

	t.Run("wrong answer", func(t *testing.T) {
		res, err := svc.Submit(ctx, q.ID, acct, Submission{Answer: []string{"A", "B"}})
		require.NoError(t, err)
		assert.False(t, res.Correct)
	})

	t.Run("partial answer is wrong", func(t *testing.T) {
		res, err := svc.Submit(ctx, q.ID, acct, Submission{Answer: []string{"A"}})
		require.NoError(t, err)
		assert.False(t, res.Correct)
	})

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AttemptCount)
	assert.Equal(t, int64(1), got.CorrectCount)

	require.Len(t, tracker.tracked, 3)
	assert.Equal(t, activity.TypeQuestionSubmit, tracker.tracked[0].Type)
	assert.Equal(t, true, tracker.tracked[0].Extra["correct"])
}

func TestRedact(t *testing.T) {
	q := Question{Answer: []string{"A"}, Explanation: "why"}
	red := q.Redact()
	assert.Nil(t, red.Answer)
	assert.Empty(t, red.Explanation)
	assert.Equal(t, []string{"A"}, q.Answer)
}
