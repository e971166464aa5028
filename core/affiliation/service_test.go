package affiliation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
	"github.com/dienlabs/eduportal/core/user"
)

type fakeRepo struct {
	recs      map[primitive.ObjectID]Record
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{recs: make(map[primitive.ObjectID]Record)}
}

func (r *fakeRepo) Create(_ context.Context, rec Record) (Record, error) {
	rec.ID = primitive.NewObjectID()
	r.recs[rec.ID] = rec
	return rec, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id primitive.ObjectID) (Record, error) {
	if rec, ok := r.recs[id]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (r *fakeRepo) GetByAccountKind(_ context.Context, account primitive.ObjectID, kind string) (Record, error) {
	for _, rec := range r.recs {
		if rec.Account == account && rec.Kind == kind {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *fakeRepo) Filter(context.Context, QueryFilter, core.ListArgs) ([]Record, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Update(_ context.Context, rec Record) (Record, error) {
	if r.updateErr != nil {
		return Record{}, r.updateErr
	}
	r.recs[rec.ID] = rec
	return rec, nil
}

func (r *fakeRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	delete(r.recs, id)
	return nil
}

type fakeDirectory struct {
	affiliations map[primitive.ObjectID]map[string]*primitive.ObjectID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{affiliations: make(map[primitive.ObjectID]map[string]*primitive.ObjectID)}
}

func (d *fakeDirectory) GetByID(_ context.Context, id primitive.ObjectID) (user.Account, error) {
	return user.Account{ID: id}, nil
}

func (d *fakeDirectory) SetAffiliation(_ context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error {
	if d.affiliations[id] == nil {
		d.affiliations[id] = make(map[string]*primitive.ObjectID)
	}
	d.affiliations[id][field] = ref
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeDirectory) {
	repo := newFakeRepo()
	dir := newFakeDirectory()
	svc := NewService(repo, dir, blob.NewUploader(nil, nil, nil), nil, nil)
	return svc, repo, dir
}

func TestSubmitAndReviewFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, dir := newTestService()
	owner := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	rec, err := svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	// a second pending submission of the same kind is rejected
	_, err = svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme 2"})
	assert.Equal(t, ErrPendingExists, errors.Cause(err))

	// a different kind is fine
	_, err = svc.Submit(ctx, owner, NewRecord{Kind: KindSchool, Name: "Acme High"})
	require.NoError(t, err)

	// approval sets the back-reference
	rec, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	require.NotNil(t, rec.Reviewer)
	assert.Equal(t, reviewer, *rec.Reviewer)
	require.NotNil(t, dir.affiliations[owner][KindOrganization])
	assert.Equal(t, rec.ID, *dir.affiliations[owner][KindOrganization])

	// re-review: approved -> rejected clears the back-reference
	rec, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusRejected, Comment: "expired papers"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rec.Status)
	assert.Nil(t, dir.affiliations[owner][KindOrganization])

	// rejected submissions cannot be approved without a resubmission
	_, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	assert.Equal(t, ErrInvalidTransition, errors.Cause(err))

	// resubmission goes back to pending with review fields reset
	rec, err = svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme v2"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.Reviewer)
	assert.True(t, rec.ReviewedAt.IsZero())
	assert.Empty(t, rec.ReviewComment)
	assert.Equal(t, "Acme v2", rec.Name)
}

func TestUpdateForcesReReview(t *testing.T) {
	ctx := context.Background()
	svc, _, dir := newTestService()
	owner := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	rec, err := svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme"})
	require.NoError(t, err)
	rec, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	require.NoError(t, err)

	rec, err = svc.Update(ctx, rec.ID, UpdateRecord{Name: "Acme Renamed"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.Reviewer)
	assert.True(t, rec.ReviewedAt.IsZero())
	assert.Empty(t, rec.ReviewComment)
	assert.Nil(t, dir.affiliations[owner][KindOrganization])
}

func TestSubmitBlockedWhileApproved(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	owner := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	rec, err := svc.Submit(ctx, owner, NewRecord{Kind: KindSchool, Name: "Acme High"})
	require.NoError(t, err)
	_, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, owner, NewRecord{Kind: KindSchool, Name: "Other High"})
	assert.Equal(t, ErrAlreadyApproved, errors.Cause(err))
}

func TestReviewCommitsRecordBeforeBackReference(t *testing.T) {
	ctx := context.Background()
	svc, repo, dir := newTestService()
	owner := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	rec, err := svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme"})
	require.NoError(t, err)

	// a failed commit must leave the account untouched: the back-reference
	// may only ever point at a record whose decision persisted
	repo.updateErr = errors.New("boom")
	_, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	assert.Error(t, err)
	assert.Nil(t, dir.affiliations[owner][KindOrganization])

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	repo.updateErr = nil
	rec, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	require.NoError(t, err)
	require.NotNil(t, dir.affiliations[owner][KindOrganization])
	assert.Equal(t, rec.ID, *dir.affiliations[owner][KindOrganization])
}

func TestDeleteClearsBackReference(t *testing.T) {
	ctx := context.Background()
	svc, repo, dir := newTestService()
	owner := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	rec, err := svc.Submit(ctx, owner, NewRecord{Kind: KindOrganization, Name: "Acme"})
	require.NoError(t, err)
	_, err = svc.Review(ctx, rec.ID, reviewer, ReviewDecision{Status: StatusApproved})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, rec.ID))
	assert.Nil(t, dir.affiliations[owner][KindOrganization])
	_, err = repo.GetByID(ctx, rec.ID)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}
