package user

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

func TestRolePriority(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{RoleUser, 0},
		{RoleVerified, 1},
		{RoleAdmin, 2},
		{RoleSuperAdmin, 3},
		{"bogus", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.want, RolePriority(tt.role))
		})
	}
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleVerified, RoleUser))
	assert.True(t, RoleAtLeast(RoleVerified, RoleVerified))
	assert.False(t, RoleAtLeast(RoleVerified, RoleAdmin))
	assert.True(t, RoleAtLeast(RoleSuperAdmin, RoleAdmin))
	assert.False(t, RoleAtLeast("bogus", RoleVerified))
}

type fakeRepo struct {
	byID      map[primitive.ObjectID]Account
	byAccount map[string]Account
}

func newFakeRepo(accts ...Account) *fakeRepo {
	r := &fakeRepo{
		byID:      make(map[primitive.ObjectID]Account),
		byAccount: make(map[string]Account),
	}
	for _, a := range accts {
		r.byID[a.ID] = a
		r.byAccount[a.Account] = a
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, acct Account) (Account, error) {
	if _, ok := r.byAccount[acct.Account]; ok {
		return Account{}, ErrAccountExists
	}
	acct.ID = primitive.NewObjectID()
	r.byID[acct.ID] = acct
	r.byAccount[acct.Account] = acct
	return acct, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id primitive.ObjectID) (Account, error) {
	if a, ok := r.byID[id]; ok {
		return a, nil
	}
	return Account{}, ErrNotFound
}

func (r *fakeRepo) GetByAccount(_ context.Context, account string) (Account, error) {
	if a, ok := r.byAccount[account]; ok {
		return a, nil
	}
	return Account{}, ErrNotFound
}

func (r *fakeRepo) Filter(context.Context, QueryFilter, core.ListArgs) ([]Account, int64, error) {
	return nil, 0, nil
}

func (r *fakeRepo) Update(_ context.Context, acct Account) (Account, error) {
	r.byID[acct.ID] = acct
	r.byAccount[acct.Account] = acct
	return acct, nil
}

func (r *fakeRepo) SetLastLogin(_ context.Context, id primitive.ObjectID, t time.Time) error {
	a := r.byID[id]
	a.LastLogin = t
	return r.save(a)
}

func (r *fakeRepo) SetPassword(_ context.Context, id primitive.ObjectID, hash []byte) error {
	a := r.byID[id]
	a.PasswordHash = hash
	return r.save(a)
}

func (r *fakeRepo) SetAvatar(_ context.Context, id primitive.ObjectID, ref blob.Reference) error {
	a := r.byID[id]
	a.Avatar = ref
	return r.save(a)
}

func (r *fakeRepo) SetRole(_ context.Context, id primitive.ObjectID, role string) error {
	a := r.byID[id]
	a.Role = role
	return r.save(a)
}

func (r *fakeRepo) SetStatus(_ context.Context, id primitive.ObjectID, status string) error {
	a := r.byID[id]
	a.Status = status
	return r.save(a)
}

func (r *fakeRepo) SetAffiliation(_ context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error {
	a := r.byID[id]
	switch field {
	case "organization":
		a.Organization = ref
	case "school":
		a.School = ref
	default:
		return errors.Errorf("unknown affiliation field %q", field)
	}
	return r.save(a)
}

func (r *fakeRepo) Delete(_ context.Context, ids ...primitive.ObjectID) error {
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			delete(r.byAccount, a.Account)
			delete(r.byID, id)
		}
	}
	return nil
}

func (r *fakeRepo) save(a Account) error {
	r.byID[a.ID] = a
	r.byAccount[a.Account] = a
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, blob.NewUploader(nil, nil, nil), nil, nil)
}

func TestServiceRegister(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	acct, err := svc.Register(context.Background(), NewAccount{
		Account:  "jdoe",
		Password: "s3cret!",
		Name:     "J. Doe",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleUser, acct.Role)
	assert.Equal(t, StatusActive, acct.Status)
	assert.NoError(t, acct.CheckPassword("s3cret!"))
	assert.Error(t, acct.CheckPassword("nope"))

	_, err = svc.Register(context.Background(), NewAccount{Account: "jdoe", Password: "x", Name: "dup"})
	assert.Equal(t, ErrAccountExists, errors.Cause(err))
}

func TestServiceAuthenticate(t *testing.T) {
	acct := Account{ID: primitive.NewObjectID(), Account: "jdoe", Role: RoleUser, Status: StatusActive}
	require.NoError(t, acct.SetPassword("s3cret!"))
	suspended := Account{ID: primitive.NewObjectID(), Account: "gone", Role: RoleUser, Status: StatusSuspended}
	require.NoError(t, suspended.SetPassword("s3cret!"))
	repo := newFakeRepo(acct, suspended)
	svc := newTestService(repo)

	t.Run("ok", func(t *testing.T) {
		got, err := svc.Authenticate(context.Background(), "JDoe", "s3cret!")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
		assert.False(t, got.LastLogin.IsZero())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "jdoe", "nope")
		assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "ghost", "s3cret!")
		assert.Equal(t, ErrInvalidCredentials, errors.Cause(err))
	})

	t.Run("suspended account", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "gone", "s3cret!")
		assert.Equal(t, ErrAccountDisabled, errors.Cause(err))
	})
}

func TestServiceChangePassword(t *testing.T) {
	acct := Account{ID: primitive.NewObjectID(), Account: "jdoe", Status: StatusActive}
	require.NoError(t, acct.SetPassword("old-pass"))
	repo := newFakeRepo(acct)
	svc := newTestService(repo)

	err := svc.ChangePassword(context.Background(), acct.ID, ChangePassword{
		OldPassword: "wrong", NewPassword: "new-pass", PasswordConfirm: "new-pass",
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))

	err = svc.ChangePassword(context.Background(), acct.ID, ChangePassword{
		OldPassword: "old-pass", NewPassword: "new-pass", PasswordConfirm: "new-pass",
	})
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("new-pass"))
}
