package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
	"github.com/dienlabs/eduportal/core/user"
)

// fakeAccountRepo is an in-memory user.Repository; only the methods the
// CLI exercises are functional.
type fakeAccountRepo struct {
	byID map[primitive.ObjectID]user.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byID: make(map[primitive.ObjectID]user.Account)}
}

func (r *fakeAccountRepo) Create(_ context.Context, acct user.Account) (user.Account, error) {
	acct.ID = primitive.NewObjectID()
	r.byID[acct.ID] = acct
	return acct, nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id primitive.ObjectID) (user.Account, error) {
	acct, ok := r.byID[id]
	if !ok {
		return user.Account{}, user.ErrNotFound
	}
	return acct, nil
}

func (r *fakeAccountRepo) GetByAccount(_ context.Context, account string) (user.Account, error) {
	for _, acct := range r.byID {
		if acct.Account == account {
			return acct, nil
		}
	}
	return user.Account{}, user.ErrNotFound
}

func (r *fakeAccountRepo) Filter(_ context.Context, _ user.QueryFilter, _ core.ListArgs) ([]user.Account, int64, error) {
	return nil, 0, nil
}

func (r *fakeAccountRepo) Update(_ context.Context, acct user.Account) (user.Account, error) {
	r.byID[acct.ID] = acct
	return acct, nil
}

func (r *fakeAccountRepo) SetLastLogin(_ context.Context, id primitive.ObjectID, t time.Time) error {
	acct := r.byID[id]
	acct.LastLogin = t
	r.byID[id] = acct
	return nil
}

func (r *fakeAccountRepo) SetPassword(_ context.Context, id primitive.ObjectID, hash []byte) error {
	acct := r.byID[id]
	acct.PasswordHash = hash
	r.byID[id] = acct
	return nil
}

func (r *fakeAccountRepo) SetAvatar(_ context.Context, id primitive.ObjectID, ref blob.Reference) error {
	acct := r.byID[id]
	acct.Avatar = ref
	r.byID[id] = acct
	return nil
}

func (r *fakeAccountRepo) SetRole(_ context.Context, id primitive.ObjectID, role string) error {
	acct := r.byID[id]
	acct.Role = role
	r.byID[id] = acct
	return nil
}

func (r *fakeAccountRepo) SetStatus(_ context.Context, id primitive.ObjectID, status string) error {
	acct := r.byID[id]
	acct.Status = status
	r.byID[id] = acct
	return nil
}

func (r *fakeAccountRepo) SetAffiliation(_ context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error {
	return nil
}

func (r *fakeAccountRepo) Delete(_ context.Context, ids ...primitive.ObjectID) error {
	for _, id := range ids {
		delete(r.byID, id)
	}
	return nil
}

var _ user.Repository = (*fakeAccountRepo)(nil)

func setup(t *testing.T) (*commandLine, *fakeAccountRepo) {
	t.Helper()
	repo := newFakeAccountRepo()
	return &commandLine{acctRepo: repo}, repo
}

func createAccount(t *testing.T, repo *fakeAccountRepo, account, pwd, role string) user.Account {
	t.Helper()
	acct := user.Account{Account: account, Role: role, Status: user.StatusActive}
	if err := acct.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	acct, err := repo.Create(context.Background(), acct)
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	return acct
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_addSuperAdmin(t *testing.T) {
	cli, repo := setup(t)

	existing := createAccount(t, repo, "zhang3", "mdr123", user.RoleUser)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addsuperadmin"}, wantErr: errHelp},
		{name: "account but no password", args: []string{"addsuperadmin", "-account", "li4"}, wantErr: errHelp},
		{name: "creates new account", args: []string{"addsuperadmin", "-account", "li4"}, pwd: "s3cret"},
		{name: "promotes existing account", args: []string{"addsuperadmin", "-account", existing.Account}, pwd: "n3wpwd"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	created, err := repo.GetByAccount(context.Background(), "li4")
	if err != nil {
		t.Fatalf("GetByAccount() failed, %v", err)
	}
	if created.Role != user.RoleSuperAdmin {
		t.Errorf("created account role = %s, want %s", created.Role, user.RoleSuperAdmin)
	}
	if err = created.CheckPassword("s3cret"); err != nil {
		t.Error("created account password not set")
	}

	promoted, err := repo.GetByID(context.Background(), existing.ID)
	if err != nil {
		t.Fatalf("GetByID() failed, %v", err)
	}
	if promoted.Role != user.RoleSuperAdmin {
		t.Errorf("promoted account role = %s, want %s", promoted.Role, user.RoleSuperAdmin)
	}
	if bytes.Equal(promoted.PasswordHash, existing.PasswordHash) {
		t.Error("failed to update password on promotion")
	}
}

func Test_commandLine_setRole(t *testing.T) {
	cli, repo := setup(t)

	acct := createAccount(t, repo, "wang5", "mdr123", user.RoleUser)

	tests := []cliTest{
		{name: "no args", args: []string{"setrole"}, wantErr: errHelp},
		{name: "missing role", args: []string{"setrole", "-account", acct.Account}, wantErr: errHelp},
		{name: "invalid role", args: []string{"setrole", "-account", acct.Account, "-role", "emperor"}, wantErr: errHelp},
		{name: "account not found", args: []string{"setrole", "-account", "lol", "-role", user.RoleAdmin}, wantErr: user.ErrNotFound},
		{name: "sets role", args: []string{"setrole", "-account", acct.Account, "-role", user.RoleAdmin}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	refreshed, err := repo.GetByID(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("GetByID() failed, %v", err)
	}
	if refreshed.Role != user.RoleAdmin {
		t.Errorf("role = %s, want %s", refreshed.Role, user.RoleAdmin)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, repo := setup(t)

	acct := createAccount(t, repo, "zhao6", "mdr123", user.RoleUser)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "account but no password", args: []string{"resetpassword", "-account", acct.Account}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-account", "lol"}, pwd: "lol123", wantErr: user.ErrNotFound},
		{name: "resets password", args: []string{"resetpassword", "-account", acct.Account}, pwd: "lmao42"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	refreshed, err := repo.GetByID(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("GetByID() failed, %v", err)
	}
	if err = refreshed.CheckPassword("lmao42"); err != nil {
		t.Error("failed to update new password")
	}
	if bytes.Equal(refreshed.PasswordHash, acct.PasswordHash) {
		t.Error("password hash unchanged")
	}
}
