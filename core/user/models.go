package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

// Roles, lowest to highest privilege.
const (
	RoleUser       = "user"
	RoleVerified   = "verified"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Statuses
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

var (
	AllRoles    = []string{RoleUser, RoleVerified, RoleAdmin, RoleSuperAdmin}
	AllStatuses = []string{StatusActive, StatusInactive, StatusSuspended}

	rolePriorities = map[string]int{
		RoleUser:       0,
		RoleVerified:   1,
		RoleAdmin:      2,
		RoleSuperAdmin: 3,
	}
)

// RolePriority returns the hierarchy level of a role. Unknown roles rank
// lowest.
func RolePriority(role string) int {
	return rolePriorities[role]
}

// RoleAtLeast reports whether role ranks at or above min in the hierarchy.
func RoleAtLeast(role, min string) bool {
	return RolePriority(role) >= RolePriority(min)
}

type Account struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Account      string              `bson:"account" json:"account"`
	PasswordHash []byte              `bson:"password" json:"-"`
	Name         string              `bson:"name,omitempty" json:"name"`
	Email        string              `bson:"email,omitempty" json:"email,omitempty"`
	Phone        string              `bson:"phone,omitempty" json:"phone,omitempty"`
	Avatar       blob.Reference      `bson:"avatar,omitempty" json:"avatar"`
	Role         string              `bson:"role" json:"role"`
	Status       string              `bson:"status" json:"status"`
	Organization *primitive.ObjectID `bson:"organization,omitempty" json:"organization,omitempty"`
	School       *primitive.ObjectID `bson:"school,omitempty" json:"school,omitempty"`
	LastLogin    time.Time           `bson:"lastLogin,omitempty" json:"lastLogin"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a *Account) IsActive() bool     { return a.Status == StatusActive }
func (a *Account) IsAdmin() bool      { return RoleAtLeast(a.Role, RoleAdmin) }
func (a *Account) IsSuperAdmin() bool { return a.Role == RoleSuperAdmin }

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Account         string `json:"account" validate:"required,min=4,alphanum"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"omitempty,cnphone"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Account = core.CleanString(na.Account, true /* lower */)
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)
	return validate.Struct(na)
}

// UpdateProfile defines the fields an account may change on itself.
type UpdateProfile struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,cnphone"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	up.Email = core.CleanString(up.Email, true /* lower */)
	up.Phone = core.CleanString(up.Phone)
	return validate.Struct(up)
}

type ChangePassword struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,nefield=OldPassword"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=NewPassword"`
}

func (cp ChangePassword) Validate(validate *validator.Validate) error {
	return validate.Struct(cp)
}

type QueryFilter struct {
	Search string `query:"search"`
	Role   string `query:"role" validate:"omitempty,oneof=user verified admin super_admin"`
	Status string `query:"status" validate:"omitempty,oneof=active inactive suspended"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
