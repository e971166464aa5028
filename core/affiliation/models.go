package affiliation

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
)

// Kinds
const (
	KindOrganization = "organization"
	KindSchool       = "school"
)

// Review states
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var AllKinds = []string{KindOrganization, KindSchool}

// Certificate is a supporting document attached to a submission.
type Certificate struct {
	Name string         `bson:"name" json:"name"`
	File blob.Reference `bson:"file" json:"file"`
}

// Record is an organization or school submission owned by one account.
type Record struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind         string             `bson:"kind" json:"kind"`
	Account      primitive.ObjectID `bson:"account" json:"account"`
	Name         string             `bson:"name" json:"name"`
	ContactName  string             `bson:"contactName,omitempty" json:"contactName,omitempty"`
	ContactPhone string             `bson:"contactPhone,omitempty" json:"contactPhone,omitempty"`
	Address      string             `bson:"address,omitempty" json:"address,omitempty"`
	ZipCode      string             `bson:"zipCode,omitempty" json:"zipCode,omitempty"`
	Description  string             `bson:"description,omitempty" json:"description,omitempty"`
	Logo         blob.Reference     `bson:"logo,omitempty" json:"logo"`
	Certificates []Certificate      `bson:"certificates,omitempty" json:"certificates"`

	Status        string              `bson:"status" json:"status"`
	Reviewer      *primitive.ObjectID `bson:"reviewer,omitempty" json:"reviewer,omitempty"`
	ReviewedAt    time.Time           `bson:"reviewedAt,omitempty" json:"reviewedAt"`
	ReviewComment string              `bson:"reviewComment,omitempty" json:"reviewComment,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"` // UTC
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"` // UTC
}

// BlobRefs lists every attachment the record holds, for cleanup.
func (r *Record) BlobRefs() []blob.Reference {
	refs := []blob.Reference{r.Logo}
	for _, c := range r.Certificates {
		refs = append(refs, c.File)
	}
	return refs
}

func (r *Record) resetReview() {
	r.Status = StatusPending
	r.Reviewer = nil
	r.ReviewedAt = time.Time{}
	r.ReviewComment = ""
}

// NewCertificate pairs a certificate name with its pending upload.
type NewCertificate struct {
	Name   string
	Upload blob.Upload
}

// NewRecord contains information needed to submit an affiliation.
type NewRecord struct {
	Kind         string `json:"kind" form:"kind" validate:"required,oneof=organization school"`
	Name         string `json:"name" form:"name" validate:"required"`
	ContactName  string `json:"contactName" form:"contactName"`
	ContactPhone string `json:"contactPhone" form:"contactPhone" validate:"omitempty,cnphone"`
	Address      string `json:"address" form:"address"`
	ZipCode      string `json:"zipCode" form:"zipCode" validate:"omitempty,zipcode"`
	Description  string `json:"description" form:"description"`

	Logo         *blob.Upload     `json:"-" form:"-"`
	Certificates []NewCertificate `json:"-" form:"-"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.ContactName = core.CleanString(nr.ContactName)
	nr.ContactPhone = core.CleanString(nr.ContactPhone)
	nr.Address = core.CleanString(nr.Address)
	nr.ZipCode = core.CleanString(nr.ZipCode)
	return validate.Struct(nr)
}

// UpdateRecord defines the fields the owner may change. Changing an
// already-reviewed record forces it back to pending.
type UpdateRecord struct {
	Name         string `json:"name" form:"name"`
	ContactName  string `json:"contactName" form:"contactName"`
	ContactPhone string `json:"contactPhone" form:"contactPhone" validate:"omitempty,cnphone"`
	Address      string `json:"address" form:"address"`
	ZipCode      string `json:"zipCode" form:"zipCode" validate:"omitempty,zipcode"`
	Description  string `json:"description" form:"description"`

	Logo         *blob.Upload     `json:"-" form:"-"`
	Certificates []NewCertificate `json:"-" form:"-"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.Name = core.CleanString(ur.Name)
	ur.ContactName = core.CleanString(ur.ContactName)
	ur.ContactPhone = core.CleanString(ur.ContactPhone)
	ur.Address = core.CleanString(ur.Address)
	ur.ZipCode = core.CleanString(ur.ZipCode)
	return validate.Struct(ur)
}

// ReviewDecision is a super admin's verdict on a pending submission.
type ReviewDecision struct {
	Status  string `json:"status" validate:"required,oneof=approved rejected"`
	Comment string `json:"comment"`
}

func (rd *ReviewDecision) Validate(validate *validator.Validate) error {
	rd.Comment = core.CleanString(rd.Comment)
	return validate.Struct(rd)
}

type QueryFilter struct {
	Kind    string `query:"kind" validate:"omitempty,oneof=organization school"`
	Status  string `query:"status" validate:"omitempty,oneof=pending approved rejected"`
	Account string `query:"account" validate:"omitempty,objectid"`
	Search  string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
