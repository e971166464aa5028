package affiliation

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
	"github.com/dienlabs/eduportal/core/user"
)

var (
	ErrNotFound          = errors.New("submission not found")
	ErrPendingExists     = errors.New("a submission of this kind is already pending review")
	ErrAlreadyApproved   = errors.New("an approved submission of this kind already exists")
	ErrInvalidTransition = errors.New("illegal review transition")
)

type (
	Repository interface {
		Create(ctx context.Context, rec Record) (Record, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (Record, error)
		GetByAccountKind(ctx context.Context, account primitive.ObjectID, kind string) (Record, error)
		Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Record, int64, error)
		Update(ctx context.Context, rec Record) (Record, error)
		Delete(ctx context.Context, id primitive.ObjectID) error
	}

	// AccountDirectory is the slice of the account service needed to keep
	// back-references and notify owners of review decisions.
	AccountDirectory interface {
		GetByID(ctx context.Context, id primitive.ObjectID) (user.Account, error)
		SetAffiliation(ctx context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error
	}

	Service struct {
		repo     Repository
		accounts AccountDirectory
		uploader *blob.Uploader
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(repo Repository, accounts AccountDirectory, uploader *blob.Uploader, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		uploader: uploader,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// Submit creates a pending submission, or resubmits a rejected one with
// its review fields reset. A pending or approved submission of the same
// kind blocks a new one.
func (svc *Service) Submit(ctx context.Context, accountID primitive.ObjectID, nr NewRecord) (Record, error) {
	existing, err := svc.repo.GetByAccountKind(ctx, accountID, nr.Kind)
	switch errors.Cause(err) {
	case nil:
		switch existing.Status {
		case StatusPending:
			return Record{}, ErrPendingExists
		case StatusApproved:
			return Record{}, ErrAlreadyApproved
		}
		return svc.resubmit(ctx, existing, nr)
	case ErrNotFound:
	default:
		return Record{}, errors.Wrap(err, "finding existing submission")
	}

	now := time.Now().UTC()
	rec := Record{
		Kind:         nr.Kind,
		Account:      accountID,
		Name:         nr.Name,
		ContactName:  nr.ContactName,
		ContactPhone: nr.ContactPhone,
		Address:      nr.Address,
		ZipCode:      nr.ZipCode,
		Description:  nr.Description,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	svc.attach(ctx, &rec, nr.Logo, nr.Certificates)
	return svc.repo.Create(ctx, rec)
}

func (svc *Service) resubmit(ctx context.Context, rec Record, nr NewRecord) (Record, error) {
	rec.Name = nr.Name
	rec.ContactName = nr.ContactName
	rec.ContactPhone = nr.ContactPhone
	rec.Address = nr.Address
	rec.ZipCode = nr.ZipCode
	rec.Description = nr.Description
	rec.resetReview()
	rec.UpdatedAt = time.Now().UTC()
	svc.attach(ctx, &rec, nr.Logo, nr.Certificates)
	return svc.repo.Update(ctx, rec)
}

// Update applies owner edits. Editing an already-reviewed submission
// forces it back to pending and clears the account's back-reference.
func (svc *Service) Update(ctx context.Context, id primitive.ObjectID, ur UpdateRecord) (Record, error) {
	rec, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Record{}, err
	}

	if ur.Name != "" {
		rec.Name = ur.Name
	}
	rec.ContactName = ur.ContactName
	rec.ContactPhone = ur.ContactPhone
	rec.Address = ur.Address
	rec.ZipCode = ur.ZipCode
	rec.Description = ur.Description

	if ur.Logo != nil {
		ref, err := svc.uploader.Replace(ctx, rec.Logo, ur.Logo.Data, ur.Logo.Meta)
		if err != nil {
			return Record{}, errors.Wrap(err, "replacing logo")
		}
		rec.Logo = ref
	}
	if ur.Certificates != nil {
		svc.replaceCertificates(ctx, &rec, ur.Certificates)
	}

	if rec.Status != StatusPending {
		wasApproved := rec.Status == StatusApproved
		rec.resetReview()
		if wasApproved {
			if err := svc.accounts.SetAffiliation(ctx, rec.Account, rec.Kind, nil); err != nil {
				return Record{}, errors.Wrap(err, "clearing back-reference")
			}
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	return svc.repo.Update(ctx, rec)
}

// Review applies a super admin decision. Legal transitions are
// pending->approved, pending->rejected and approved->rejected.
func (svc *Service) Review(ctx context.Context, id, reviewerID primitive.ObjectID, rd ReviewDecision) (Record, error) {
	rec, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return Record{}, err
	}

	legal := rec.Status == StatusPending || (rec.Status == StatusApproved && rd.Status == StatusRejected)
	if !legal {
		return Record{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", rec.Status, rd.Status)
	}

	rec.Status = rd.Status
	rec.Reviewer = &reviewerID
	rec.ReviewedAt = time.Now().UTC()
	rec.ReviewComment = rd.Comment
	rec.UpdatedAt = rec.ReviewedAt

	rec, err = svc.repo.Update(ctx, rec)
	if err != nil {
		return Record{}, err
	}

	// the record is the source of truth; the account back-reference
	// follows it best-effort once the decision is committed
	var ref *primitive.ObjectID
	if rec.Status == StatusApproved {
		ref = &rec.ID
	}
	if err = svc.accounts.SetAffiliation(ctx, rec.Account, rec.Kind, ref); err != nil {
		svc.warn("setting back-reference", err)
	}
	svc.sendDecisionEmail(ctx, rec)
	return rec, nil
}

func (svc *Service) GetByID(ctx context.Context, id primitive.ObjectID) (Record, error) {
	return svc.repo.GetByID(ctx, id)
}

// Mine returns the caller's submission of the given kind.
func (svc *Service) Mine(ctx context.Context, accountID primitive.ObjectID, kind string) (Record, error) {
	return svc.repo.GetByAccountKind(ctx, accountID, kind)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, args core.ListArgs) ([]Record, int64, error) {
	return svc.repo.Filter(ctx, filter, args)
}

// Delete removes the submission, cleans up its attachments best-effort
// and clears the back-reference when the submission was approved.
func (svc *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	rec, err := svc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == StatusApproved {
		if err := svc.accounts.SetAffiliation(ctx, rec.Account, rec.Kind, nil); err != nil {
			return errors.Wrap(err, "clearing back-reference")
		}
	}
	svc.uploader.Cleanup(ctx, rec.BlobRefs()...)
	return svc.repo.Delete(ctx, id)
}

func (svc *Service) attach(ctx context.Context, rec *Record, logo *blob.Upload, certs []NewCertificate) {
	if logo != nil {
		ref, err := svc.uploader.Put(ctx, logo.Data, logo.Meta)
		if err != nil {
			svc.warn("storing logo", err)
		}
		rec.Logo = ref
	}
	if certs != nil {
		svc.replaceCertificates(ctx, rec, certs)
	}
}

func (svc *Service) replaceCertificates(ctx context.Context, rec *Record, certs []NewCertificate) {
	old := make([]blob.Reference, 0, len(rec.Certificates))
	for _, c := range rec.Certificates {
		old = append(old, c.File)
	}

	next := make([]Certificate, 0, len(certs))
	for _, nc := range certs {
		ref, err := svc.uploader.Put(ctx, nc.Upload.Data, nc.Upload.Meta)
		if err != nil {
			svc.warn("storing certificate", err)
		}
		next = append(next, Certificate{Name: nc.Name, File: ref})
	}
	rec.Certificates = next
	svc.uploader.Cleanup(ctx, old...)
}

func (svc *Service) sendDecisionEmail(ctx context.Context, rec Record) {
	if svc.mailSvc == nil {
		return
	}
	acct, err := svc.accounts.GetByID(ctx, rec.Account)
	if err != nil || acct.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject:      fmt.Sprintf("Your %s submission has been %s", rec.Kind, rec.Status),
		TemplateName: "review-decision",
		TemplateData: struct {
			Name    string
			Kind    string
			Status  string
			Comment string
		}{acct.Name, rec.Kind, rec.Status, rec.ReviewComment},
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) warn(msg string, err error) {
	if svc.logger != nil {
		svc.logger.Warn(msg, err)
	}
}
