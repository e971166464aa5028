package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/affiliation"
	"github.com/dienlabs/eduportal/core/user"
)

type affiliationApi struct {
	svc      *affiliation.Service
	validate *validator.Validate
}

func registerAffiliationAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *affiliation.Service, validate *validator.Validate) {
	api := affiliationApi{svc: svc, validate: validate}

	ag := g.Group("/affiliations", auth)
	ag.POST("", api.submit)
	ag.GET("/mine", api.mine)

	// owner endpoints; super_admin passes the ownership gate
	og := ag.Group("/:id", api.loadRecord(), requireOwnership(recordOwner))
	og.PUT("", api.update)
	og.DELETE("", api.destroy)

	// review endpoints
	rg := ag.Group("", requireRole(user.RoleSuperAdmin))
	rg.GET("", api.query)
	rg.GET("/:id/detail", api.retrieve)
	rg.PUT("/:id/review", api.review)
}

func recordOwner(obj interface{}) (string, bool) {
	rec, ok := obj.(affiliation.Record)
	if !ok {
		return "", false
	}
	return rec.Account.Hex(), true
}

// loadRecord fetches the submission named by :id onto the context for
// the ownership gate and the handlers behind it.
func (api *affiliationApi) loadRecord() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := objectIDParam(ctx, "id")
			if err != nil {
				return err
			}
			rec, err := api.svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if errors.Cause(err) == affiliation.ErrNotFound {
					return errNotFound
				}
				return errors.Wrap(err, "finding submission by id")
			}
			ctx.Set(contextObjectKey, rec)
			return next(ctx)
		}
	}
}

func (api *affiliationApi) submit(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data affiliation.NewRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Logo, err = formUpload(ctx, "logo"); err != nil {
		return err
	}
	if data.Certificates, err = formCertificates(ctx); err != nil {
		return err
	}

	rec, err := api.svc.Submit(ctx.Request().Context(), accountID, data)
	if err != nil {
		switch errors.Cause(err) {
		case affiliation.ErrPendingExists, affiliation.ErrAlreadyApproved:
			return core.NewConflictError(errors.Cause(err), CodeAlreadyExists)
		}
		return errors.Wrap(err, "submitting affiliation")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *affiliationApi) mine(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	kind := ctx.QueryParam("kind")
	if kind != affiliation.KindOrganization && kind != affiliation.KindSchool {
		return core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "must be organization or school"})
	}

	rec, err := api.svc.Mine(ctx.Request().Context(), accountID, kind)
	if err != nil {
		if errors.Cause(err) == affiliation.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding own submission")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *affiliationApi) update(ctx echo.Context) error {
	rec := ctx.Get(contextObjectKey).(affiliation.Record)

	var data affiliation.UpdateRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	var err error
	if data.Logo, err = formUpload(ctx, "logo"); err != nil {
		return err
	}
	if data.Certificates, err = formCertificates(ctx); err != nil {
		return err
	}

	rec, err = api.svc.Update(ctx.Request().Context(), rec.ID, data)
	if err != nil {
		if errors.Cause(err) == affiliation.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating submission")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *affiliationApi) destroy(ctx echo.Context) error {
	rec := ctx.Get(contextObjectKey).(affiliation.Record)

	if err := api.svc.Delete(ctx.Request().Context(), rec.ID); err != nil {
		if errors.Cause(err) == affiliation.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting submission")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *affiliationApi) query(ctx echo.Context) error {
	filter := new(affiliation.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	recs, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	if recs == nil {
		recs = []affiliation.Record{}
	}
	return paginated(ctx, recs, total, args)
}

func (api *affiliationApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	rec, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == affiliation.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding submission by id")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *affiliationApi) review(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	reviewerID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data affiliation.ReviewDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewDecision")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Review(ctx.Request().Context(), id, reviewerID, data)
	if err != nil {
		switch errors.Cause(err) {
		case affiliation.ErrNotFound:
			return errNotFound
		case affiliation.ErrInvalidTransition:
			return core.NewConflictError(affiliation.ErrInvalidTransition, CodeInvalidState)
		}
		return errors.Wrap(err, "reviewing submission")
	}
	return ctx.JSON(http.StatusOK, rec)
}

// formCertificates reads every file attached under "certificates"; each
// certificate takes its display name from the uploaded filename.
func formCertificates(ctx echo.Context) ([]affiliation.NewCertificate, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, nil
	}
	files := form.File["certificates"]
	if len(files) == 0 {
		return nil, nil
	}

	certs := make([]affiliation.NewCertificate, 0, len(files))
	for _, fh := range files {
		up, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		certs = append(certs, affiliation.NewCertificate{Name: fh.Filename, Upload: *up})
	}
	return certs, nil
}
