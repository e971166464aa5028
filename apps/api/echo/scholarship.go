package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/scholarship"
	"github.com/dienlabs/eduportal/core/user"
)

type scholarshipApi struct {
	svc      *scholarship.Service
	validate *validator.Validate
}

func registerScholarshipAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *scholarship.Service, validate *validator.Validate) {
	api := scholarshipApi{svc: svc, validate: validate}

	sg := g.Group("/scholarships")

	// public reads
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)

	// applicant endpoints
	ug := sg.Group("", auth)
	ug.POST("/:id/apply", api.apply)
	ug.GET("/applications/mine", api.myApplications)
	ug.DELETE("/applications/:id", api.withdraw)

	// admin endpoints
	ag := sg.Group("", auth, requireMinRole(user.RoleAdmin))
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.GET("/applications", api.queryApplications)
	ag.PUT("/applications/:id/review", api.reviewApplication)
}

func (api *scholarshipApi) create(ctx echo.Context) error {
	authorID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data scholarship.NewScholarship
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarship")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), authorID, data)
	if err != nil {
		return errors.Wrap(err, "creating scholarship")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *scholarshipApi) query(ctx echo.Context) error {
	filter := new(scholarship.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	schs, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying scholarships")
	}
	if schs == nil {
		schs = []scholarship.Scholarship{}
	}
	return paginated(ctx, schs, total, args)
}

func (api *scholarshipApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	sch, err := api.svc.Get(ctx.Request().Context(), id, true /* countView */)
	if err != nil {
		if errors.Cause(err) == scholarship.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding scholarship by id")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scholarshipApi) update(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data scholarship.UpdateScholarship
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateScholarship")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}

	sch, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == scholarship.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating scholarship")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scholarshipApi) destroy(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == scholarship.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting scholarship")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Applications.

func (api *scholarshipApi) apply(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data scholarship.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Apply(ctx.Request().Context(), id, accountID, data)
	if err != nil {
		switch errors.Cause(err) {
		case scholarship.ErrNotFound:
			return errNotFound
		case scholarship.ErrNotOpen:
			return core.NewConflictError(scholarship.ErrNotOpen, CodeNotOpen)
		case scholarship.ErrQuotaFull:
			return core.NewConflictError(scholarship.ErrQuotaFull, CodeQuotaFull)
		case scholarship.ErrAlreadyApplied:
			return core.NewConflictError(scholarship.ErrAlreadyApplied, CodeAlreadyApplied)
		}
		return errors.Wrap(err, "applying for scholarship")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *scholarshipApi) myApplications(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	args := bindListArgs(ctx)

	filter := scholarship.AppQueryFilter{Account: accountID.Hex(), Status: ctx.QueryParam("status")}
	if err := api.validate.Struct(&filter); err != nil {
		return err
	}

	apps, total, err := api.svc.FilterApplications(ctx.Request().Context(), filter, args)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []scholarship.Application{}
	}
	return paginated(ctx, apps, total, args)
}

// withdraw removes the caller's own pending application and frees its
// quota slot.
func (api *scholarshipApi) withdraw(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	app, err := api.svc.GetApplication(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == scholarship.ErrAppNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding application by id")
	}
	if app.Account != accountID {
		claims, _ := getContextClaims(ctx)
		if claims.Role != user.RoleSuperAdmin {
			return errNotFound
		}
	}

	if err := api.svc.Withdraw(ctx.Request().Context(), id); err != nil {
		switch errors.Cause(err) {
		case scholarship.ErrAppNotFound:
			return errNotFound
		case scholarship.ErrNotPending:
			return core.NewConflictError(scholarship.ErrNotPending, CodeInvalidState)
		}
		return errors.Wrap(err, "withdrawing application")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scholarshipApi) queryApplications(ctx echo.Context) error {
	filter := new(scholarship.AppQueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to AppQueryFilter")
	}
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	apps, total, err := api.svc.FilterApplications(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []scholarship.Application{}
	}
	return paginated(ctx, apps, total, args)
}

func (api *scholarshipApi) reviewApplication(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	reviewerID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data scholarship.AppReviewDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AppReviewDecision")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.ReviewApplication(ctx.Request().Context(), id, reviewerID, data)
	if err != nil {
		switch errors.Cause(err) {
		case scholarship.ErrAppNotFound:
			return errNotFound
		case scholarship.ErrNotPending:
			return core.NewConflictError(scholarship.ErrNotPending, CodeInvalidState)
		}
		return errors.Wrap(err, "reviewing application")
	}
	return ctx.JSON(http.StatusOK, app)
}
