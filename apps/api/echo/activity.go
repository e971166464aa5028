package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

type activityApi struct {
	svc      *activity.Service
	validate *validator.Validate
}

func registerActivityAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *activity.Service, validate *validator.Validate) {
	api := activityApi{svc: svc, validate: validate}

	ag := g.Group("/activities", auth)
	ag.POST("", api.track)
	ag.GET("", api.query)
	ag.GET("/exists", api.exists)
	ag.DELETE("/:id", api.destroy)
	ag.DELETE("", api.destroyBy)
}

func (api *activityApi) track(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data activity.NewRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Track(ctx.Request().Context(), accountID, data)
	if err != nil {
		if errors.Cause(err) == activity.ErrExists {
			return core.NewConflictError(activity.ErrExists, CodeAlreadyExists)
		}
		return errors.Wrap(err, "tracking activity")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *activityApi) query(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	filter := new(activity.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	recs, total, err := api.svc.Filter(ctx.Request().Context(), accountID, *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if recs == nil {
		recs = []activity.Record{}
	}
	return paginated(ctx, recs, total, args)
}

// exists reports whether the caller already has a record for the given
// (type, resource) pair.
func (api *activityApi) exists(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	typ := ctx.QueryParam("type")
	resource, err := primitive.ObjectIDFromHex(ctx.QueryParam("resource"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "resource", Error: "must be a valid resource id"})
	}

	exists, err := api.svc.Exists(ctx.Request().Context(), accountID, typ, resource)
	if err != nil {
		return errors.Wrap(err, "checking activity")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"exists": exists})
}

func (api *activityApi) destroy(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	// only own records can be removed
	rec, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil || rec.Account != accountID {
		return errNotFound
	}

	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == activity.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroyBy removes the caller's record for a (type, resource) pair;
// unfavoriting goes through here so the favorite counter moves with it.
func (api *activityApi) destroyBy(ctx echo.Context) error {
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	typ := ctx.QueryParam("type")
	resource, err := primitive.ObjectIDFromHex(ctx.QueryParam("resource"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "resource", Error: "must be a valid resource id"})
	}

	if err := api.svc.DeleteBy(ctx.Request().Context(), accountID, typ, resource); err != nil {
		if errors.Cause(err) == activity.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}
