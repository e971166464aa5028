package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core/activity"
	"github.com/dienlabs/eduportal/core/courseware"
	"github.com/dienlabs/eduportal/core/user"
)

type coursewareApi struct {
	svc        *courseware.Service
	activities *activity.Service
	validate   *validator.Validate
}

func registerCoursewareAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *courseware.Service, activities *activity.Service, validate *validator.Validate) {
	api := coursewareApi{svc: svc, activities: activities, validate: validate}

	cg := g.Group("/courseware")

	// public reads
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)

	// authed download link; the download counter and activity record move
	// together with it
	cg.GET("/:id/download", api.download, auth)

	// verified accounts may rate
	cg.POST("/:id/rate", api.rate, auth, requireMinRole(user.RoleVerified))

	// admin writes
	ag := cg.Group("", auth, requireMinRole(user.RoleAdmin))
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *coursewareApi) create(ctx echo.Context) error {
	authorID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data courseware.NewCourseware
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourseware")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}
	if data.Thumbnail, err = formUpload(ctx, "thumbnail"); err != nil {
		return err
	}

	cw, err := api.svc.Create(ctx.Request().Context(), authorID, data)
	if err != nil {
		return errors.Wrap(err, "creating courseware")
	}
	return ctx.JSON(http.StatusCreated, cw)
}

func (api *coursewareApi) query(ctx echo.Context) error {
	filter := new(courseware.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	cws, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying courseware")
	}
	if cws == nil {
		cws = []courseware.Courseware{}
	}
	return paginated(ctx, cws, total, args)
}

func (api *coursewareApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	cw, err := api.svc.Get(ctx.Request().Context(), id, true /* countView */)
	if err != nil {
		if errors.Cause(err) == courseware.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding courseware by id")
	}
	return ctx.JSON(http.StatusOK, cw)
}

// download hands out the document location, bumps the download counter
// and records the download activity best-effort.
func (api *coursewareApi) download(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	ref, err := api.svc.DownloadRef(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == courseware.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "resolving download")
	}

	// repeated downloads of the same courseware keep a single record
	_, err = api.activities.Track(ctx.Request().Context(), accountID, activity.NewRecord{
		Type:         activity.TypeCoursewareDownload,
		ResourceType: "courseware",
		Resource:     id.Hex(),
	})
	if err != nil && errors.Cause(err) != activity.ErrExists {
		ctx.Logger().Errorf("tracking download: %+v", err)
	}

	return ctx.JSON(http.StatusOK, DownloadResponse{URL: ref.URL(filesBaseURL)})
}

func (api *coursewareApi) rate(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data RateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RateRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	cw, err := api.svc.Rate(ctx.Request().Context(), id, data.Score)
	if err != nil {
		if errors.Cause(err) == courseware.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "rating courseware")
	}
	return ctx.JSON(http.StatusOK, cw)
}

func (api *coursewareApi) update(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data courseware.UpdateCourseware
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourseware")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}
	if data.Thumbnail, err = formUpload(ctx, "thumbnail"); err != nil {
		return err
	}

	cw, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == courseware.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating courseware")
	}
	return ctx.JSON(http.StatusOK, cw)
}

func (api *coursewareApi) destroy(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == courseware.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting courseware")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type DownloadResponse struct {
	URL string `json:"url"`
}

type RateRequest struct {
	Score int `json:"score" validate:"required,min=1,max=5"`
}
