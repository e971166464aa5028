package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core/news"
	"github.com/dienlabs/eduportal/core/user"
)

type newsApi struct {
	svc      *news.Service
	validate *validator.Validate
}

func registerNewsAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *news.Service, validate *validator.Validate) {
	api := newsApi{svc: svc, validate: validate}

	ng := g.Group("/news")

	// public reads
	ng.GET("", api.query)
	ng.GET("/:id", api.retrieve)

	// admin writes
	ag := ng.Group("", auth, requireMinRole(user.RoleAdmin))
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *newsApi) create(ctx echo.Context) error {
	authorID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data news.NewArticle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewArticle")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Cover, err = formUpload(ctx, "cover"); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}

	art, err := api.svc.Create(ctx.Request().Context(), authorID, data)
	if err != nil {
		return errors.Wrap(err, "creating article")
	}
	return ctx.JSON(http.StatusCreated, art)
}

func (api *newsApi) query(ctx echo.Context) error {
	filter := new(news.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	arts, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying articles")
	}
	if arts == nil {
		arts = []news.Article{}
	}
	return paginated(ctx, arts, total, args)
}

// retrieve returns one article and counts the read.
func (api *newsApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	art, err := api.svc.Get(ctx.Request().Context(), id, true /* countView */)
	if err != nil {
		if errors.Cause(err) == news.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding article by id")
	}
	return ctx.JSON(http.StatusOK, art)
}

func (api *newsApi) update(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data news.UpdateArticle
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateArticle")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if data.Cover, err = formUpload(ctx, "cover"); err != nil {
		return err
	}
	if data.Document, err = formUpload(ctx, "document"); err != nil {
		return err
	}

	art, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == news.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating article")
	}
	return ctx.JSON(http.StatusOK, art)
}

func (api *newsApi) destroy(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == news.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting article")
	}
	return ctx.NoContent(http.StatusNoContent)
}
