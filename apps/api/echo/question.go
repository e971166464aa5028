package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core/question"
	"github.com/dienlabs/eduportal/core/user"
)

type questionApi struct {
	svc      *question.Service
	validate *validator.Validate
}

func registerQuestionAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *question.Service, validate *validator.Validate) {
	api := questionApi{svc: svc, validate: validate}

	qg := g.Group("/questions")

	// public reads are redacted: no answers, no explanations
	qg.GET("", api.query)
	qg.GET("/:id", api.retrieve)

	// submissions need a verified account
	qg.POST("/:id/submit", api.submit, auth, requireMinRole(user.RoleVerified))

	// admin writes; the unredacted detail lives here too
	ag := qg.Group("", auth, requireMinRole(user.RoleAdmin))
	ag.GET("/:id/full", api.retrieveFull)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *questionApi) create(ctx echo.Context) error {
	authorID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data question.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.Create(ctx.Request().Context(), authorID, data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *questionApi) query(ctx echo.Context) error {
	filter := new(question.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	qs, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	redacted := make([]question.Question, len(qs))
	for i, q := range qs {
		redacted[i] = q.Redact()
	}
	return paginated(ctx, redacted, total, args)
}

func (api *questionApi) retrieve(ctx echo.Context) error {
	q, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q.Redact())
}

func (api *questionApi) retrieveFull(ctx echo.Context) error {
	q, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *questionApi) get(ctx echo.Context) (question.Question, error) {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return question.Question{}, err
	}
	q, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == question.ErrNotFound {
			return question.Question{}, errNotFound
		}
		return question.Question{}, errors.Wrap(err, "finding question by id")
	}
	return q, nil
}

func (api *questionApi) update(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data question.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == question.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

// submit grades an answer; the verdict reveals the right answer and the
// explanation.
func (api *questionApi) submit(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data question.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	result, err := api.svc.Submit(ctx.Request().Context(), id, accountID, data)
	if err != nil {
		if errors.Cause(err) == question.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "submitting answer")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *questionApi) destroy(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == question.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}
