package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/exam"
	"github.com/dienlabs/eduportal/core/user"
)

type examApi struct {
	svc      *exam.Service
	validate *validator.Validate
}

func registerExamAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *exam.Service, validate *validator.Validate) {
	api := examApi{svc: svc, validate: validate}

	eg := g.Group("/exams")

	// public reads
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve)

	// registration needs a verified account
	vg := eg.Group("/:id", auth, requireMinRole(user.RoleVerified))
	vg.POST("/register", api.register)
	vg.DELETE("/register", api.unregister)

	// admin writes
	ag := eg.Group("", auth, requireMinRole(user.RoleAdmin))
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *examApi) create(ctx echo.Context) error {
	authorID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ex, err := api.svc.Create(ctx.Request().Context(), authorID, data)
	if err != nil {
		if errors.Cause(err) == exam.ErrInvalidScores {
			return core.NewValidationError(nil, core.FieldError{Field: "passingScore", Error: exam.ErrInvalidScores.Error()})
		}
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, ex)
}

func (api *examApi) query(ctx echo.Context) error {
	filter := new(exam.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	exams, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	if exams == nil {
		exams = []exam.Exam{}
	}
	return paginated(ctx, exams, total, args)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	ex, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == exam.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding exam by id")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (api *examApi) update(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}

	var data exam.UpdateExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExam")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ex, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		switch errors.Cause(err) {
		case exam.ErrNotFound:
			return errNotFound
		case exam.ErrInvalidScores:
			return core.NewValidationError(nil, core.FieldError{Field: "passingScore", Error: exam.ErrInvalidScores.Error()})
		}
		return errors.Wrap(err, "updating exam")
	}
	return ctx.JSON(http.StatusOK, ex)
}

func (api *examApi) register(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Register(ctx.Request().Context(), id, accountID); err != nil {
		switch errors.Cause(err) {
		case exam.ErrNotFound:
			return errNotFound
		case exam.ErrNotOpen:
			return core.NewConflictError(exam.ErrNotOpen, CodeNotOpen)
		case exam.ErrAlreadyRegistered:
			return core.NewConflictError(exam.ErrAlreadyRegistered, CodeAlreadyRegistered)
		case exam.ErrFull:
			return core.NewConflictError(exam.ErrFull, CodeExamFull)
		}
		return errors.Wrap(err, "registering for exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) unregister(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	accountID, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Unregister(ctx.Request().Context(), id, accountID); err != nil {
		switch errors.Cause(err) {
		case exam.ErrNotFound:
			return errNotFound
		}
		return errors.Wrap(err, "unregistering from exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *examApi) destroy(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == exam.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}
