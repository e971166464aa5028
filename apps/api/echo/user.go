package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *user.Service, validate *validator.Validate) {
	api := userApi{svc: svc, validate: validate}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/register", api.register)
	ug.POST("/login", api.login)

	// authed endpoints
	ag := ug.Group("", auth)
	ag.POST("/refresh", api.refreshToken)
	ag.GET("/profile", api.profile)
	ag.PUT("/profile", api.updateProfile)
	ag.PUT("/password", api.changePassword)
	ag.PUT("/avatar", api.setAvatar)
	ag.DELETE("/avatar", api.removeAvatar)

	// management endpoints
	mg := ag.Group("", requireRole(user.RoleSuperAdmin))
	mg.GET("", api.query)
	mg.GET("/:id", api.retrieve)
	mg.PUT("/:id/role", api.setRole)
	mg.PUT("/:id/status", api.setStatus)
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == user.ErrAccountExists {
			return core.NewConflictError(user.ErrAccountExists, CodeAlreadyExists)
		}
		return errors.Wrap(err, "registering account")
	}
	return ctx.JSON(http.StatusCreated, acct)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := api.svc.Authenticate(ctx.Request().Context(), data.Account, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return core.NewValidationError(user.ErrInvalidCredentials)
		case user.ErrAccountDisabled:
			return newAPIError(http.StatusForbidden, CodeAccountDisabled, user.ErrAccountDisabled.Error())
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(getAccountClaims(acct))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Account: acct})
}

// refreshToken re-issues a token carrying the same identity claims with
// a fresh expiry. Roles are read from the credential store so a renewal
// picks up role changes; between renewals the token's role stands.
func (api *userApi) refreshToken(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	acct, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errInvalidToken
		}
		return errors.Wrap(err, "finding account by id")
	}
	if !acct.IsActive() {
		return newAPIError(http.StatusForbidden, CodeAccountDisabled, user.ErrAccountDisabled.Error())
	}

	token, err := GenerateToken(getAccountClaims(acct))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *userApi) profile(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	acct, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding account by id")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *userApi) updateProfile(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acct, err := api.svc.UpdateProfile(ctx.Request().Context(), id, data)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *userApi) changePassword(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ChangePassword(ctx.Request().Context(), id, data); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been changed."})
}

func (api *userApi) setAvatar(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}

	up, err := formUpload(ctx, "avatar")
	if err != nil {
		return err
	}
	if up == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "avatar", Error: "an image file is required"})
	}

	acct, err := api.svc.SetAvatar(ctx.Request().Context(), id, *up)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "setting avatar")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *userApi) removeAvatar(ctx echo.Context) error {
	id, err := contextAccountID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.RemoveAvatar(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "removing avatar")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Management handlers (super_admin).

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	args := bindListArgs(ctx)

	accts, total, err := api.svc.Filter(ctx.Request().Context(), *filter, args)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	if accts == nil {
		accts = []user.Account{}
	}
	return paginated(ctx, accts, total, args)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return err
	}
	acct, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "finding account by id")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *userApi) setRole(ctx echo.Context) error {
	id, err := api.targetID(ctx)
	if err != nil {
		return err
	}

	var data SetRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	if err := api.svc.SetRole(ctx.Request().Context(), id, data.Role); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "setting role")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) setStatus(ctx echo.Context) error {
	id, err := api.targetID(ctx)
	if err != nil {
		return err
	}

	var data SetStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetStatusRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	if err := api.svc.SetStatus(ctx.Request().Context(), id, data.Status); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "setting status")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// targetID resolves the :id param and refuses self-targeting: an
// operator cannot change their own role or status.
func (api *userApi) targetID(ctx echo.Context) (primitive.ObjectID, error) {
	id, err := objectIDParam(ctx, "id")
	if err != nil {
		return id, err
	}
	selfID, err := contextAccountID(ctx)
	if err != nil {
		return id, err
	}
	if id == selfID {
		return id, errForbidden
	}
	return id, nil
}

type (
	LoginRequest struct {
		Account  string `json:"account" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token   string       `json:"token"`
		Account user.Account `json:"account"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	SetRoleRequest struct {
		Role string `json:"role" validate:"required,oneof=user verified admin super_admin"`
	}

	SetStatusRequest struct {
		Status string `json:"status" validate:"required,oneof=active inactive suspended"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Account = core.CleanString(lr.Account, true /* lower */)
	return validate.Struct(lr)
}
