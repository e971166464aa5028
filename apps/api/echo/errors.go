package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

// Stable machine-readable error codes surfaced to API clients.
const (
	CodeNoToken           = "NO_TOKEN"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeAlreadyApplied    = "ALREADY_APPLIED"
	CodeAlreadyRegistered = "ALREADY_REGISTERED"
	CodeQuotaFull         = "QUOTA_FULL"
	CodeExamFull          = "EXAM_FULL"
	CodeNotOpen           = "NOT_OPEN"
	CodeInvalidState      = "INVALID_STATE"
	CodeAccountDisabled   = "ACCOUNT_DISABLED"
	CodeServerError       = "SERVER_ERROR"
)

var (
	errNoToken      = newAPIError(http.StatusUnauthorized, CodeNoToken, "authentication token not provided")
	errTokenExpired = newAPIError(http.StatusUnauthorized, CodeTokenExpired, "authentication token has expired")
	errInvalidToken = newAPIError(http.StatusUnauthorized, CodeInvalidToken, "authentication token is invalid")
	errForbidden    = newAPIError(http.StatusForbidden, CodeForbidden, "permission denied")
	errNotFound     = newAPIError(http.StatusNotFound, CodeNotFound, "not found")
)

// newAPIError builds an echo.HTTPError whose payload carries a stable
// code alongside the human-readable message.
func newAPIError(status int, code, msg string) *echo.HTTPError {
	return echo.NewHTTPError(status, echo.Map{"code": code, "error": msg})
}

// newForbiddenError reports a role check failure with the caller's role
// and the role the endpoint wanted.
func newForbiddenError(required, current string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusForbidden, echo.Map{
		"code":         CodeForbidden,
		"error":        "permission denied",
		"requiredRole": required,
		"currentRole":  current,
	})
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how
// to handle our errors. signalShutdown is called in order to gracefully
// shutdown the Server whenever a core shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = echo.Map{"code": CodeValidation, "error": fldErrs}
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = echo.Map{"code": CodeValidation, "error": fldErrs}
			} else {
				message = echo.Map{"code": CodeValidation, "error": origErr.Error()}
			}
		case *core.ConflictError:
			code = http.StatusConflict
			message = echo.Map{"code": origErr.Code, "error": origErr.Error()}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = echo.Map{"code": CodeServerError, "error": http.StatusText(code)}

			var acct user.Account
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				acct.Account = claims.Account
				if id, idErr := primitive.ObjectIDFromHex(claims.Subject); idErr == nil {
					acct.ID = id
				}
			}
			logger.Error(http.StatusText(code), errors.Wrap(err, "request failed"), acct)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
