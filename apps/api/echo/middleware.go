package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dienlabs/eduportal/core/user"
)

// authRequired verifies the Bearer token and stores the claims on the
// request context. Failures are reported with a stable code so clients
// can tell an expired token apart from a missing or broken one.
func authRequired() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return errNoToken
			}
			claims, err := VerifyToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				if err == ErrTokenExpired {
					return errTokenExpired
				}
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, *claims)
			return next(ctx)
		}
	}
}

// requireRole only lets through callers whose role is in the allow-list.
func requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return newForbiddenError(strings.Join(roles, "|"), claims.Role)
		}
	}
}

// requireMinRole lets through callers whose role ranks at or above min
// in the hierarchy.
func requireMinRole(min string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if !user.RoleAtLeast(claims.Role, min) {
				return newForbiddenError(min, claims.Role)
			}
			return next(ctx)
		}
	}
}

// requireOwnership only lets through the owner of the loaded resource,
// with a super_admin bypass. A preceding loader middleware must have put
// the resource on the context; a missing resource is a server-side
// wiring mistake and is reported as such, not as a client error.
func requireOwnership(ownerOf func(obj interface{}) (string, bool)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.Role == user.RoleSuperAdmin {
				return next(ctx)
			}
			owner, ok := ownerOf(ctx.Get(contextObjectKey))
			if !ok {
				return newAPIError(http.StatusInternalServerError, CodeServerError, "resource not loaded for ownership check")
			}
			if owner != claims.Subject {
				return newForbiddenError("owner", claims.Role)
			}
			return next(ctx)
		}
	}
}
