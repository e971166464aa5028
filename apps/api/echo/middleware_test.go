package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

func okHandler(ctx echo.Context) error { return ctx.NoContent(http.StatusOK) }

func doRequest(t *testing.T, h echo.HandlerFunc, mws []echo.MiddlewareFunc, token string) (*httptest.ResponseRecorder, echo.Map) {
	t.Helper()
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}

	app := echo.New()
	app.HTTPErrorHandler = newAppHTTPErrorHandler(noopLogger{}, nil, func() {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ctx := app.NewContext(req, rec)

	if err := h(ctx); err != nil {
		app.HTTPErrorHandler(err, ctx)
	}

	var body echo.Map
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

type noopLogger struct{}

func (noopLogger) Enable(bool)                  {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

var _ core.Logger = noopLogger{}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	acct := user.Account{ID: primitive.NewObjectID(), Account: "li4", Role: role}
	ss, err := GenerateToken(getAccountClaims(acct))
	require.NoError(t, err)
	return ss
}

func TestAuthRequired(t *testing.T) {
	mws := []echo.MiddlewareFunc{authRequired()}

	t.Run("missing header", func(t *testing.T) {
		rec, body := doRequest(t, okHandler, mws, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeNoToken, body["code"])
	})

	t.Run("expired token", func(t *testing.T) {
		ss := signedToken(t, claimsExpiringAt(time.Now().Add(-time.Minute)), core.Conf.SecretKey)
		rec, body := doRequest(t, okHandler, mws, ss)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeTokenExpired, body["code"])
	})

	t.Run("broken token", func(t *testing.T) {
		rec, body := doRequest(t, okHandler, mws, "nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, CodeInvalidToken, body["code"])
	})

	t.Run("valid token passes", func(t *testing.T) {
		rec, _ := doRequest(t, okHandler, mws, tokenFor(t, user.RoleUser))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireMinRole(t *testing.T) {
	tests := []struct {
		role     string
		min      string
		wantCode int
	}{
		{user.RoleUser, user.RoleUser, http.StatusOK},
		{user.RoleUser, user.RoleVerified, http.StatusForbidden},
		{user.RoleUser, user.RoleAdmin, http.StatusForbidden},
		{user.RoleVerified, user.RoleVerified, http.StatusOK},
		{user.RoleVerified, user.RoleAdmin, http.StatusForbidden},
		{user.RoleAdmin, user.RoleVerified, http.StatusOK},
		{user.RoleAdmin, user.RoleAdmin, http.StatusOK},
		{user.RoleAdmin, user.RoleSuperAdmin, http.StatusForbidden},
		{user.RoleSuperAdmin, user.RoleAdmin, http.StatusOK},
		{user.RoleSuperAdmin, user.RoleSuperAdmin, http.StatusOK},
		{"unknown_role", user.RoleUser, http.StatusOK}, // unknown ranks lowest
		{"unknown_role", user.RoleVerified, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role+" needs "+tt.min, func(t *testing.T) {
			mws := []echo.MiddlewareFunc{authRequired(), requireMinRole(tt.min)}
			rec, body := doRequest(t, okHandler, mws, tokenFor(t, tt.role))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, CodeForbidden, body["code"])
				assert.Equal(t, tt.min, body["requiredRole"])
				assert.Equal(t, tt.role, body["currentRole"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	mws := []echo.MiddlewareFunc{authRequired(), requireRole(user.RoleSuperAdmin)}

	t.Run("admin is not in the allow-list", func(t *testing.T) {
		rec, body := doRequest(t, okHandler, mws, tokenFor(t, user.RoleAdmin))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodeForbidden, body["code"])
		assert.Equal(t, user.RoleAdmin, body["currentRole"])
	})

	t.Run("super_admin passes", func(t *testing.T) {
		rec, _ := doRequest(t, okHandler, mws, tokenFor(t, user.RoleSuperAdmin))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

type ownedThing struct {
	Owner primitive.ObjectID
}

func thingOwner(obj interface{}) (string, bool) {
	thing, ok := obj.(ownedThing)
	if !ok {
		return "", false
	}
	return thing.Owner.Hex(), true
}

func loadThing(owner primitive.ObjectID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctx.Set(contextObjectKey, ownedThing{Owner: owner})
			return next(ctx)
		}
	}
}

func TestRequireOwnership(t *testing.T) {
	owner := user.Account{ID: primitive.NewObjectID(), Account: "wang5", Role: user.RoleUser}
	ownerToken, err := GenerateToken(getAccountClaims(owner))
	require.NoError(t, err)

	t.Run("owner passes", func(t *testing.T) {
		mws := []echo.MiddlewareFunc{authRequired(), loadThing(owner.ID), requireOwnership(thingOwner)}
		rec, _ := doRequest(t, okHandler, mws, ownerToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		mws := []echo.MiddlewareFunc{authRequired(), loadThing(primitive.NewObjectID()), requireOwnership(thingOwner)}
		rec, body := doRequest(t, okHandler, mws, ownerToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, CodeForbidden, body["code"])
	})

	t.Run("super_admin bypasses ownership", func(t *testing.T) {
		mws := []echo.MiddlewareFunc{authRequired(), loadThing(primitive.NewObjectID()), requireOwnership(thingOwner)}
		rec, _ := doRequest(t, okHandler, mws, tokenFor(t, user.RoleSuperAdmin))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing resource is a server error", func(t *testing.T) {
		mws := []echo.MiddlewareFunc{authRequired(), requireOwnership(thingOwner)}
		rec, body := doRequest(t, okHandler, mws, ownerToken)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, CodeServerError, body["code"])
	})
}
