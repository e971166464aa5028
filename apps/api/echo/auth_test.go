package echoapi

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

func signedToken(t *testing.T, claims *Claims, key string) string {
	t.Helper()
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return ss
}

func claimsExpiringAt(exp time.Time) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   primitive.NewObjectID().Hex(),
			ExpiresAt: exp.Unix(),
			IssuedAt:  time.Now().Unix(),
		},
		Account: "zhang3",
		Role:    user.RoleVerified,
	}
}

func TestVerifyToken(t *testing.T) {
	t.Run("valid token round-trips claims", func(t *testing.T) {
		acct := user.Account{ID: primitive.NewObjectID(), Account: "zhang3", Role: user.RoleAdmin}
		ss, err := GenerateToken(getAccountClaims(acct))
		require.NoError(t, err)

		claims, err := VerifyToken(ss)
		require.NoError(t, err)
		assert.Equal(t, acct.ID.Hex(), claims.Subject)
		assert.Equal(t, "zhang3", claims.Account)
		assert.Equal(t, user.RoleAdmin, claims.Role)
	})

	t.Run("expired token", func(t *testing.T) {
		ss := signedToken(t, claimsExpiringAt(time.Now().Add(-time.Minute)), core.Conf.SecretKey)
		_, err := VerifyToken(ss)
		assert.Equal(t, ErrTokenExpired, err)
	})

	t.Run("token at the expiry instant is already expired", func(t *testing.T) {
		ss := signedToken(t, claimsExpiringAt(time.Now()), core.Conf.SecretKey)
		_, err := VerifyToken(ss)
		assert.Equal(t, ErrTokenExpired, err)
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		_, err := VerifyToken("definitely.not.a.token")
		assert.Equal(t, ErrTokenMalformed, err)
	})

	t.Run("wrong signature is invalid, not expired", func(t *testing.T) {
		ss := signedToken(t, claimsExpiringAt(time.Now().Add(-time.Minute)), "some-other-secret")
		_, err := VerifyToken(ss)
		assert.Equal(t, ErrTokenInvalid, err)
	})

	t.Run("wrong signing method is invalid", func(t *testing.T) {
		ss, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsExpiringAt(time.Now().Add(time.Hour))).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = VerifyToken(ss)
		assert.Equal(t, ErrTokenInvalid, err)
	})
}
