package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/user"
)

var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenInvalid   = errors.New("token is invalid")

	contextClaimsKey = "claims"
	contextObjectKey = "object"
)

// Claims represents the authorization claims transmitted via a JWT.
// Subject is the account id hex.
type Claims struct {
	jwt.StandardClaims
	Account string `json:"account,omitempty"`
	Role    string `json:"role,omitempty"`
}

func getAccountClaims(acct user.Account) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   acct.ID.Hex(),
			ExpiresAt: now.Add(core.Conf.Server.TokenExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Account: acct.Account,
		Role:    acct.Role,
	}
}

// GenerateToken signs a JWT token string representing the claims.
func GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(core.Conf.SecretKey))
	return ss, errors.Wrap(err, "signing token")
}

// VerifyToken parses and checks a signed token string. Expiry is checked
// explicitly so that the boundary instant (now == exp) already counts as
// expired, and an expired-but-otherwise-valid token is reported as
// ErrTokenExpired rather than a generic failure.
func VerifyToken(ss string) (*Claims, error) {
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	claims := new(Claims)
	token, err := parser.ParseWithClaims(ss, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(core.Conf.SecretKey), nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors&jwt.ValidationErrorMalformed != 0 {
			return nil, ErrTokenMalformed
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if !time.Now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errNoToken
}

// contextAccountID returns the authenticated account id from the
// verified claims.
func contextAccountID(ctx echo.Context) (primitive.ObjectID, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return primitive.NilObjectID, errInvalidToken
	}
	return id, nil
}
