package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v4"
)

const (
	XUserIDHeader   = "X-User-Id"
	XUserRoleHeader = "X-User-Role"
)

type Config struct {
	// JWTSecret enables bearer token authentication when set.
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
}

// Claims of a token issued by the identity provider; the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	userIDKey ctxKey = iota + 1
	userRoleKey
)

func SetAuthContext(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, userRoleKey, role)
}

func FromContext(ctx context.Context) (userID, role string, ok bool) {
	userID, ok = ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", "", false
	}
	role, _ = ctx.Value(userRoleKey).(string)
	return userID, role, true
}
