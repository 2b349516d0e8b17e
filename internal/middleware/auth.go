package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

type AuthMiddleware struct {
	tokens auth.JWTService
}

func NewAuthMiddleware(tokens auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer access token and stores the caller in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.NewUnauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, apperrors.NewUnauthorized("invalid authorization format"))
			return
		}

		claims, err := m.tokens.ValidateAccessToken(parts[1])
		if err != nil {
			abort(c, apperrors.NewUnauthorized("invalid token"))
			return
		}

		handler.SetActor(c, model.Actor{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   model.Role(claims.Role),
		})
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := handler.Actor(c)
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		abort(c, apperrors.NewForbidden("permission denied"))
	}
}

func abort(c *gin.Context, err error) {
	httputil.RespondWithError(c, err)
	c.Abort()
}
