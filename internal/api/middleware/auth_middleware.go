package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jobportal/internal/auth"
	"jobportal/internal/errcode"
)

const claimsKey = "authClaims"

// TokenVerifier checks a bearer token. *auth.TokenService satisfies it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

func abortWith(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error."
	if e, ok := errcode.As(err); ok {
		status = e.Kind.HTTPStatus()
		msg = e.Message
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// AuthMiddleware 校验 Bearer 令牌并将身份信息注入上下文。
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWith(c, auth.ErrUnauthenticated)
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			LoggerFromContext(c).Info("token rejected", "error", err)
			abortWith(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole 必须挂在 AuthMiddleware 之后。
func RequireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c)
		if err := auth.RequireRole(claims, role); err != nil {
			if claims != nil {
				LoggerFromContext(c).Info("role check failed",
					"email", claims.Email,
					"role", string(claims.Role),
					"required", string(role),
				)
			}
			abortWith(c, err)
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the identity set by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	if value, ok := c.Get(claimsKey); ok {
		if claims, ok := value.(*auth.Claims); ok {
			return claims, true
		}
	}
	return nil, false
}
