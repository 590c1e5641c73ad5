package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
)

// RequireAnyTokenType admits requests whose claims carry one of types.
// It must run after one of the JWT middlewares.
func RequireAnyTokenType(types ...service.TokenType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, t := range types {
			if hasTokenType(claims, t) {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
	}
}

func hasTokenType(claims *service.Claims, t service.TokenType) bool {
	return claims != nil && claims.TokenType == t
}
