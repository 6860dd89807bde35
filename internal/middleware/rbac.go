package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
)

// RequireRole lets the request through only when the token's role is one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		switch {
		case len(roles) == 1 && roles[0] == model.RoleStudent:
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
		case len(roles) == 1 && roles[0] == model.RoleTeacher:
			response.AbortFail(c, http.StatusForbidden, response.ErrTeacherAccessOnly)
		default:
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
		}
	}
}
