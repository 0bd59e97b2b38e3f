package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/pkg/utils"
)

// UserIDHeader carries the acting user, set by the upstream gateway
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// requireUser rejects requests without a valid acting user
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if err := utils.ValidateID("user id", userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + UserIDHeader + " header",
				Code:    CodeUnauthenticated,
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}
