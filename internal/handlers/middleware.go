package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mapping-service/internal/models"
)

// usernameHeader is the identity header resolved by the upstream gateway.
const usernameHeader = "Username"

const usernameContextKey = "username"

// RequireUsername extracts the authenticated username from the request
// header. Identity itself is established by an external collaborator; here
// the header's presence is all that is checked.
func RequireUsername() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader(usernameHeader)
		if username == "" {
			RespondWithError(c, http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Username header is required", nil)
			c.Abort()
			return
		}
		// The username keys per-user directories on disk; a path-like value
		// would break their isolation.
		if username == "." || username == ".." || strings.ContainsAny(username, `/\`) {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "invalid username", nil)
			c.Abort()
			return
		}
		c.Set(usernameContextKey, username)
		c.Next()
	}
}

// currentUser returns the username set by RequireUsername.
func currentUser(c *gin.Context) string {
	return c.GetString(usernameContextKey)
}
