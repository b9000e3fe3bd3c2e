package handler

import (
	"podium/internal/util"

	"github.com/gin-gonic/gin"
)

// GetMe returns the authenticated user's profile.
func GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"created_at":   user.CreatedAt,
		"last_login":   user.LastLoginAt,
	})
}
