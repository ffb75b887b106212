package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"slackspot-backend/internal/model"
)

type createUserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// GetUser handles GET /api/users/:user_id.
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.store.Users.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser handles POST /api/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || len(userID) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be 1 to 128 characters"})
		return
	}

	user := &model.User{UserID: userID}
	if err := h.store.Users.Create(c.Request.Context(), user); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
