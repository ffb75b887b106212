package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type checkInRequest struct {
	UserID        string   `json:"user_id" binding:"required"`
	DurationHours *float64 `json:"duration_hours"`
}

type changeSpotRequest struct {
	SpotKey       string   `json:"spot_key" binding:"required"`
	DurationHours *float64 `json:"duration_hours"`
}

func (h *Handler) duration(requested *float64) float64 {
	if requested == nil {
		return h.defaultDuration
	}
	return *requested
}

// CheckIn handles POST /api/spots/:spot_key/checkins.
func (h *Handler) CheckIn(c *gin.Context) {
	spotKey := c.Param("spot_key")
	if !validSpotKey(c, spotKey) {
		return
	}
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	writeResult(c, h.engine.CheckIn(c.Request.Context(), req.UserID, spotKey, h.duration(req.DurationHours)))
}

// CheckOut handles DELETE /api/spots/:spot_key/checkins/:user_id.
func (h *Handler) CheckOut(c *gin.Context) {
	spotKey := c.Param("spot_key")
	if !validSpotKey(c, spotKey) {
		return
	}
	writeResult(c, h.engine.CheckOut(c.Request.Context(), c.Param("user_id"), spotKey))
}

// ChangeSpot handles PUT /api/users/:user_id/spot.
func (h *Handler) ChangeSpot(c *gin.Context) {
	var req changeSpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validSpotKey(c, req.SpotKey) {
		return
	}
	writeResult(c, h.engine.ChangeSpot(c.Request.Context(), c.Param("user_id"), req.SpotKey, h.duration(req.DurationHours)))
}

// IsCheckedIn handles GET /api/users/:user_id/checked-in?spot=KEY.
func (h *Handler) IsCheckedIn(c *gin.Context) {
	spotKey := c.Query("spot")
	if spotKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spot is required"})
		return
	}
	if !validSpotKey(c, spotKey) {
		return
	}
	checkedIn, err := h.engine.IsCheckedIntoSpot(c.Request.Context(), c.Param("user_id"), spotKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "spot_key": spotKey, "checked_in": checkedIn})
}
