package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"slackspot-backend/internal/model"
	"slackspot-backend/internal/parse"
)

type createSpotRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// ListSpots handles GET /api/spots.
func (h *Handler) ListSpots(c *gin.Context) {
	spots, err := h.store.Spots.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if spots == nil {
		spots = []model.Spot{}
	}
	c.JSON(http.StatusOK, spots)
}

// GetSpot handles GET /api/spots/:spot_key.
func (h *Handler) GetSpot(c *gin.Context) {
	spotKey := c.Param("spot_key")
	if !validSpotKey(c, spotKey) {
		return
	}
	spot, err := h.store.Spots.Get(c.Request.Context(), spotKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

// CreateSpot handles POST /api/spots. The key is derived from the coordinate.
func (h *Handler) CreateSpot(c *gin.Context) {
	var req createSpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coord := parse.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := coord.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spot := &model.Spot{
		SpotKey:          coord.SpotKey(),
		Latitude:         coord.Latitude,
		Longitude:        coord.Longitude,
		CheckedInUserIDs: model.Roster{},
	}
	if err := h.store.Spots.Create(c.Request.Context(), spot); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, spot)
}
