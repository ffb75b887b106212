package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/mw"
	"slackspot-backend/internal/occupancy"
	"slackspot-backend/internal/parse"
	"slackspot-backend/internal/store"
)

// Occupancy is the engine surface the handlers call.
type Occupancy interface {
	CheckIn(ctx context.Context, userID, spotKey string, durationHours float64) occupancy.Result
	CheckOut(ctx context.Context, userID, spotKey string) occupancy.Result
	ChangeSpot(ctx context.Context, userID, newSpotKey string, durationHours float64) occupancy.Result
	IsCheckedIntoSpot(ctx context.Context, userID, spotKey string) (bool, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine          Occupancy
	store           *store.Store
	webpush         *webpush.Options
	defaultDuration float64
}

// NewHandler creates a new API handler. defaultDuration applies when a
// check-in request omits duration_hours.
func NewHandler(engine Occupancy, s *store.Store, webpushOptions *webpush.Options, defaultDuration float64) *Handler {
	return &Handler{
		engine:          engine,
		store:           s,
		webpush:         webpushOptions,
		defaultDuration: defaultDuration,
	}
}

type occupancyResponse struct {
	Succeeded bool   `json:"succeeded"`
	Outcome   string `json:"outcome"`
	Message   string `json:"message"`
}

// statusFor maps an engine or store error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, occupancy.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, occupancy.ErrNotFound), errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, occupancy.ErrInvariantViolation), errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, occupancy.ErrPartialFailure):
		return http.StatusInternalServerError
	case errors.Is(err, occupancy.ErrStoreUnavailable), errors.Is(err, docstore.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(c *gin.Context, res occupancy.Result) {
	if errors.Is(res.Err, occupancy.ErrPartialFailure) || errors.Is(res.Err, occupancy.ErrStoreUnavailable) {
		log.Printf("[%s] %s %s: %s: %v", mw.GetRequestID(c), c.Request.Method, c.FullPath(), res.Outcome, res.Err)
	}
	c.JSON(statusFor(res.Err), occupancyResponse{
		Succeeded: res.Succeeded(),
		Outcome:   string(res.Outcome),
		Message:   res.Message,
	})
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[%s] %s %s: %v", mw.GetRequestID(c), c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// validSpotKey writes a 400 and reports false when raw is not a "lat,lng" key.
func validSpotKey(c *gin.Context, raw string) bool {
	if _, err := parse.ParseSpotKey(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
