package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"slackspot-backend/config"
	"slackspot-backend/internal/metrics"
	"slackspot-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Spot reads are cached in
// responses, which the caller may also flush. Background middleware
// housekeeping stops when ctx is cancelled. A nil gatherer disables /metrics.
func NewRouter(ctx context.Context, handler *Handler, cfg config.ServerConfig, responses *cache.Cache, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()
	r.Use(mw.RequestID())

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	go limiter.RunCleanup(ctx, time.Minute, 3*time.Minute)

	caching := mw.Cache(responses, cfg.CacheTTL)

	r.GET("/healthz", handler.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter), mw.FlushOnWrite(responses))
	{
		api.GET("/spots", caching, handler.ListSpots)
		api.POST("/spots", handler.CreateSpot)
		api.GET("/spots/:spot_key", caching, handler.GetSpot)
		api.POST("/spots/:spot_key/checkins", handler.CheckIn)
		api.DELETE("/spots/:spot_key/checkins/:user_id", handler.CheckOut)

		api.POST("/users", handler.CreateUser)
		api.GET("/users/:user_id", handler.GetUser)
		api.PUT("/users/:user_id/spot", handler.ChangeSpot)
		api.GET("/users/:user_id/checked-in", handler.IsCheckedIn)
		api.PUT("/users/:user_id/push-subscriptions", handler.PutSubscription)
		api.DELETE("/users/:user_id/push-subscriptions", handler.DeleteSubscription)

		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
