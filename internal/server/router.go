// Package server builds the gin engine and runs the HTTP listener.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/plant-disease-api/internal/handlers"
	"github.com/Brownie44l1/plant-disease-api/internal/server/middleware"
	"github.com/Brownie44l1/plant-disease-api/internal/server/respond"
)

// RouterOptions configures the engine. Metrics may be nil.
type RouterOptions struct {
	CORSOrigins    []string
	PredictLimit   middleware.RateLimitRule
	MetricsHandler http.Handler
}

// NewRouter constructs the gin engine with middleware and routes
// registered.
func NewRouter(h *handlers.Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(opts.CORSOrigins),
	)

	r.GET("/health", h.Health)
	h.RegisterRoutes(r.Group("/api"), middleware.RateLimit(opts.PredictLimit))
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "Route not found")
	})
	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
