package api

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mes-result-backend/internal/mw"
)

// RouterOptions configures the ambient middleware of the router.
type RouterOptions struct {
	Logger   *zap.Logger
	Limiter  *mw.IPRateLimiter
	Gatherer prometheus.Gatherer

	// AllowedOrigins enables CORS for the listed origins when not empty.
	AllowedOrigins []string
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	if opts.Logger != nil {
		r.Use(ginzap.Ginzap(opts.Logger, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(opts.Logger, true))
	} else {
		r.Use(gin.Recovery())
	}

	if len(opts.AllowedOrigins) > 0 {
		r.Use(mw.CORS(opts.AllowedOrigins))
	}

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	caching := func(c *gin.Context) { c.Next() }
	if h.responses != nil {
		caching = h.responses.Middleware()
	}

	api := r.Group("/api")
	if opts.Limiter != nil {
		api.Use(mw.RateLimiter(opts.Limiter))
	}
	{
		api.GET("/work-orders", caching, h.ListWorkOrders)
		api.GET("/work-orders/:id", caching, h.GetWorkOrder)
		api.GET("/work-orders/:id/results", h.ListWorkOrderResults)

		api.PUT("/context", h.PutContext)
		api.GET("/results", h.GetResults)
		api.POST("/results", h.PostResult)
		api.PATCH("/results/:id", h.PatchResult)
		api.DELETE("/results/:id", h.DeleteResult)
		api.POST("/results/:id/commit", h.CommitResult)
		api.POST("/independent-results", h.PostIndependentResult)

		api.GET("/defect-requests", h.ListDefectRequests)
		api.GET("/defect-requests/:id", h.GetDefectRequest)
		api.POST("/defect-requests/:id/records", h.SubmitDefectRecords)
		api.POST("/defect-requests/:id/cancel", h.CancelDefectRequest)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
