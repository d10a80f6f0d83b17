package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/urmzd/homai-panel/pkg/api/handlers"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// Options holds the dependencies of the router
type Options struct {
	Dispatcher *rpc.Dispatcher
	Store      handlers.Pinger

	// Sessions reports the number of open edit sessions; optional
	Sessions func() int

	// Gatherer serves /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Router holds the Gin engine and dependencies
type Router struct {
	engine *gin.Engine
	opts   Options
}

// NewRouter creates a new API router
func NewRouter(opts Options) *Router {
	gin.SetMode(gin.ReleaseMode)

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine: engine,
		opts:   opts,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	// Prometheus metrics
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.opts.Gatherer, promhttp.HandlerOpts{})))

	// Health check at root
	healthHandler := handlers.NewHealthHandler(r.opts.Store, r.opts.Sessions)
	r.engine.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		// Health
		v1.GET("/health", healthHandler.Health)

		// Remote calls
		rpcHandler := handlers.NewRPCHandler(r.opts.Dispatcher)
		v1.POST("/rpc", rpcHandler.Call)
		v1.GET("/rpc/methods", rpcHandler.Methods)
		v1.GET("/ws", rpcHandler.WebSocket)
	}
}

// Handler returns the router as an http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}
