package handlers

import (
	"net/http"

	"ixmanager_bridge/internal/logger"
	"ixmanager_bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// Option customizes a Handler.
type Option func(*Handler)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithOriginCheck replaces the WebSocket origin check.
func WithOriginCheck(check func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = check }
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	h := &Handler{
		services: services,
		log:      log.Named("http"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// snapshot stream, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIDMiddleware)
	{
		h.registerChargerRoutes(api)
		h.registerSetupRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerChargerRoutes(api *gin.RouterGroup) {
	charger := api.Group("/charger")
	{
		charger.GET("/status", h.getStatus)
		charger.POST("/refresh", h.refreshStatus)
		charger.POST("/start", h.startCharging)
		charger.POST("/stop", h.stopCharging)
		// Body example: {"amps":16}
		charger.POST("/maximum-current", h.setMaximumCurrent)
		charger.POST("/target-current", h.setTargetCurrent)
		// Body example: {"enabled":true}
		charger.POST("/single-phase", h.setSinglePhase)
	}
}

func (h *Handler) registerSetupRoutes(api *gin.RouterGroup) {
	api.POST("/setup/validate", h.validateSetup)
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
		logs.GET("/", h.getLogs)
	}
}
