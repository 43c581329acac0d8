// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/config"
	"github.com/wecassidy/T564/internal/handler"
	"github.com/wecassidy/T564/internal/middleware"
	"github.com/wecassidy/T564/internal/protocol"
	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config     *config.Config
	logger     *zap.Logger
	conn       *protocol.SerialConnection
	controller *t564.Controller
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	conn *protocol.SerialConnection,
	controller *t564.Controller,
) *Router {
	return &Router{
		config:     config,
		logger:     logger,
		conn:       conn,
		controller: controller,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware())

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.conn, r.config, r.logger)
	channelHandler := handler.NewChannelHandler(r.controller, r.logger)
	frameHandler := handler.NewFrameHandler(r.controller, r.logger)
	trainHandler := handler.NewTrainHandler(r.controller, r.logger)
	instrumentHandler := handler.NewInstrumentHandler(r.controller, r.logger)

	// Health check routes outside the API prefix
	healthHandler.RegisterRoutes(router.Group(""))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	channelHandler.RegisterRoutes(apiV1)
	frameHandler.RegisterRoutes(apiV1)
	trainHandler.RegisterRoutes(apiV1)
	instrumentHandler.RegisterRoutes(apiV1)

	r.logger.Info("All routes configured successfully")
}
