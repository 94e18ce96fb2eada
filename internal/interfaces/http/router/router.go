// Package router assembles the gin engine: middleware stack first,
// then the versioned API routes.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invsync/backend/internal/infrastructure/logger"
	"github.com/invsync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar registers a handler's routes on the API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config holds router settings.
type Config struct {
	ServiceName    string
	APIVersion     string
	TracingEnabled bool
	CORS           middleware.CORSConfig
	BodyLimit      middleware.BodyLimitConfig
}

// DefaultConfig returns the default router settings.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName: serviceName,
		APIVersion:  "v1",
		CORS:        middleware.DefaultCORSConfig(),
		BodyLimit:   middleware.DefaultBodyLimitConfig(),
	}
}

// Router wires middleware and handlers onto a gin engine.
type Router struct {
	engine     *gin.Engine
	config     Config
	registrars []RouteRegistrar
}

// New creates a router with the full middleware stack installed.
func New(cfg Config, log *zap.Logger) (*Router, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	if cfg.TracingEnabled {
		engine.Use(middleware.Tracing(cfg.ServiceName))
	}
	engine.Use(logger.GinMiddleware(log))
	if cfg.TracingEnabled {
		engine.Use(middleware.TraceRequestID())
	}
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.BodyLimit(cfg.BodyLimit))

	return &Router{engine: engine, config: cfg}, nil
}

// Register queues a registrar for Setup.
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup mounts every registered handler under the versioned API group
// and returns the engine.
func (r *Router) Setup() *gin.Engine {
	api := r.engine.Group("/api/" + r.config.APIVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
	return r.engine
}

// Engine returns the underlying gin engine, for mounting routes that
// live outside the API group.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
