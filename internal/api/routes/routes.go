package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberbrowser/sentinel/internal/api/handlers"
	"github.com/emberbrowser/sentinel/internal/api/middleware"
	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/config"
	"github.com/emberbrowser/sentinel/internal/enforcer"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/store"
	"github.com/emberbrowser/sentinel/internal/template"
)

// Deps carries the constructed components the API exposes.
type Deps struct {
	Config   config.Config
	Store    *store.PolicyStore
	Limiter  *ratelimit.Limiter
	Audit    *audit.Logger
	Enforcer *enforcer.Enforcer
	Engine   *template.Engine
	Registry *prometheus.Registry
}

// Register wires up the API routes.
func Register(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery(false))

	router.GET("/api/sentinel/health", handlers.HealthHandler)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/sentinel")

	evaluateHandler := handlers.NewEvaluateHandler(deps.Enforcer)
	api.POST("/evaluate", evaluateHandler.Evaluate)

	threatHandler := handlers.NewThreatHandler(deps.Store)
	api.GET("/threats", threatHandler.List)

	// Everything below mutates state or exposes configuration, so it sits
	// behind the optional admin token.
	admin := api.Group("")
	admin.Use(middleware.AdminAuth(deps.Config.AdminToken))

	policyHandler := handlers.NewPolicyHandler(deps.Store, deps.Limiter, deps.Audit)
	admin.GET("/policies", policyHandler.List)
	admin.POST("/policies", policyHandler.Create)
	admin.GET("/policies/:id", policyHandler.Get)
	admin.PUT("/policies/:id", policyHandler.Update)
	admin.DELETE("/policies/:id", policyHandler.Delete)

	templateHandler := handlers.NewTemplateHandler(deps.Engine, deps.Store)
	admin.GET("/templates", templateHandler.List)
	admin.POST("/templates/:id/instantiate", templateHandler.Instantiate)
	admin.GET("/templates/export", templateHandler.Export)
	admin.POST("/templates/import", templateHandler.Import)

	networkHandler := handlers.NewNetworkPolicyHandler(deps.Store)
	admin.GET("/network-policies", networkHandler.List)
	admin.PUT("/network-policies", networkHandler.Upsert)
	admin.DELETE("/network-policies/:id", networkHandler.Delete)
	admin.GET("/network-policies/export", networkHandler.Export)
	admin.POST("/network-policies/import", networkHandler.Import)

	statsHandler := handlers.NewStatsHandler(deps.Store, deps.Limiter, deps.Audit)
	admin.GET("/stats", statsHandler.Stats)
}
