// Package api wires the HTTP handlers into a gin router.
package api

import (
	"energy-mca/internal/api/handlers"
	"energy-mca/internal/api/middleware"
	"energy-mca/internal/data"
	"energy-mca/internal/mca"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Options configure the router.
type Options struct {
	Settings     mca.Settings
	Cache        *data.ResultCache
	ModelDir     string
	MaxBodyBytes int64
	// Origins lists the CORS origins; empty allows any.
	Origins []string
	Logger  logger.Logger
	Metrics *metrics.Manager
}

// NewRouter builds the API router.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logger.Named("http")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}

	router := gin.New()
	router.Use(middleware.ErrorHandler(opts.Logger))
	router.Use(middleware.CORS(opts.Origins...))
	router.Use(middleware.Logger(opts.Logger, opts.Metrics))

	modelHandler := handlers.NewModelHandler(opts.ModelDir)
	simHandler := handlers.NewSimulationHandler(opts.Settings, opts.Cache, modelHandler, opts.MaxBodyBytes)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", handlers.Metrics())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/simulations", simHandler.RunSimulation)
		v1.GET("/simulations", simHandler.ListSimulations)
		v1.GET("/simulations/:id", simHandler.GetSimulation)
		v1.GET("/simulations/:id/capacity", simHandler.GetCapacity)
		v1.GET("/simulations/:id/supply", simHandler.GetSupply)
		v1.GET("/simulations/:id/consumption", simHandler.GetConsumption)
		v1.GET("/simulations/:id/prices", simHandler.GetPrices)
		v1.GET("/simulations/:id/ranking", simHandler.RankTechnologies)
		v1.GET("/simulations/:id/price-stats", simHandler.PriceStats)

		v1.GET("/models", modelHandler.ListModels)
		v1.GET("/rankers", handlers.ListRankers)
		v1.POST("/timeslices", handlers.FlattenTimeslices)
	}

	return router
}
