package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/jengzang/taxi-etl-go/internal/config"
	"github.com/jengzang/taxi-etl-go/internal/handler"
	"github.com/jengzang/taxi-etl-go/internal/middleware"
	"github.com/jengzang/taxi-etl-go/internal/service"
)

// SetupRouter wires the trigger API
func SetupRouter(cfg config.Config, svc *service.PipelineService, logger log.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	h := handler.NewPipelineHandler(svc)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		api.GET("/stages", h.ListStages)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/trips", h.ListTrips)
		api.GET("/summary", h.GetSummary)

		trigger := api.Group("", middleware.RequireIdle(svc.Active))
		{
			trigger.POST("/pipeline/run", h.RunPipeline)
			trigger.POST("/stages/:name/run", h.RunStage)
		}
	}

	return r
}
