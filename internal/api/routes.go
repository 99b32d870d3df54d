package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jroosing/labnet/internal/api/handlers"
	"github.com/jroosing/labnet/internal/api/middleware"
	"github.com/jroosing/labnet/internal/config"
	"github.com/jroosing/labnet/internal/metrics"

	_ "github.com/jroosing/labnet/internal/api/docs" // swagger docs
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)

	auth := api.Group("")
	auth.Use(middleware.RequireBasicAuth(cfg.API.Users, cfg.API.AllowLocalBypass))

	auth.GET("/_version", h.Version)
	auth.GET("/_system_data", h.SystemData)
	auth.GET("/_history", h.History)
	auth.GET("/_modules/list", h.ListModules)

	auth.GET("/_servers/list_all", h.ListAll)
	auth.GET("/_servers/save_state/:name", h.SaveState)
	auth.GET("/_servers/restore_state/:name", h.RestoreState)

	auth.POST("/:module/run/:function", h.Run)
}
