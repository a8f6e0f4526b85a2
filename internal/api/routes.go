package api

import (
	"github.com/gin-gonic/gin"

	"cvinsight/internal/api/middleware"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, analyses *AnalysisHandler, validator middleware.TokenValidator) {
	authMiddleware := middleware.AuthMiddleware(validator)

	v1 := router.Group("/v1")
	{
		group := v1.Group("/analyses")
		group.Use(authMiddleware)
		{
			group.POST("", analyses.CreateAnalysis)
			group.GET("", analyses.ListAnalyses)
			group.DELETE("", analyses.PurgeAnalyses)
			group.GET("/kinds", analyses.ListKinds)
			group.GET("/:kind/:provider", analyses.GetAnalysis)
			group.DELETE("/:kind/:provider", analyses.DeleteAnalysis)
		}
	}
}
