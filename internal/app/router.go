package app

import (
	"academy_backend/docs"
	"academy_backend/internal/config"
	"academy_backend/internal/middleware"
	"academy_backend/internal/util"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// 每个用户每分钟最多的 AI 改写次数
const rewritesPerMinute = 10

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerLessonRoutes(authGroup, c, cfg)
	}
}

func (a *App) registerLessonRoutes(group *gin.RouterGroup, c *controllers, cfg *config.Config) {
	group.GET("/modules/:module", c.module.GetModule)
	group.GET("/modules/:module/lessons/:lesson", c.lesson.OpenLesson)

	lessons := group.Group("/lessons/:id")
	{
		lessons.POST("/events", c.lesson.ApplyEvent)
		lessons.POST("/blur", c.lesson.Blur)
		lessons.GET("/save-status", c.lesson.SaveStatus)
		lessons.POST("/rewrite", security.UserRateLimiter(a.ctx, rewritesPerMinute, time.Minute), c.lesson.Rewrite)
		lessons.POST("/continue", c.lesson.Continue)

		maxUpload := int64(cfg.Storage.MaxUploadMB)
		if maxUpload <= 0 {
			maxUpload = util.MaxUploadMBDefault
		}
		// multipart 头部留 1MB 余量
		lessons.POST("/personas/:persona/image", middleware.BodyLimit((maxUpload+1)<<20), c.lesson.UploadPersonaImage)
	}

	group.GET("/previews/:handle", c.lesson.Preview)
}
