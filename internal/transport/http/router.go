package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dropmail/backend/internal/config"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	EmailService   *service.EmailService
	Store          storage.Store
	HealthHandler  http.Handler // 可为 nil
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.MailboxService, deps.EmailService, deps.Store)

	// 健康检查
	if deps.HealthHandler != nil {
		router.GET("/health/live", gin.WrapH(deps.HealthHandler))
		router.GET("/health/ready", gin.WrapH(deps.HealthHandler))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		mailboxes := api.Group("/mailboxes")
		{
			mailboxes.POST("", handler.resolveMailbox)
			mailboxes.GET("/:id", handler.getMailbox)
			mailboxes.POST("/:id/extend", handler.extendMailbox)
			mailboxes.POST("/:id/active", handler.setMailboxActive)

			mailboxes.GET("/:id/messages", handler.listMessages)
			mailboxes.GET("/:id/messages/:msgID", handler.getMessage)
			mailboxes.POST("/:id/messages/:msgID/read", handler.markMessageRead)
			mailboxes.DELETE("/:id/messages/:msgID", handler.deleteMessage)

			mailboxes.GET("/:id/pushlogs", handler.listPushLogs)
		}

		attachments := api.Group("/attachments")
		{
			attachments.GET("/:id", handler.getAttachment)
			attachments.GET("/:id/download", handler.downloadAttachment)
		}
	}

	return router
}

// requestLogger 记录每个请求的方法、路径、状态和耗时。
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
