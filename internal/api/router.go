package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	GinMode     string
	AdminAPIKey string
}

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(AccessLogMiddleware(logger))
	router.Use(CORSMiddleware())

	router.GET("/health", handler.Health)

	// Provider-facing endpoints. Authenticity is checked by each gateway's
	// signature or MAC, so no API key is required.
	router.POST("/notify/:gateway", handler.Notify)
	router.GET("/return/:gateway", handler.Return)
	router.POST("/return/:gateway", handler.Return)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout/:gateway", handler.Checkout)
		v1.GET("/gateways", handler.ListGateways)

		orders := v1.Group("/orders")
		{
			orders.GET("/:id/payment-info", handler.PaymentInfo)
			orders.POST("/:id/remittance", handler.SaveRemittance)
		}

		admin := v1.Group("")
		admin.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
		{
			admin.POST("/orders", handler.CreateOrder)
			admin.PUT("/gateways/:gateway/settings", handler.UpdateGatewaySettings)
		}
	}

	return router
}
