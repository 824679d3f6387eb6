package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/internal/shared/middleware"
	"paysync-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
	)

	router.GET("/health", healthCheckHandler(c))
	router.GET("/metrics", metrics.Handler())

	sessionConfig := middleware.DefaultSessionConfig()
	if c.Config.App.IsDevelopment() {
		sessionConfig.CookieSecure = false
	}

	v1 := router.Group("/api/v1")
	{
		setupWebhookRoutes(v1, c)
		setupCheckoutRoutes(v1, c, sessionConfig)
		setupAdminPaymentRoutes(v1, c)
	}

	return router
}

// ========================================
// WEBHOOK ROUTES
// ========================================
// No auth: deliveries are authenticated by their signature.
func setupWebhookRoutes(v1 *gin.RouterGroup, c *container.Container) {
	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/paypal", c.WebhookHandler.PayPal)
	}
}

// ========================================
// CHECKOUT ROUTES
// ========================================
func setupCheckoutRoutes(v1 *gin.RouterGroup, c *container.Container, sessionConfig middleware.SessionConfig) {
	checkout := v1.Group("/checkout")
	checkout.Use(middleware.SessionMiddleware(sessionConfig))
	{
		checkout.POST("/orders", c.CheckoutHandler.CreateOrder)
		checkout.POST("/orders/:id/complete", c.CheckoutHandler.CompleteOrder)
	}
}

// ========================================
// ADMIN PAYMENT ROUTES
// ========================================
func setupAdminPaymentRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin/payments")
	admin.Use(middleware.AuthMiddleware(c.JWTManager), middleware.AdminMiddleware())
	{
		orders := admin.Group("/orders/:orderID")
		orders.GET("/transactions", c.AdminHandler.ListTransactions)
		orders.GET("/transactions/export", c.AdminHandler.ExportTransactions)
		orders.POST("/authorize", c.AdminHandler.Authorize)
		orders.POST("/reauthorize", c.AdminHandler.Reauthorize)
		orders.POST("/capture", c.AdminHandler.Capture)
		orders.POST("/refund", c.AdminHandler.Refund)
		orders.POST("/void", c.AdminHandler.Void)

		admin.GET("/webhooks", c.AdminHandler.ListWebhooks)
	}
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		dbStatus := "ok"
		if err := appCtx.DB.HealthCheck(ctx); err != nil {
			dbStatus = "error: " + err.Error()
			status = "degraded"
		}

		redisStatus := "ok"
		if err := appCtx.Redis.HealthCheck(ctx); err != nil {
			redisStatus = "error: " + err.Error()
			status = "degraded"
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"services": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		})
	}
}
