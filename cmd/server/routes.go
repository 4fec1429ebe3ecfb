package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"branchpos/internal/database/models"
	"branchpos/internal/gateway/handlers"
	"branchpos/internal/gateway/middleware"
)

func buildRouter(
	posHandler *handlers.POSHTTPHandler,
	sessionHandler *handlers.SessionHTTPHandler,
	adminHandler *handlers.AdminHTTPHandler,
) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit())

	protected := r.Group("/api/v1")
	protected.Use(middleware.Auth())
	{
		posGroup := protected.Group("/pos")
		{
			posGroup.POST("/orders", posHandler.CreateOrder)
			posGroup.GET("/orders/unpaid-delegated", posHandler.UnpaidDelegated)
			posGroup.POST("/orders/clear-delegated", posHandler.ClearDelegated)
			posGroup.GET("/orders/:id", posHandler.GetOrder)
			posGroup.PUT("/orders/:id", posHandler.EditOrder)
			posGroup.POST("/orders/:id/pay", posHandler.PayOrder)
			posGroup.POST("/orders/:id/cancel", posHandler.CancelOrder)
			posGroup.POST("/transfers", posHandler.TransferOrders)

			posGroup.GET("/logout-check", sessionHandler.CheckLogout)
			posGroup.POST("/report-produced", sessionHandler.ReportProduced)
			posGroup.GET("/session", sessionHandler.CurrentSession)
			posGroup.PUT("/session/order-count", sessionHandler.UpdateOrderCount)
		}

		pins := protected.Group("/pins")
		{
			pins.POST("/cashier", adminHandler.SetCashierPin)
			pins.POST("/cashier/verify", adminHandler.VerifyCashierPin)
			pins.POST("/admin", adminHandler.SetAdminPin)
			pins.POST("/admin/verify", adminHandler.VerifyAdminPin)
		}

		// Setting an assignment is gated by PIN confirmation in the handler,
		// so waiters can initiate their own delegation setup.
		assignments := protected.Group("/assignments")
		{
			assignments.GET("/:waiterId", adminHandler.GetAssignment)
			assignments.POST("", adminHandler.SetAssignment)
			assignments.DELETE("/:waiterId", adminHandler.ClearAssignment)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRoles(models.RoleBranchAdmin, models.RoleSuperUser))
		{
			admin.POST("/counters/:branchId/reset", adminHandler.ResetCounter)
			admin.POST("/counters/reset-all", adminHandler.ResetAllCounters)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	})

	return r
}
