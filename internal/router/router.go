package router

import (
	"stock-ledger-service/internal/handlers"
	"stock-ledger-service/internal/middleware"
	"stock-ledger-service/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Router(svc service.LedgerService, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.HeaderActor},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	h := handlers.NewLedgerHandler(svc, log)

	api := r.Group("/api/v1", middleware.Actor())

	products := api.Group("/products")
	products.POST("", h.CreateProduct)
	products.GET("", h.ListProducts)
	products.GET("/:id", h.GetProduct)
	products.GET("/:id/stock", h.GetStock)
	products.POST("/:id/stock/convert", h.ConvertBulkToTracked)
	products.POST("/:id/stock/bulk", h.AdjustBulkStock)
	products.POST("/:id/stock/tracked", h.AddTrackedStock)
	products.GET("/:id/stock/reconcile", h.ReconcileStock)
	products.GET("/:id/adjustments", h.ListAdjustments)
	products.GET("/:id/items", h.ListItems)
	products.GET("/:id/availability", h.GetAvailability)

	api.POST("/items/:id/transition", h.TransitionItem)

	api.POST("/reservations", h.Reserve)
	api.GET("/assignments/:id", h.GetAssignment)
	api.DELETE("/assignments/:id", h.Release)
	api.DELETE("/jobs/:id/assignments", h.ReleaseJob)

	return r
}
