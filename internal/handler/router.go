package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-inventory/pkg/middleware"
)

// Routes groups the handlers and optional middleware mounted by RegisterRoutes
type Routes struct {
	Health    *HealthHandler
	Inventory *InventoryHandler
	Admin     *AdminHandler

	// Idempotency guards purchases against client retries. Nil disables it.
	Idempotency gin.HandlerFunc
}

// RegisterRoutes mounts the service's HTTP API on router
func RegisterRoutes(router *gin.Engine, r *Routes) {
	router.GET("/health", r.Health.Health)
	router.GET("/ready", r.Health.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identity())
	{
		v1.GET("/events/:id/availability", r.Inventory.Availability)

		buyer := v1.Group("")
		buyer.Use(middleware.RequireUser())
		{
			purchase := []gin.HandlerFunc{}
			if r.Idempotency != nil {
				purchase = append(purchase, r.Idempotency)
			}
			purchase = append(purchase, r.Inventory.Purchase)
			buyer.POST("/events/:id/tickets", purchase...)
			buyer.GET("/me/tickets", r.Inventory.MyTickets)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireTenant())
		{
			admin.POST("/events", r.Admin.PublishEvent)
			admin.GET("/events", r.Admin.ListEvents)
			admin.DELETE("/events/:id", r.Admin.DeleteEvent)
			admin.GET("/events/:id/tickets", r.Admin.EventTickets)
			admin.GET("/events/:id/summary", r.Admin.EventSummary)
			admin.POST("/events/:id/check-ins", r.Admin.CheckIn)
		}
	}

	// Service-to-service routes, not exposed through the gateway
	internal := router.Group("/internal")
	internal.DELETE("/buyers/:id/tickets", r.Admin.PurgeBuyerTickets)
}
