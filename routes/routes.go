package routes

import (
	"order-tracking-service/controllers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterOrderRoutes sets up the order command and query surface.
func RegisterOrderRoutes(r gin.IRouter, oc *controllers.OrderController) {
	orders := r.Group("/api/orders")

	orders.POST("", oc.CreateOrder)
	orders.GET("", oc.ListOrders)
	orders.GET("/:id", oc.GetOrder)
	orders.PUT("/:id/status", oc.UpdateStatus)
	orders.DELETE("/:id", oc.CancelOrder)
	orders.GET("/:id/tracking", oc.GetTracking)
}

// RegisterOpsRoutes sets up health, status and metrics.
func RegisterOpsRoutes(r *gin.Engine, sc *controllers.StatusController) {
	r.GET("/health", sc.Health)
	r.GET("/api/status", sc.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterRealtimeRoutes mounts the WebSocket upgrade. It must stay outside
// request timeouts and rate limits since the handler lives as long as the
// connection.
func RegisterRealtimeRoutes(r *gin.Engine, ws gin.HandlerFunc) {
	r.GET("/ws", ws)
}
