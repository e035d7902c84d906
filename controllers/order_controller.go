package controllers

import (
	"net/http"
	"strconv"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/common/logger"
	"order-tracking-service/models"
	"order-tracking-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderController handles HTTP requests for the order lifecycle.
type OrderController struct {
	orderService services.OrderService
}

// NewOrderController creates a new OrderController.
func NewOrderController(svc services.OrderService) *OrderController {
	return &OrderController{orderService: svc}
}

func respondError(ctx *gin.Context, op string, err error) {
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		logger.Error(ctx, op+" failed", err, zap.String("path", ctx.FullPath()))
	}
	apperrors.Respond(ctx, err)
}

// CreateOrder handles POST /api/orders
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, err := oc.orderService.CreateOrder(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, "create order", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"order":   order,
	})
}

// ListOrders handles GET /api/orders
func (oc *OrderController) ListOrders(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	filter := models.OrderFilter{
		Status:       models.OrderStatus(ctx.Query("status")),
		UserID:       ctx.Query("user_id"),
		RestaurantID: ctx.Query("restaurant_id"),
		Page:         page,
		Limit:        limit,
	}

	orders, pagination, err := oc.orderService.ListOrders(ctx.Request.Context(), filter)
	if err != nil {
		respondError(ctx, "list orders", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"orders":     orders,
		"pagination": pagination,
	})
}

// GetOrder handles GET /api/orders/:id
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	detail, err := oc.orderService.GetOrder(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "get order", err)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

// UpdateStatus handles PUT /api/orders/:id/status
func (oc *OrderController) UpdateStatus(ctx *gin.Context) {
	var req models.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, err := oc.orderService.UpdateStatus(ctx.Request.Context(), ctx.Param("id"), req)
	if err != nil {
		respondError(ctx, "update order status", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"order":   order,
	})
}

// CancelOrder handles DELETE /api/orders/:id
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	order, err := oc.orderService.CancelOrder(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "cancel order", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
		"order":   order,
	})
}

// GetTracking handles GET /api/orders/:id/tracking
func (oc *OrderController) GetTracking(ctx *gin.Context) {
	view, err := oc.orderService.GetTracking(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, "get tracking", err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// parsePaginationParams extracts page/limit query params. Out-of-range values
// fall back to the defaults.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const maxLimit = 100
	pageInt, limitInt := 1, 10
	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "10")); err == nil && l > 0 {
		if l > maxLimit {
			l = maxLimit
		}
		limitInt = l
	}
	return pageInt, limitInt
}
