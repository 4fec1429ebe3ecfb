package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"branchpos/internal/database/models"
	"branchpos/internal/gateway/middleware"
	"branchpos/internal/pos"
)

type POSHTTPHandler struct {
	orders    *pos.OrderService
	transfers *pos.TransferService
}

func NewPOSHTTPHandler(orders *pos.OrderService, transfers *pos.TransferService) *POSHTTPHandler {
	return &POSHTTPHandler{
		orders:    orders,
		transfers: transfers,
	}
}

// Request structs
type OrderItemRequest struct {
	MenuItemID int64   `json:"menu_item_id" binding:"required"`
	Quantity   int32   `json:"quantity" binding:"required,min=1"`
	Notes      *string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	ServiceChannel  string             `json:"service_channel" binding:"required"`
	TableID         *int64             `json:"table_id,omitempty"`
	PaymentMethod   *string            `json:"payment_method,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1"`
	AppendToOrderID *int64             `json:"append_to_order_id,omitempty"`
}

type PayOrderRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type EditOrderItemRequest struct {
	ItemID     *int64  `json:"item_id,omitempty"`
	MenuItemID int64   `json:"menu_item_id" binding:"required"`
	Quantity   int32   `json:"quantity" binding:"required,min=1"`
	Notes      *string `json:"notes,omitempty"`
}

type EditOrderRequest struct {
	Items         []EditOrderItemRequest `json:"items" binding:"required,min=1"`
	Notes         *string                `json:"notes,omitempty"`
	ChangeSummary *string                `json:"change_summary,omitempty"`
}

type TransferOrdersRequest struct {
	OrderIDs        []int64 `json:"order_ids" binding:"required,min=1"`
	TargetCashierID int64   `json:"target_cashier_id" binding:"required"`
}

// createOrderOutcome distinguishes a fresh order from an append to an
// existing one in the response envelope.
func createOrderOutcome(isNewOrder bool) (int, string) {
	if isNewOrder {
		return http.StatusCreated, "Order created successfully"
	}
	return http.StatusOK, "Items added to order"
}

func orderIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return 0, false
	}
	return id, true
}

func requireActor(c *gin.Context) (pos.ActorContext, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("Authentication required"))
	}
	return actor, ok
}

func (h *POSHTTPHandler) CreateOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	items := make([]pos.OrderItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = pos.OrderItemInput{
			MenuItemId: item.MenuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		}
	}
	var method *models.PaymentMethod
	if req.PaymentMethod != nil {
		m := models.PaymentMethod(*req.PaymentMethod)
		method = &m
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, actor, pos.CreateOrderInput{
		ServiceChannel:  models.ServiceChannel(req.ServiceChannel),
		TableId:         req.TableID,
		PaymentMethod:   method,
		Notes:           req.Notes,
		Items:           items,
		AppendToOrderId: req.AppendToOrderID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	isNewOrder := req.AppendToOrderID == nil
	status, message := createOrderOutcome(isNewOrder)
	c.JSON(status, successResponse(message, gin.H{
		"order":        order,
		"is_new_order": isNewOrder,
	}))
}

func (h *POSHTTPHandler) GetOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order retrieved successfully", order))
}

func (h *POSHTTPHandler) PayOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.orders.MarkPaid(ctx, actor, orderID, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order paid successfully", order))
}

func (h *POSHTTPHandler) CancelOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.orders.Cancel(ctx, actor, orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order cancelled successfully", order))
}

func (h *POSHTTPHandler) EditOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req EditOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	items := make([]pos.EditItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = pos.EditItemInput{
			ItemId:     item.ItemID,
			MenuItemId: item.MenuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	order, err := h.orders.EditOrder(ctx, actor, orderID, pos.EditOrderInput{
		Items:         items,
		Notes:         req.Notes,
		ChangeSummary: req.ChangeSummary,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order updated successfully", order))
}

func (h *POSHTTPHandler) UnpaidDelegated(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orders, err := h.orders.UnpaidDelegated(ctx, actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Delegated orders retrieved successfully", orders))
}

func (h *POSHTTPHandler) ClearDelegated(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cleared, err := h.orders.ClearDelegated(ctx, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Delegated orders cleared", gin.H{"cleared": cleared}))
}

func (h *POSHTTPHandler) TransferOrders(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req TransferOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders, err := h.transfers.Transfer(ctx, actor, req.OrderIDs, req.TargetCashierID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Orders transferred successfully", orders))
}
