package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"branchpos/internal/pos"
)

// AdminHTTPHandler covers the supporting surfaces: confirmation PINs, the
// waiter assignment directory and the order counter resets.
type AdminHTTPHandler struct {
	pins        *pos.PinService
	assignments *pos.AssignmentDirectory
	counters    *pos.CounterService
}

func NewAdminHTTPHandler(pins *pos.PinService, assignments *pos.AssignmentDirectory, counters *pos.CounterService) *AdminHTTPHandler {
	return &AdminHTTPHandler{
		pins:        pins,
		assignments: assignments,
		counters:    counters,
	}
}

type SetCashierPinRequest struct {
	CashierID int64  `json:"cashier_id" binding:"required"`
	Pin       string `json:"pin" binding:"required"`
}

type VerifyCashierPinRequest struct {
	CashierID int64  `json:"cashier_id" binding:"required"`
	Pin       string `json:"pin" binding:"required"`
}

type SetAdminPinRequest struct {
	Purpose string `json:"purpose" binding:"required"`
	Pin     string `json:"pin" binding:"required"`
}

type VerifyAdminPinRequest struct {
	Purpose string `json:"purpose" binding:"required"`
	Pin     string `json:"pin" binding:"required"`
}

type SetAssignmentRequest struct {
	WaiterID  int64  `json:"waiter_id" binding:"required"`
	CashierID int64  `json:"cashier_id" binding:"required"`
	Pin       string `json:"pin" binding:"required"`
}

func (h *AdminHTTPHandler) SetCashierPin(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req SetCashierPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.pins.SetCashierPin(ctx, req.CashierID, actor.BranchId, req.Pin); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("PIN saved", nil))
}

func (h *AdminHTTPHandler) VerifyCashierPin(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req VerifyCashierPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	valid := h.pins.VerifyCashierPin(ctx, req.CashierID, actor.BranchId, req.Pin)
	c.JSON(http.StatusOK, successResponse("PIN verified", gin.H{"valid": valid}))
}

func (h *AdminHTTPHandler) SetAdminPin(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req SetAdminPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.pins.SetAdminPin(ctx, actor.BranchId, req.Purpose, req.Pin); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("PIN saved", nil))
}

func (h *AdminHTTPHandler) VerifyAdminPin(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req VerifyAdminPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	valid := h.pins.VerifyAdminPin(ctx, actor.BranchId, req.Purpose, req.Pin)
	c.JSON(http.StatusOK, successResponse("PIN verified", gin.H{"valid": valid}))
}

func (h *AdminHTTPHandler) GetAssignment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	waiterID, err := strconv.ParseInt(c.Param("waiterId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid waiter ID"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assignment, err := h.assignments.Get(ctx, waiterID, actor.BranchId)
	if err != nil {
		writeError(c, err)
		return
	}
	if assignment == nil {
		c.JSON(http.StatusNotFound, errorResponse("No assignment for waiter"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Assignment retrieved successfully", assignment))
}

func (h *AdminHTTPHandler) SetAssignment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req SetAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The target cashier confirms with their own PIN; the branch-level
	// delegation PIN works as the administrative override.
	confirmed := h.pins.VerifyCashierPin(ctx, req.CashierID, actor.BranchId, req.Pin) ||
		h.pins.VerifyAdminPin(ctx, actor.BranchId, pos.PinPurposeDelegation, req.Pin)
	if !confirmed {
		c.JSON(http.StatusForbidden, errorResponse("PIN confirmation failed"))
		return
	}

	assignment, err := h.assignments.Set(ctx, req.WaiterID, actor.BranchId, req.CashierID, &actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Assignment saved", assignment))
}

func (h *AdminHTTPHandler) ClearAssignment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	waiterID, err := strconv.ParseInt(c.Param("waiterId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid waiter ID"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	removed, err := h.assignments.Clear(ctx, waiterID, actor.BranchId)
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errorResponse("No assignment for waiter"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Assignment removed", nil))
}

func (h *AdminHTTPHandler) ResetCounter(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	branchID, err := strconv.ParseInt(c.Param("branchId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid branch ID"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.counters.Reset(ctx, branchID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Counter reset", nil))
}

func (h *AdminHTTPHandler) ResetAllCounters(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.counters.ResetAll(ctx); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("All counters reset", nil))
}
