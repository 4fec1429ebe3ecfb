package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"branchpos/internal/pos"
)

type SessionHTTPHandler struct {
	sessions *pos.SessionService
}

func NewSessionHTTPHandler(sessions *pos.SessionService) *SessionHTTPHandler {
	return &SessionHTTPHandler{sessions: sessions}
}

func (h *SessionHTTPHandler) CheckLogout(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	decision, err := h.sessions.CheckLogout(ctx, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Logout check completed", decision))
}

func (h *SessionHTTPHandler) ReportProduced(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := h.sessions.MarkReportProduced(ctx, actor)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Report recorded", session))
}

type UpdateOrderCountRequest struct {
	OrderCount int64 `json:"order_count" binding:"gte=0"`
}

// UpdateOrderCount lets a terminal reconcile the session counter with the
// numbers it shows, e.g. after reconnecting.
func (h *SessionHTTPHandler) UpdateOrderCount(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req UpdateOrderCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := h.sessions.GetOrCreateToday(ctx, actor.ID, actor.BranchId)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessions.UpdateOrderCount(ctx, session.ID, req.OrderCount); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order count updated", nil))
}

func (h *SessionHTTPHandler) CurrentSession(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := h.sessions.GetOrCreateToday(ctx, actor.ID, actor.BranchId)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Session retrieved successfully", session))
}
