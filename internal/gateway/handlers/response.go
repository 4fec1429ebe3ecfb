package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"branchpos/internal/pos"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func failureStatus(kind pos.FailureKind) int {
	switch kind {
	case pos.FailValidation:
		return http.StatusBadRequest
	case pos.FailNotFound:
		return http.StatusNotFound
	case pos.FailForbidden:
		return http.StatusForbidden
	case pos.FailNoAssignment, pos.FailAlreadyPaid, pos.FailOrderTerminal,
		pos.FailEditLocked, pos.FailTransferConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a core failure onto the HTTP envelope. Infrastructure
// errors come back as a generic 500 without leaking internals.
func writeError(c *gin.Context, err error) {
	if kind, ok := pos.KindOf(err); ok {
		c.JSON(failureStatus(kind), APIResponse{
			Success: false,
			Message: err.Error(),
			Code:    string(kind),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse("Internal server error"))
}
