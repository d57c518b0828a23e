package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatvault/internal/app"
	"chatvault/internal/transport/http/response"
)

type UsageHandler struct {
	usageService *app.UsageService
}

func NewUsageHandler(usageService *app.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// Get reports the caller's consumption inside the current quota period.
func (h *UsageHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	counter, err := h.usageService.Get(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "get usage failed")
		return
	}
	response.OK(c, counter, "")
}
