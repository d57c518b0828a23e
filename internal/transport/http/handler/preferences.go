package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatvault/internal/app"
	"chatvault/internal/transport/http/response"
)

type PreferencesHandler struct {
	authService *app.AuthService
}

func NewPreferencesHandler(authService *app.AuthService) *PreferencesHandler {
	return &PreferencesHandler{authService: authService}
}

func (h *PreferencesHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	prefs, err := h.authService.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "get preferences failed")
		}
		return
	}

	response.OK(c, prefs, "")
}

func (h *PreferencesHandler) Update(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "invalid token payload")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil || !json.Valid(body) {
		response.Error(c, http.StatusBadRequest, "invalid preferences payload")
		return
	}

	if err := h.authService.UpdatePreferences(c.Request.Context(), userID, body); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "update preferences failed")
		}
		return
	}

	response.OK(c, json.RawMessage(body), "preferences updated")
}
