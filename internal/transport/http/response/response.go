// Package response renders the API envelope: a discriminated success/error
// shape carried by every endpoint in both directions.
package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message"`
	Status    int       `json:"status"`
	Error     any       `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

func OK(c *gin.Context, data any, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(200, APIResponse{
		Success:   true,
		Data:      data,
		Message:   message,
		Status:    200,
		Timestamp: time.Now().UTC(),
		Path:      c.FullPath(),
	})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{
		Success:   false,
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Path:      c.FullPath(),
	})
}

// ErrorWithDetails attaches a structured error payload, e.g. the rate-limit
// retry window on 429 responses.
func ErrorWithDetails(c *gin.Context, status int, message string, details any) {
	c.JSON(status, APIResponse{
		Success:   false,
		Message:   message,
		Status:    status,
		Error:     details,
		Timestamp: time.Now().UTC(),
		Path:      c.FullPath(),
	})
}
