// Package respond writes the JSON envelopes shared by every endpoint.
package respond

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes.
const (
	CodeValidation       = "validation_error"
	CodeTooLarge         = "file_too_large"
	CodeModelUnavailable = "model_unavailable"
	CodeInferenceFailure = "inference_failure"
	CodeUnknownDisease   = "unknown_disease"
	CodeNotFound         = "not_found"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "requestId"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Error aborts the request with the error envelope.
func Error(c *gin.Context, status int, code, message string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(c.Request.Context(), level, "http.error",
		"status", status,
		"code", code,
		"message", message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"request_id", c.GetString(RequestIDKey))

	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
