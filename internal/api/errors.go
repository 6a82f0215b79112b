package api

import (
	"net/http"

	"order-payments/internal/service"
	"order-payments/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[string]int{
	service.KindNotFound:           http.StatusNotFound,
	service.KindAlreadyPaid:        http.StatusUnprocessableEntity,
	service.KindInvalidState:       http.StatusUnprocessableEntity,
	service.KindInvalidAmount:      http.StatusUnprocessableEntity,
	service.KindValidation:         http.StatusUnprocessableEntity,
	service.KindTooManyAttempts:    http.StatusTooManyRequests,
	service.KindConcurrentAttempt:  http.StatusConflict,
	service.KindInvalidTransition:  http.StatusConflict,
	service.KindGatewayUnavailable: http.StatusServiceUnavailable,
}

// StatusFor maps a service error to its HTTP status
func StatusFor(err error) int {
	if code, ok := statusByKind[service.ErrorKind(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// writeError renders err with its mapped status. Internal errors hide their details.
func writeError(c *gin.Context, message string, err error) {
	kind := service.ErrorKind(err)
	code := StatusFor(err)

	if kind == service.KindConcurrentAttempt {
		c.Header("Retry-After", "1")
	}

	body := gin.H{
		"message": message,
		"kind":    kind,
	}
	if code == http.StatusInternalServerError {
		util.GetLogger().Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal server error"
	} else {
		body["error"] = err.Error()
	}
	if id := c.Param("id"); id != "" {
		body["order_id"] = id
	}

	c.JSON(code, body)
}
