package handlers

import (
	"context"
	"net/http"
	"strconv"

	"testflow_backend/apperr"
	"testflow_backend/catalog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRender:
		return http.StatusUnprocessableEntity
	case apperr.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody hides storage and io details from clients.
func errorBody(err error) gin.H {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return gin.H{"error": "Server error"}
	}
	return gin.H{"error": apperr.Message(err)}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, errorBody(err))
}

func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// actorContext carries the authenticated admin into service calls.
func actorContext(c *gin.Context) context.Context {
	return catalog.WithActor(c.Request.Context(), c.GetString("username"))
}
