package handlers

import (
	"errors"
	"net/http"

	"medtrack/internal/reminder"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleError provides a consistent way to handle and log errors
func handleError(c *gin.Context, log *zap.Logger, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		log.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		log.Warn(message, zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": message})
}

// handleCourseError maps coordinator errors to HTTP responses
func handleCourseError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		handleError(c, log, http.StatusNotFound, "Course not found", err)
	case errors.Is(err, reminder.ErrInvalidCourse):
		handleError(c, log, http.StatusUnprocessableEntity, err.Error(), err)
	default:
		handleError(c, log, http.StatusInternalServerError, "Internal server error", err)
	}
}

// HomeHandler handles requests to the root path "/"
func HomeHandler(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to MedTrack!")
}

// HealthHandler is a simple health check endpoint
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
