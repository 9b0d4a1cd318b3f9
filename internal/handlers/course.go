package handlers

import (
	"context"
	"fmt"
	"net/http"

	"medtrack/internal/auth"
	"medtrack/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

// CourseService is the part of the reminder coordinator the HTTP layer uses
type CourseService interface {
	CreateCourses(ctx context.Context, ownerID string, courses []models.Course) ([]models.Course, error)
	List(ctx context.Context, ownerID string) ([]models.Course, error)
	Dashboard(ctx context.Context, ownerID string) (models.Dashboard, error)
	Toggle(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, error)
	Delete(ctx context.Context, ownerID string, ref models.CourseRef) error
}

// CourseHandler serves the course and reminder endpoints
type CourseHandler struct {
	courses CourseService
	log     *zap.Logger
}

func NewCourseHandler(courses CourseService, log *zap.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, log: log}
}

// RegisterRoutes mounts the course endpoints on a protected group
func (h *CourseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/courses", h.CreateCourses)
	rg.GET("/courses", h.ListCourses)
	rg.GET("/courses/dashboard", h.Dashboard)
	rg.POST("/courses/reminder", h.ToggleReminder)
	rg.POST("/courses/remove", h.RemoveCourse)
	rg.DELETE("/courses/:id", h.DeleteCourse)
}

func (h *CourseHandler) owner(c *gin.Context) (string, bool) {
	ownerID, ok := auth.GetOwnerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
	}
	return ownerID, ok
}

// CreateCourses stores a batch of courses. Entries that fail validation are skipped.
func (h *CourseHandler) CreateCourses(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}

	var request models.CreateCoursesRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		handleError(c, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	courses := make([]models.Course, 0, len(request.Courses))
	skipped := 0
	for i, entry := range request.Courses {
		if err := binding.Validator.ValidateStruct(entry); err != nil {
			h.log.Warn("Skipping invalid course entry", zap.Int("index", i), zap.Error(err))
			skipped++
			continue
		}
		course := entry.ToCourse(ownerID)
		if err := course.Validate(); err != nil {
			h.log.Warn("Skipping invalid course entry", zap.Int("index", i), zap.Error(err))
			skipped++
			continue
		}
		courses = append(courses, course)
	}
	if len(courses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid courses in request", "skipped": skipped})
		return
	}

	created, err := h.courses.CreateCourses(c.Request.Context(), ownerID, courses)
	if err != nil {
		handleCourseError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"courses": created, "skipped": skipped})
}

// ListCourses returns the owner's courses, newest first
func (h *CourseHandler) ListCourses(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}

	courses, err := h.courses.List(c.Request.Context(), ownerID)
	if err != nil {
		handleCourseError(c, h.log, err)
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *CourseHandler) Dashboard(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}

	d, err := h.courses.Dashboard(c.Request.Context(), ownerID)
	if err != nil {
		handleCourseError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// bindRef reads a course reference from the JSON body
func (h *CourseHandler) bindRef(c *gin.Context) (models.CourseRef, bool) {
	var ref models.CourseRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		handleError(c, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return ref, false
	}
	if ref.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id or medicine_name is required"})
		return ref, false
	}
	return ref, true
}

// ToggleReminder turns the course's reminder off when it is set and on otherwise
func (h *CourseHandler) ToggleReminder(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	ref, ok := h.bindRef(c)
	if !ok {
		return
	}

	course, err := h.courses.Toggle(c.Request.Context(), ownerID, ref)
	if err != nil {
		handleCourseError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

// RemoveCourse deletes the course named in the body
func (h *CourseHandler) RemoveCourse(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	ref, ok := h.bindRef(c)
	if !ok {
		return
	}
	h.remove(c, ownerID, ref)
}

// DeleteCourse deletes the course by path id
func (h *CourseHandler) DeleteCourse(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	h.remove(c, ownerID, models.CourseRef{ID: c.Param("id")})
}

func (h *CourseHandler) remove(c *gin.Context, ownerID string, ref models.CourseRef) {
	if err := h.courses.Delete(c.Request.Context(), ownerID, ref); err != nil {
		handleCourseError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted"})
}
