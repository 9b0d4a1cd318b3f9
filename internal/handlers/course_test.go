package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medtrack/internal/auth"
	"medtrack/internal/models"
	"medtrack/internal/reminder"
	"medtrack/internal/services"
	"medtrack/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "handler-secret"

type testServer struct {
	router *gin.Engine
	coord  *reminder.Coordinator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Course{}))

	log := zap.NewNop()
	notifier := services.NewDispatcher(services.NewLogSender(log), services.DispatcherConfig{}, log)
	coord := reminder.NewCoordinator(store.NewGormCourseStore(db), reminder.NewRegistry(log), notifier,
		reminder.DriverConfig{PollInterval: time.Hour}, log)
	t.Cleanup(func() {
		coord.Shutdown()
		notifier.Close()
	})

	return &testServer{router: newRouter(coord, log), coord: coord}
}

func newRouter(courses CourseService, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.GET("/health", HealthHandler)
	protected := r.Group("/", auth.AuthMiddleware(testSecret))
	NewCourseHandler(courses, log).RegisterRoutes(protected)
	return r
}

func do(t *testing.T, r http.Handler, owner, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		token, err := auth.GenerateToken(testSecret, owner, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func courseEntry(name string, freq int) map[string]any {
	return map[string]any{
		"medicine_name":   name,
		"dosage":          "1 tablet",
		"frequency":       freq,
		"duration_type":   "days",
		"duration":        7,
		"start_date":      "2026-03-01T09:00:00Z",
		"recipient_email": "patient@example.com",
	}
}

type createResponse struct {
	Courses []models.Course `json:"courses"`
	Skipped int             `json:"skipped"`
}

func createCourse(t *testing.T, s *testServer, owner, name string) models.Course {
	t.Helper()
	w := do(t, s.router, owner, http.MethodPost, "/courses", map[string]any{"courses": []any{courseEntry(name, 60)}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp createResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Courses, 1)
	return resp.Courses[0]
}

func TestCreateCoursesSkipsInvalidEntries(t *testing.T) {
	s := newTestServer(t)

	bad := courseEntry("Broken", 0)
	huge := courseEntry("Huge", math.MaxInt64)
	noName := courseEntry("", 60)
	w := do(t, s.router, "alice", http.MethodPost, "/courses", map[string]any{
		"courses": []any{courseEntry("Aspirin", 60), bad, huge, noName},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Courses, 1)
	assert.Equal(t, 3, resp.Skipped)

	c := resp.Courses[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "alice", c.OwnerID)
	assert.False(t, c.ReminderSet)
	if assert.NotNil(t, c.EndDate) {
		assert.True(t, c.EndDate.Equal(time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)))
	}
	assert.Zero(t, s.coord.Registry().Len(), "creating a course never starts a timer")
}

func TestCreateCoursesRejectsEmptyBatch(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s.router, "alice", http.MethodPost, "/courses", map[string]any{"courses": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s.router, "alice", http.MethodPost, "/courses", map[string]any{"courses": []any{courseEntry("Broken", 0)}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleReminderRoundTrip(t *testing.T) {
	s := newTestServer(t)
	c := createCourse(t, s, "alice", "Aspirin")

	type toggleResponse struct {
		Course models.Course `json:"course"`
	}

	w := do(t, s.router, "alice", http.MethodPost, "/courses/reminder", map[string]string{"course_id": c.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp toggleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Course.ReminderSet)
	assert.True(t, s.coord.Registry().IsActive(c.ID))

	w = do(t, s.router, "alice", http.MethodPost, "/courses/reminder", map[string]string{"medicine_name": "Aspirin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Course.ReminderSet)
	assert.False(t, s.coord.Registry().IsActive(c.ID))
}

func TestToggleReminderErrors(t *testing.T) {
	s := newTestServer(t)
	c := createCourse(t, s, "alice", "Aspirin")

	w := do(t, s.router, "bob", http.MethodPost, "/courses/reminder", map[string]string{"course_id": c.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s.router, "alice", http.MethodPost, "/courses/reminder", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s.router, "", http.MethodPost, "/courses/reminder", map[string]string{"course_id": c.ID})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, s.coord.Registry().Len())
}

func TestDeleteCourse(t *testing.T) {
	s := newTestServer(t)
	a := createCourse(t, s, "alice", "Aspirin")
	b := createCourse(t, s, "alice", "Ibuprofen")

	w := do(t, s.router, "alice", http.MethodPost, "/courses/reminder", map[string]string{"course_id": a.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s.router, "alice", http.MethodDelete, "/courses/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, s.coord.Registry().IsActive(a.ID))

	w = do(t, s.router, "alice", http.MethodDelete, "/courses/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s.router, "alice", http.MethodPost, "/courses/remove", map[string]string{"medicine_name": "Ibuprofen"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s.router, "alice", http.MethodGet, "/courses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), b.ID)
	assert.JSONEq(t, `{"courses":[]}`, w.Body.String())
}

func TestListAndDashboard(t *testing.T) {
	s := newTestServer(t)
	a := createCourse(t, s, "alice", "Aspirin")
	createCourse(t, s, "alice", "Ibuprofen")
	createCourse(t, s, "bob", "Zinc")

	w := do(t, s.router, "alice", http.MethodPost, "/courses/reminder", map[string]string{"course_id": a.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s.router, "alice", http.MethodGet, "/courses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Courses []models.Course `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Courses, 2)

	w = do(t, s.router, "alice", http.MethodGet, "/courses/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d models.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, models.Dashboard{TotalCourses: 2, ActiveReminders: 1, LiveTimers: 1}, d)
}

// failingService fails every call with err
type failingService struct{ err error }

func (f failingService) CreateCourses(context.Context, string, []models.Course) ([]models.Course, error) {
	return nil, f.err
}
func (f failingService) List(context.Context, string) ([]models.Course, error) { return nil, f.err }
func (f failingService) Dashboard(context.Context, string) (models.Dashboard, error) {
	return models.Dashboard{}, f.err
}
func (f failingService) Toggle(context.Context, string, models.CourseRef) (*models.Course, error) {
	return nil, f.err
}
func (f failingService) Delete(context.Context, string, models.CourseRef) error { return f.err }

func TestCourseErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: reminder.ErrNotFound, status: http.StatusNotFound},
		{name: "invalid course", err: fmt.Errorf("%w: frequency must be positive", reminder.ErrInvalidCourse), status: http.StatusUnprocessableEntity},
		{name: "storage", err: fmt.Errorf("find course: %w: %w", reminder.ErrStorage, errors.New("conn refused")), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(failingService{err: tt.err}, zap.NewNop())

			w := do(t, r, "alice", http.MethodPost, "/courses/reminder", map[string]string{"course_id": "c1"})
			assert.Equal(t, tt.status, w.Code)
			w = do(t, r, "alice", http.MethodGet, "/courses/dashboard", nil)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "conn refused")
			}
		})
	}
}
