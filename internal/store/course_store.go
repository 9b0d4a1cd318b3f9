package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medtrack/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrUnscoped is returned when a write is not pinned to one course of one owner
	ErrUnscoped = errors.New("write must be scoped by course id and owner id")
	// ErrEmptyPatch is returned when an update carries no fields
	ErrEmptyPatch = errors.New("patch has no fields")
)

// Filter selects courses. ID takes precedence over Name.
type Filter struct {
	ID          string
	OwnerID     string
	Name        string
	ReminderSet *bool
}

// ByRef builds the owner-scoped filter for a course reference
func ByRef(ownerID string, ref models.CourseRef) Filter {
	return Filter{
		OwnerID: ownerID,
		ID:      strings.TrimSpace(ref.ID),
		Name:    strings.TrimSpace(ref.Name),
	}
}

// ByID builds the filter pinned to one course of one owner
func ByID(ownerID, id string) Filter {
	return Filter{OwnerID: ownerID, ID: id}
}

func (f Filter) scoped() bool {
	return f.ID != "" && f.OwnerID != ""
}

// Patch lists the mutable course fields; nil fields are left untouched
type Patch struct {
	StartDate   *time.Time
	ReminderSet *bool
}

func (p Patch) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.StartDate != nil {
		cols["start_date"] = *p.StartDate
	}
	if p.ReminderSet != nil {
		cols["reminder_set"] = *p.ReminderSet
	}
	return cols
}

// CourseStore is the persistent collection of courses
type CourseStore interface {
	Find(ctx context.Context, f Filter) ([]models.Course, error)
	// FindOne returns nil, nil when nothing matches
	FindOne(ctx context.Context, f Filter) (*models.Course, error)
	// UpdateOne returns the number of matched rows (0 or 1)
	UpdateOne(ctx context.Context, f Filter, p Patch) (int64, error)
	InsertMany(ctx context.Context, courses []models.Course) error
	DeleteOne(ctx context.Context, f Filter) (int64, error)
}

// GormCourseStore implements CourseStore on gorm
type GormCourseStore struct {
	db *gorm.DB
}

// NewGormCourseStore creates a store over db
func NewGormCourseStore(db *gorm.DB) *GormCourseStore {
	return &GormCourseStore{db: db}
}

func (s *GormCourseStore) query(ctx context.Context, f Filter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&models.Course{})
	if f.OwnerID != "" {
		tx = tx.Where("owner_id = ?", f.OwnerID)
	}
	if f.ID != "" {
		tx = tx.Where("id = ?", f.ID)
	} else if f.Name != "" {
		tx = tx.Where("name = ?", f.Name)
	}
	if f.ReminderSet != nil {
		tx = tx.Where("reminder_set = ?", *f.ReminderSet)
	}
	return tx
}

// Find returns matching courses, newest first
func (s *GormCourseStore) Find(ctx context.Context, f Filter) ([]models.Course, error) {
	var courses []models.Course
	if err := s.query(ctx, f).Order("created_at DESC").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("find courses: %w", err)
	}
	return courses, nil
}

// FindOne returns the oldest matching course
func (s *GormCourseStore) FindOne(ctx context.Context, f Filter) (*models.Course, error) {
	if f.ID == "" && f.Name == "" {
		return nil, nil
	}
	var course models.Course
	err := s.query(ctx, f).Order("created_at ASC").First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// UpdateOne applies p to the course pinned by f. It never inserts.
func (s *GormCourseStore) UpdateOne(ctx context.Context, f Filter, p Patch) (int64, error) {
	if !f.scoped() {
		return 0, ErrUnscoped
	}
	cols := p.columns()
	if len(cols) == 0 {
		return 0, ErrEmptyPatch
	}
	cols["updated_at"] = time.Now()

	res := s.db.WithContext(ctx).Model(&models.Course{}).
		Where("id = ? AND owner_id = ?", f.ID, f.OwnerID).
		Updates(cols)
	if res.Error != nil {
		return 0, fmt.Errorf("update course %s: %w", f.ID, res.Error)
	}
	return res.RowsAffected, nil
}

// InsertMany stores all courses in one batch
func (s *GormCourseStore) InsertMany(ctx context.Context, courses []models.Course) error {
	if len(courses) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&courses).Error; err != nil {
		return fmt.Errorf("insert courses: %w", err)
	}
	return nil
}

// DeleteOne removes the course pinned by f
func (s *GormCourseStore) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if !f.scoped() {
		return 0, ErrUnscoped
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", f.ID, f.OwnerID).
		Delete(&models.Course{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete course %s: %w", f.ID, res.Error)
	}
	return res.RowsAffected, nil
}
