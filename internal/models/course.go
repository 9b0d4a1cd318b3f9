package models

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DurationDays is the only duration kind: the course lasts a fixed number of days
const DurationDays = "days"

// MaxFrequency is the largest frequency in seconds whose interval still fits a time.Duration
const MaxFrequency = math.MaxInt64 / int64(time.Second)

var (
	ErrInvalidFrequency  = errors.New("frequency must be positive")
	ErrFrequencyTooLarge = errors.New("frequency is too large")
	ErrEndBeforeStart    = errors.New("end date is before start date")
)

// Course is one medication reminder schedule
type Course struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string     `gorm:"size:128;not null;index:idx_course_owner_name" json:"owner_id"`
	Name           string     `gorm:"size:255;not null;index:idx_course_owner_name" json:"medicine_name"`
	Dosage         string     `gorm:"size:255;not null" json:"dosage"`
	Frequency      int        `gorm:"not null;check:frequency > 0" json:"frequency"` // seconds between doses
	DurationType   string     `gorm:"size:20;not null" json:"duration_type"`
	StartDate      time.Time  `gorm:"not null" json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	RecipientEmail string     `gorm:"size:255" json:"recipient_email,omitempty"`
	ReminderSet    bool       `gorm:"not null;default:false;index" json:"reminder_set"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for the Course model
func (Course) TableName() string {
	return "course"
}

// Validate checks the invariants a course must satisfy before it is stored
func (c *Course) Validate() error {
	if err := c.ValidateFrequency(time.Second); err != nil {
		return err
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// ValidateFrequency checks that Frequency counted in unit is a positive interval
// that does not overflow a time.Duration
func (c *Course) ValidateFrequency(unit time.Duration) error {
	if c.Frequency <= 0 {
		return ErrInvalidFrequency
	}
	if unit <= 0 {
		unit = time.Second
	}
	if int64(c.Frequency) > math.MaxInt64/int64(unit) {
		return ErrFrequencyTooLarge
	}
	return nil
}

// BeforeCreate assigns the id, normalizes text fields and validates the course
func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Dosage = strings.TrimSpace(c.Dosage)
	c.RecipientEmail = strings.ToLower(strings.TrimSpace(c.RecipientEmail))

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return c.Validate()
}

// CreateCourseRequest is one course entry submitted by the client
type CreateCourseRequest struct {
	Name           string    `json:"medicine_name" binding:"required"`
	Dosage         string    `json:"dosage" binding:"required"`
	Frequency      int       `json:"frequency" binding:"required,min=1,max=9223372036"`
	DurationType   string    `json:"duration_type" binding:"required,oneof=days"`
	Duration       *int      `json:"duration" binding:"omitempty,min=0"`
	StartDate      time.Time `json:"start_date" binding:"required"`
	RecipientEmail string    `json:"recipient_email" binding:"omitempty,email"`
}

// CreateCoursesRequest carries a batch of courses. Entries are validated one by one
// so a bad row is skipped instead of failing the batch.
type CreateCoursesRequest struct {
	Courses []CreateCourseRequest `json:"courses" binding:"required,min=1"`
}

// ToCourse builds the stored course for owner, computing the end date for day-based durations
func (r CreateCourseRequest) ToCourse(ownerID string) Course {
	c := Course{
		OwnerID:        ownerID,
		Name:           strings.TrimSpace(r.Name),
		Dosage:         strings.TrimSpace(r.Dosage),
		Frequency:      r.Frequency,
		DurationType:   r.DurationType,
		StartDate:      r.StartDate,
		RecipientEmail: strings.ToLower(strings.TrimSpace(r.RecipientEmail)),
		ReminderSet:    false,
	}
	if r.DurationType == DurationDays && r.Duration != nil {
		end := r.StartDate.AddDate(0, 0, *r.Duration)
		c.EndDate = &end
	}
	return c
}

// CourseRef identifies a course for an owner by id, falling back to name
type CourseRef struct {
	ID   string `json:"course_id" form:"course_id"`
	Name string `json:"medicine_name" form:"medicine_name"`
}

// IsZero reports whether the ref names nothing
func (r CourseRef) IsZero() bool {
	return strings.TrimSpace(r.ID) == "" && strings.TrimSpace(r.Name) == ""
}

// Dashboard summarizes an owner's courses
type Dashboard struct {
	TotalCourses    int `json:"total_courses"`
	ActiveReminders int `json:"active_reminders"`
	LiveTimers      int `json:"live_timers"`
}
