package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToCourseComputesEndDate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	days := 7
	req := CreateCourseRequest{
		Name:           "  Aspirin ",
		Dosage:         "1 tablet",
		Frequency:      3600,
		DurationType:   DurationDays,
		Duration:       &days,
		StartDate:      start,
		RecipientEmail: " Patient@Example.com ",
	}

	c := req.ToCourse("alice")
	assert.Equal(t, "alice", c.OwnerID)
	assert.Equal(t, "Aspirin", c.Name)
	assert.Equal(t, "patient@example.com", c.RecipientEmail)
	assert.False(t, c.ReminderSet)
	if assert.NotNil(t, c.EndDate) {
		assert.True(t, c.EndDate.Equal(start.AddDate(0, 0, 7)))
	}

	req.Duration = nil
	assert.Nil(t, req.ToCourse("alice").EndDate)
}

func TestCourseValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Second)

	tests := []struct {
		name   string
		course Course
		want   error
	}{
		{name: "valid", course: Course{Frequency: 1, StartDate: start}},
		{name: "end equals start", course: Course{Frequency: 1, StartDate: start, EndDate: &start}},
		{name: "zero frequency", course: Course{StartDate: start}, want: ErrInvalidFrequency},
		{name: "negative frequency", course: Course{Frequency: -5, StartDate: start}, want: ErrInvalidFrequency},
		{name: "largest frequency", course: Course{Frequency: int(MaxFrequency), StartDate: start}},
		{name: "overflowing frequency", course: Course{Frequency: int(MaxFrequency) + 1, StartDate: start}, want: ErrFrequencyTooLarge},
		{name: "end before start", course: Course{Frequency: 1, StartDate: start, EndDate: &before}, want: ErrEndBeforeStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.course.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCourseRefIsZero(t *testing.T) {
	assert.True(t, CourseRef{}.IsZero())
	assert.True(t, CourseRef{ID: " ", Name: "\t"}.IsZero())
	assert.False(t, CourseRef{ID: "c1"}.IsZero())
	assert.False(t, CourseRef{Name: "Aspirin"}.IsZero())
}

func TestCourseValidateFrequencyUnit(t *testing.T) {
	c := Course{Frequency: int(MaxFrequency)}
	assert.NoError(t, c.ValidateFrequency(time.Second))
	assert.ErrorIs(t, c.ValidateFrequency(time.Minute), ErrFrequencyTooLarge)
	assert.NoError(t, c.ValidateFrequency(0), "zero unit counts in seconds")

	c.Frequency = int(MaxFrequency / 60)
	assert.NoError(t, c.ValidateFrequency(time.Minute))
}
