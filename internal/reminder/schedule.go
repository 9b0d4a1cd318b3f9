package reminder

import (
	"time"

	"medtrack/internal/models"
)

// Schedule is the dose clock of a course: a fixed interval repeating from Start, until End.
type Schedule struct {
	Every time.Duration
	Start time.Time
	End   *time.Time
}

// ScheduleFor derives the schedule of c, with Frequency counted in unit.
// A frequency that is not positive or overflows a time.Duration leaves Every at zero,
// and such a schedule is never due.
func ScheduleFor(c models.Course, unit time.Duration) Schedule {
	s := Schedule{Start: c.StartDate}
	if c.ValidateFrequency(unit) == nil {
		s.Every = time.Duration(c.Frequency) * unit
	}
	if c.EndDate != nil {
		end := *c.EndDate
		s.End = &end
	}
	return s
}

// Ended reports whether now is past the end of the course
func (s Schedule) Ended(now time.Time) bool {
	return s.End != nil && now.After(*s.End)
}

// NextDose is the instant the next dose falls due
func (s Schedule) NextDose() time.Time {
	return s.Start.Add(s.Every)
}

// Due reports whether the next dose is at or before now
func (s Schedule) Due(now time.Time) bool {
	if s.Every <= 0 {
		return false
	}
	return !s.NextDose().After(now)
}

// Advance moves the clock forward by one dose
func (s Schedule) Advance() Schedule {
	s.Start = s.NextDose()
	return s
}
