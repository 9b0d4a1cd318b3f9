package reminder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"medtrack/internal/models"
	"medtrack/internal/services"
	"medtrack/internal/store"

	"go.uber.org/zap"
)

// State of a Driver
type State int32

const (
	Running State = iota
	Ended
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ended:
		return "ended"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether no further tick has any effect
func (s State) Terminal() bool {
	return s == Ended || s == Cancelled
}

const reminderSubject = "Medicine Reminder"

// DriverConfig holds the timing constants of a Driver
type DriverConfig struct {
	PollInterval  time.Duration
	FrequencyUnit time.Duration
	WriteTimeout  time.Duration
	Now           func() time.Time
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.FrequencyUnit <= 0 {
		c.FrequencyUnit = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Driver is the repeating task of one course. It alone advances the course's start date
// while it is live.
type Driver struct {
	courseID  string
	ownerID   string
	name      string
	dosage    string
	recipient string

	schedule Schedule
	state    atomic.Int32

	store    store.CourseStore
	notifier services.Notifier
	cfg      DriverConfig
	log      *zap.Logger
}

// NewDriver builds the driver for a snapshot of course
func NewDriver(course models.Course, st store.CourseStore, notifier services.Notifier, cfg DriverConfig, log *zap.Logger) *Driver {
	cfg = cfg.withDefaults()
	return &Driver{
		courseID:  course.ID,
		ownerID:   course.OwnerID,
		name:      course.Name,
		dosage:    course.Dosage,
		recipient: course.RecipientEmail,
		schedule:  ScheduleFor(course, cfg.FrequencyUnit),
		store:     st,
		notifier:  notifier,
		cfg:       cfg,
		log:       log.With(zap.String("course_id", course.ID), zap.String("owner_id", course.OwnerID)),
	}
}

// State returns the current state
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Schedule returns the in-memory dose clock. Only meaningful from the driver's goroutine or once it stopped.
func (d *Driver) Schedule() Schedule {
	return d.schedule
}

// Run ticks every poll interval until ctx is cancelled or the course is over
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.log.Debug("Reminder driver started", zap.Time("start_date", d.schedule.Start))
	for {
		select {
		case <-ctx.Done():
			d.state.CompareAndSwap(int32(Running), int32(Cancelled))
			d.log.Debug("Reminder driver cancelled")
			return
		case <-ticker.C:
			// a cancel that raced the ticker wins
			if ctx.Err() != nil {
				continue
			}
			if d.Tick(ctx, d.cfg.Now()).Terminal() {
				d.log.Debug("Reminder driver finished", zap.Stringer("state", d.State()))
				return
			}
		}
	}
}

// Tick evaluates the course against now. It sends at most one notification and
// makes at most one store write.
func (d *Driver) Tick(ctx context.Context, now time.Time) State {
	if d.State().Terminal() {
		return d.State()
	}

	if d.schedule.Ended(now) {
		return d.finish(ctx)
	}

	if d.schedule.Due(now) {
		return d.dose(ctx)
	}

	return Running
}

func (d *Driver) finish(ctx context.Context) State {
	off := false
	matched, err := d.write(ctx, store.Patch{ReminderSet: &off})
	if err != nil {
		d.log.Error("Failed to mark course ended", zap.Error(err))
		return Running
	}
	if matched == 0 {
		return d.gone()
	}

	d.state.Store(int32(Ended))
	d.log.Info("Course ended, reminder turned off", zap.Timep("end_date", d.schedule.End))
	return Ended
}

func (d *Driver) dose(ctx context.Context) State {
	msg := fmt.Sprintf("Reminder: Time to take your medicine '%s' - Dosage: %s", d.name, d.dosage)
	d.log.Info(msg, zap.Time("due", d.schedule.NextDose()))

	if d.recipient != "" {
		n := services.Notification{
			CourseID:  d.courseID,
			Subject:   reminderSubject,
			Body:      msg,
			Recipient: d.recipient,
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			d.log.Warn("Notification not dispatched", zap.Error(err))
		}
	}

	d.schedule = d.schedule.Advance()
	next := d.schedule.Start
	on := true
	matched, err := d.write(ctx, store.Patch{StartDate: &next, ReminderSet: &on})
	if err != nil {
		d.log.Error("Failed to persist dose progress", zap.Time("start_date", next), zap.Error(err))
		return Running
	}
	if matched == 0 {
		return d.gone()
	}
	return Running
}

// write persists p scoped to this course and owner. It is detached from ctx so a
// concurrent Stop never leaves a write half applied.
func (d *Driver) write(ctx context.Context, p store.Patch) (int64, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.WriteTimeout)
	defer cancel()
	return d.store.UpdateOne(wctx, store.ByID(d.ownerID, d.courseID), p)
}

func (d *Driver) gone() State {
	d.state.Store(int32(Cancelled))
	d.log.Info("Course no longer exists for owner, reminder cancelled")
	return Cancelled
}
