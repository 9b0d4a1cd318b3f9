package reminder

import (
	"context"
	"fmt"

	"medtrack/internal/models"
	"medtrack/internal/services"
	"medtrack/internal/store"

	"go.uber.org/zap"
)

// Coordinator keeps the persisted reminder flag, the Registry and the live drivers
// consistent across user actions. Each operation holds a per-course lock for its
// whole lookup, write and start/stop sequence.
type Coordinator struct {
	store    store.CourseStore
	registry *Registry
	notifier services.Notifier
	cfg      DriverConfig
	log      *zap.Logger

	ops *keyLocker
}

func NewCoordinator(st store.CourseStore, registry *Registry, notifier services.Notifier, cfg DriverConfig, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    st,
		registry: registry,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		log:      log,
		ops:      newKeyLocker(),
	}
}

// Registry exposes the live timer table for read-only introspection
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

func (c *Coordinator) factory(course models.Course) Factory {
	return func() Runner {
		return NewDriver(course, c.store, c.notifier, c.cfg, c.log.Named("driver"))
	}
}

// checkFrequency rejects a course whose interval is not positive or overflows
// once counted in the configured frequency unit
func (c *Coordinator) checkFrequency(course *models.Course) error {
	if err := course.ValidateFrequency(c.cfg.FrequencyUnit); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCourse, err)
	}
	return nil
}

// locate resolves ref for owner to a course, or ErrNotFound
func (c *Coordinator) locate(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, error) {
	if ownerID == "" || ref.IsZero() {
		return nil, ErrNotFound
	}
	course, err := c.store.FindOne(ctx, store.ByRef(ownerID, ref))
	if err != nil {
		return nil, storageErr("find course", err)
	}
	if course == nil {
		c.log.Warn("Course not found", zap.String("owner_id", ownerID),
			zap.String("course_id", ref.ID), zap.String("medicine_name", ref.Name))
		return nil, ErrNotFound
	}
	return course, nil
}

// lockCourse resolves ref and takes the operation lock of the resolved course.
// The course is re-read under the lock so the caller acts on a fresh snapshot.
func (c *Coordinator) lockCourse(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, func(), error) {
	course, err := c.locate(ctx, ownerID, ref)
	if err != nil {
		return nil, nil, err
	}
	unlock := c.ops.Lock(course.ID)

	fresh, err := c.locate(ctx, ownerID, models.CourseRef{ID: course.ID})
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return fresh, unlock, nil
}

// CreateCourses stores new courses for owner with reminders off. No timer is started.
func (c *Coordinator) CreateCourses(ctx context.Context, ownerID string, courses []models.Course) ([]models.Course, error) {
	if len(courses) == 0 {
		return courses, nil
	}
	for i := range courses {
		courses[i].OwnerID = ownerID
		courses[i].ReminderSet = false
		if err := courses[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCourse, courses[i].Name, err)
		}
		if err := courses[i].ValidateFrequency(c.cfg.FrequencyUnit); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCourse, courses[i].Name, err)
		}
	}
	if err := c.store.InsertMany(ctx, courses); err != nil {
		return nil, storageErr("insert courses", err)
	}
	c.log.Info("Courses created", zap.String("owner_id", ownerID), zap.Int("count", len(courses)))
	return courses, nil
}

// Toggle turns the reminder off when it is set and on otherwise
func (c *Coordinator) Toggle(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, error) {
	course, unlock, err := c.lockCourse(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if course.ReminderSet {
		return c.turnOff(ctx, course)
	}
	return c.turnOn(ctx, course)
}

// TurnOn persists the flag and arms a driver from the freshly loaded course
func (c *Coordinator) TurnOn(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, error) {
	course, unlock, err := c.lockCourse(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.turnOn(ctx, course)
}

func (c *Coordinator) turnOn(ctx context.Context, course *models.Course) (*models.Course, error) {
	if err := c.checkFrequency(course); err != nil {
		return nil, err
	}

	on := true
	matched, err := c.store.UpdateOne(ctx, store.ByID(course.OwnerID, course.ID), store.Patch{ReminderSet: &on})
	if err != nil {
		return nil, storageErr("set reminder", err)
	}
	if matched == 0 {
		return nil, ErrNotFound
	}
	course.ReminderSet = true

	c.registry.Start(course.ID, c.factory(*course))
	c.log.Info("Reminder turned on", zap.String("course_id", course.ID), zap.String("owner_id", course.OwnerID))
	return course, nil
}

// TurnOff stops the live driver, then clears the flag
func (c *Coordinator) TurnOff(ctx context.Context, ownerID string, ref models.CourseRef) (*models.Course, error) {
	course, unlock, err := c.lockCourse(ctx, ownerID, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return c.turnOff(ctx, course)
}

func (c *Coordinator) turnOff(ctx context.Context, course *models.Course) (*models.Course, error) {
	if !course.ReminderSet && !c.registry.IsActive(course.ID) {
		return course, nil
	}

	c.registry.Stop(course.ID)

	off := false
	matched, err := c.store.UpdateOne(ctx, store.ByID(course.OwnerID, course.ID), store.Patch{ReminderSet: &off})
	if err != nil {
		return nil, storageErr("clear reminder", err)
	}
	if matched == 0 {
		return nil, ErrNotFound
	}
	course.ReminderSet = false

	c.log.Info("Reminder turned off", zap.String("course_id", course.ID), zap.String("owner_id", course.OwnerID))
	return course, nil
}

// Delete stops any live driver and removes the course
func (c *Coordinator) Delete(ctx context.Context, ownerID string, ref models.CourseRef) error {
	course, unlock, err := c.lockCourse(ctx, ownerID, ref)
	if err != nil {
		return err
	}
	defer unlock()

	c.registry.Stop(course.ID)

	deleted, err := c.store.DeleteOne(ctx, store.ByID(course.OwnerID, course.ID))
	if err != nil {
		return storageErr("delete course", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	c.log.Info("Course deleted", zap.String("course_id", course.ID), zap.String("owner_id", course.OwnerID))
	return nil
}

// List returns the owner's courses, newest first
func (c *Coordinator) List(ctx context.Context, ownerID string) ([]models.Course, error) {
	courses, err := c.store.Find(ctx, store.Filter{OwnerID: ownerID})
	if err != nil {
		return nil, storageErr("list courses", err)
	}
	return courses, nil
}

// Dashboard counts the owner's courses, flagged reminders and live timers
func (c *Coordinator) Dashboard(ctx context.Context, ownerID string) (models.Dashboard, error) {
	courses, err := c.List(ctx, ownerID)
	if err != nil {
		return models.Dashboard{}, err
	}
	d := models.Dashboard{TotalCourses: len(courses)}
	for _, course := range courses {
		if course.ReminderSet {
			d.ActiveReminders++
		}
		if c.registry.IsActive(course.ID) {
			d.LiveTimers++
		}
	}
	return d, nil
}

// Rearm starts a driver for every course whose reminder is set but has no live timer,
// closing the gap left by a process restart. It returns how many drivers it started.
func (c *Coordinator) Rearm(ctx context.Context) (int, error) {
	on := true
	courses, err := c.store.Find(ctx, store.Filter{ReminderSet: &on})
	if err != nil {
		return 0, storageErr("find active courses", err)
	}

	started := 0
	for _, course := range courses {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if c.registry.IsActive(course.ID) {
			continue
		}
		ok, err := c.rearmOne(ctx, course)
		if err != nil {
			c.log.Warn("Failed to re-arm reminder", zap.String("course_id", course.ID), zap.Error(err))
			continue
		}
		if ok {
			started++
		}
	}
	if started > 0 {
		c.log.Info("Reminders re-armed", zap.Int("count", started))
	}
	return started, nil
}

func (c *Coordinator) rearmOne(ctx context.Context, candidate models.Course) (bool, error) {
	unlock := c.ops.Lock(candidate.ID)
	defer unlock()

	course, err := c.store.FindOne(ctx, store.ByID(candidate.OwnerID, candidate.ID))
	if err != nil {
		return false, err
	}
	if course == nil || !course.ReminderSet || c.registry.IsActive(course.ID) {
		return false, nil
	}
	if err := c.checkFrequency(course); err != nil {
		// a flagged course that can never fire is cleared so later sweeps skip it
		off := false
		if _, uerr := c.store.UpdateOne(ctx, store.ByID(course.OwnerID, course.ID), store.Patch{ReminderSet: &off}); uerr != nil {
			return false, storageErr("clear reminder", uerr)
		}
		c.log.Warn("Cleared reminder on invalid course", zap.String("course_id", course.ID),
			zap.String("owner_id", course.OwnerID), zap.Error(err))
		return false, nil
	}

	c.registry.Start(course.ID, c.factory(*course))
	return true, nil
}

// Shutdown stops every live driver
func (c *Coordinator) Shutdown() {
	c.registry.Close()
}
