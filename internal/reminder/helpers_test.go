package reminder

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"medtrack/internal/models"
	"medtrack/internal/services"
	"medtrack/internal/store"

	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

// memStore is an in-memory CourseStore with the same scoping rules as the gorm store
type memStore struct {
	mu      sync.Mutex
	seq     int
	courses map[string]models.Course
	patches map[string][]store.Patch

	findErr   error
	updateErr error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{courses: map[string]models.Course{}, patches: map[string][]store.Patch{}}
}

func (s *memStore) match(c models.Course, f store.Filter) bool {
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	if f.ID != "" {
		if c.ID != f.ID {
			return false
		}
	} else if f.Name != "" && c.Name != f.Name {
		return false
	}
	if f.ReminderSet != nil && c.ReminderSet != *f.ReminderSet {
		return false
	}
	return true
}

func (s *memStore) sorted() []models.Course {
	out := make([]models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) Find(_ context.Context, f store.Filter) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []models.Course
	for _, c := range s.sorted() {
		if s.match(c, f) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) FindOne(_ context.Context, f store.Filter) (*models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if f.ID == "" && f.Name == "" {
		return nil, nil
	}
	for _, c := range s.sorted() {
		if s.match(c, f) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateOne(_ context.Context, f store.Filter, p store.Patch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" || f.OwnerID == "" {
		return 0, store.ErrUnscoped
	}
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	c, ok := s.courses[f.ID]
	if !ok || c.OwnerID != f.OwnerID {
		return 0, nil
	}
	if p.StartDate != nil {
		c.StartDate = *p.StartDate
	}
	if p.ReminderSet != nil {
		c.ReminderSet = *p.ReminderSet
	}
	s.courses[f.ID] = c
	s.patches[f.ID] = append(s.patches[f.ID], p)
	return 1, nil
}

func (s *memStore) InsertMany(_ context.Context, courses []models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := time.Now()
	for i := range courses {
		s.seq++
		if courses[i].ID == "" {
			courses[i].ID = "c" + strconv.Itoa(s.seq)
		}
		courses[i].CreatedAt = base.Add(time.Duration(s.seq) * time.Millisecond)
		s.courses[courses[i].ID] = courses[i]
	}
	return nil
}

func (s *memStore) DeleteOne(_ context.Context, f store.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" || f.OwnerID == "" {
		return 0, store.ErrUnscoped
	}
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	c, ok := s.courses[f.ID]
	if !ok || c.OwnerID != f.OwnerID {
		return 0, nil
	}
	delete(s.courses, f.ID)
	return 1, nil
}

func (s *memStore) get(id string) (models.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	return c, ok
}

func (s *memStore) patchCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches[id])
}

func (s *memStore) setUpdateErr(err error) {
	s.mu.Lock()
	s.updateErr = err
	s.mu.Unlock()
}

func (s *memStore) add(t *testing.T, c models.Course) models.Course {
	t.Helper()
	courses := []models.Course{c}
	if err := s.InsertMany(context.Background(), courses); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return courses[0]
}

// recordingNotifier records every notification synchronously
type recordingNotifier struct {
	mu   sync.Mutex
	sent []services.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg services.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) all() []services.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.Notification(nil), n.sent...)
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newCourse(owner, name string, freq int, end *time.Time, recipient string) models.Course {
	return models.Course{
		OwnerID:        owner,
		Name:           name,
		Dosage:         "1 tablet",
		Frequency:      freq,
		DurationType:   models.DurationDays,
		StartDate:      t0,
		EndDate:        end,
		RecipientEmail: recipient,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func storeByID(c models.Course) store.Filter { return store.ByID(c.OwnerID, c.ID) }

func testLogger() *zap.Logger { return zap.NewNop() }

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
