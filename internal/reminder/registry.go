package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Runner is a long-lived task owned by the Registry. Run returns when ctx is
// cancelled or when the task finishes on its own.
type Runner interface {
	Run(ctx context.Context)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context)

func (f RunnerFunc) Run(ctx context.Context) { f(ctx) }

// Factory builds the Runner for a course when the Registry arms it
type Factory func() Runner

// handle is the live reference to one running Runner
type handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the live timers, at most one per course id.
//
// Start and Stop for the same id are serialized; different ids never wait on each other.
// Stop returns only after the runner's goroutine has exited, so an in-flight tick may
// finish but nothing from that runner happens after Stop returns.
type Registry struct {
	log *zap.Logger

	keys *keyLocker

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
	wg      sync.WaitGroup
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:     log,
		keys:    newKeyLocker(),
		handles: map[string]*handle{},
	}
}

// Start arms the runner built by factory for id, replacing any live one
func (r *Registry) Start(id string, factory Factory) {
	unlock := r.keys.Lock(id)
	defer unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("Registry closed, reminder not started", zap.String("course_id", id))
		return
	}
	old := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if old != nil {
		r.log.Debug("Replacing live reminder", zap.String("course_id", id))
		old.cancel()
		<-old.done
	}

	runner := factory()
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{id: id, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return
	}
	r.handles[id] = h
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, h, runner)
}

func (r *Registry) run(ctx context.Context, h *handle, runner Runner) {
	defer r.wg.Done()
	defer close(h.done)
	defer r.release(h)
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Reminder panicked",
				zap.String("course_id", h.id),
				zap.String("panic", fmt.Sprint(rec)),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	runner.Run(ctx)
}

// release drops h from the table if it is still the live handle for its id
func (r *Registry) release(h *handle) {
	h.cancel()
	r.mu.Lock()
	if r.handles[h.id] == h {
		delete(r.handles, h.id)
	}
	r.mu.Unlock()
}

// Stop cancels the live runner for id and waits for it to exit. No-op if none is live.
func (r *Registry) Stop(id string) {
	unlock := r.keys.Lock(id)
	defer unlock()

	r.mu.Lock()
	h := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	r.log.Debug("Reminder stopped", zap.String("course_id", id))
}

// IsActive reports whether a runner is live for id
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// Len returns the number of live runners
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// IDs returns the ids with a live runner, sorted
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Close cancels every live runner and waits for all of them. Later Starts are ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	live := make([]*handle, 0, len(r.handles))
	for id, h := range r.handles {
		live = append(live, h)
		delete(r.handles, id)
	}
	r.mu.Unlock()

	for _, h := range live {
		h.cancel()
	}
	r.wg.Wait()
	r.log.Info("Reminder registry drained", zap.Int("stopped", len(live)))
}
