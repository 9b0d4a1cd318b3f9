package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically re-arms reminders that are set in the store but have no live timer
type Sweeper struct {
	coord   *Coordinator
	cron    *cron.Cron
	timeout time.Duration
	log     *zap.Logger
}

const defaultSweepTimeout = 30 * time.Second

// NewSweeper schedules Coordinator.Rearm on spec (standard cron or @every descriptors).
// Each sweep is bounded by timeout, or 30s when timeout is not positive.
func NewSweeper(coord *Coordinator, spec string, timeout time.Duration, log *zap.Logger) (*Sweeper, error) {
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	s := &Sweeper{
		coord:   coord,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		log:     log,
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid rearm schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the sweep in the background
func (s *Sweeper) Start() {
	s.log.Info("Starting re-arm sweep")
	s.cron.Start()
}

// Stop waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Re-arm sweep stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.coord.Rearm(ctx); err != nil {
		s.log.Error("Re-arm sweep failed", zap.Error(err))
	}
}
