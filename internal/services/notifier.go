package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// Notification is one message for one recipient
type Notification struct {
	CourseID  string
	Subject   string
	Body      string
	Recipient string
}

// Notifier accepts notifications. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Sender performs the actual delivery
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// DispatcherConfig tunes the dispatcher
type DispatcherConfig struct {
	QueueSize  int
	Workers    int
	Timeout    time.Duration // per send
	RatePerSec float64       // <= 0 disables rate limiting
}

// Dispatcher hands notifications to a pool of workers through a bounded queue.
// Delivery is best effort: failures are logged and never retried.
type Dispatcher struct {
	sender  Sender
	cfg     DispatcherConfig
	limiter *rate.Limiter
	log     *zap.Logger

	queue chan Notification
	stop  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	d := &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
		queue:   make(chan Notification, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues n without waiting for delivery. Notifications without a recipient are dropped.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	if n.Recipient == "" {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- n:
		return nil
	default:
		return fmt.Errorf("%w: dropping notification for course %s", ErrQueueFull, n.CourseID)
	}
}

// Close stops accepting notifications, drains the queue and waits for the workers
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-d.stop:
			// drain what was accepted before Close
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warn("Notification rate limit wait failed",
			zap.String("course_id", n.CourseID), zap.Error(err))
		return
	}

	start := time.Now()
	if err := d.sender.Send(ctx, n); err != nil {
		d.log.Error("Failed to send notification",
			zap.String("course_id", n.CourseID),
			zap.String("recipient", n.Recipient),
			zap.Error(err))
		return
	}
	d.log.Info("Notification sent",
		zap.String("course_id", n.CourseID),
		zap.String("recipient", n.Recipient),
		zap.Duration("took", time.Since(start)))
}
