package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is how long a visitor must dwell before a landing event fires.
const DefaultDelay = 15 * time.Second

const publishTimeout = 10 * time.Second

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSessionID stamps every envelope with a session id.
func WithSessionID(id string) SchedulerOption {
	return func(s *Scheduler) {
		s.sessionID = id
	}
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler holds at most one pending delayed event. Scheduling a new one
// cancels the previous; Close cancels the pending event and waits for any
// publication in flight. It is safe for concurrent use.
type Scheduler struct {
	publisher Publisher
	delay     time.Duration
	logger    *zap.Logger
	sessionID string
	now       func() time.Time

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	next   *pendingEvent
	closed bool
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewScheduler returns a scheduler publishing through publisher after delay.
func NewScheduler(publisher Publisher, delay time.Duration, opts ...SchedulerOption) *Scheduler {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if delay < 0 {
		delay = 0
	}
	base, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		publisher: publisher,
		delay:     delay,
		logger:    zap.NewNop(),
		now:       time.Now,
		base:      base,
		stop:      stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms event to fire after the configured delay, replacing any
// pending event.
func (s *Scheduler) Schedule(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelLocked()

	p := &pendingEvent{event: event}
	s.wg.Add(1)
	p.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.next != p {
			s.mu.Unlock()
			return
		}
		s.next = nil
		s.mu.Unlock()
		s.publish(event)
	})
	s.next = p
	s.logger.Debug("Scheduled analytics event", zap.String("event", string(event)), zap.Duration("delay", s.delay))
}

// Cancel drops the pending event. It reports whether one was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

// Pending returns the event waiting to fire, if any.
func (s *Scheduler) Pending() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return "", false
	}
	return s.next.event, true
}

// Fire publishes event now without waiting for delivery.
func (s *Scheduler) Fire(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.publish(event)
	}()
}

// Close cancels the pending event and waits for in-flight publications.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelLocked()
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}

func (s *Scheduler) cancelLocked() bool {
	p := s.next
	if p == nil {
		return false
	}
	s.next = nil
	if p.timer.Stop() {
		// The callback will never run, so release its slot here.
		s.wg.Done()
	}
	s.logger.Debug("Cancelled analytics event", zap.String("event", string(p.event)))
	return true
}

func (s *Scheduler) publish(event Event) {
	ctx, cancel := context.WithTimeout(s.base, publishTimeout)
	defer cancel()

	env := NewEnvelope(event, s.sessionID, s.now())
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Warn("Failed to publish analytics event", zap.String("event", string(event)), zap.Error(err))
		return
	}
	s.logger.Debug("Published analytics event", zap.String("event", string(event)), zap.String("id", env.ID))
}
