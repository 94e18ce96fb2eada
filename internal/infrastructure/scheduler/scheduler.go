// Package scheduler runs the per-source sync cadences. Each source
// gets its own ticker; ticks funnel into the orchestrator, whose
// single-flight lock resolves overlap between scheduled and manual
// triggers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// Trigger starts a sync run. Satisfied by the orchestrator; abstracted
// so the scheduler can be tested against a recording stub.
type Trigger interface {
	TriggerSync(ctx context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) error
}

// TriggerFunc adapts a function to the Trigger interface.
type TriggerFunc func(ctx context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) error

func (f TriggerFunc) TriggerSync(ctx context.Context, trigger syncdomain.TriggerType, sources []syncdomain.Source) error {
	return f(ctx, trigger, sources)
}

// Cadences maps each source to its tick interval. Sources with a zero
// or negative interval are not scheduled.
type Cadences map[syncdomain.Source]time.Duration

// Scheduler owns one ticker goroutine per scheduled source.
type Scheduler struct {
	trigger Trigger
	logger  *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	cadences  Cadences
}

// New creates a stopped scheduler.
func New(trigger Trigger, logger *zap.Logger) *Scheduler {
	return &Scheduler{trigger: trigger, logger: logger}
}

// Start arms a ticker per source. Starting an already running
// scheduler is a no-op; call Stop first to change cadences.
func (s *Scheduler) Start(ctx context.Context, cadences Cadences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cadences = make(Cadences, len(cadences))

	armed := 0
	for _, source := range syncdomain.AllSources() {
		interval, ok := cadences[source]
		if !ok || interval <= 0 {
			continue
		}
		s.cadences[source] = interval
		s.wg.Add(1)
		go s.loop(ctx, source, interval)
		armed++
	}
	s.isRunning = true

	s.logger.Info("sync scheduler started", zap.Int("sources", armed))
	return nil
}

// Stop cancels every ticker and waits for the loops to exit. After
// Stop returns no further scheduled runs are triggered; it is the
// single switch for all sources.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cadences = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Running reports whether the scheduler is armed, and with which
// cadences.
func (s *Scheduler) Running() (bool, Cadences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return false, nil
	}
	out := make(Cadences, len(s.cadences))
	for source, interval := range s.cadences {
		out[source] = interval
	}
	return true, out
}

func (s *Scheduler) loop(ctx context.Context, source syncdomain.Source, interval time.Duration) {
	defer s.wg.Done()

	log := s.logger.With(zap.String("source", source.String()), zap.Duration("cadence", interval))
	log.Debug("source schedule armed")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("source schedule stopped")
			return
		case <-ticker.C:
			err := s.trigger.TriggerSync(ctx, syncdomain.TriggerScheduled, []syncdomain.Source{source})
			if err != nil {
				// Losing the single-flight race to a manual or
				// overlapping run is expected; the next tick catches up.
				if syncdomain.ClassOf(err) == syncdomain.ClassConcurrency {
					log.Debug("scheduled run skipped, another run active")
					continue
				}
				log.Error("scheduled run failed", zap.Error(err))
			}
		}
	}
}
