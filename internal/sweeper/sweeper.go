// Package sweeper crashes pools whose response deadline has passed. The pool
// engine never schedules work itself; the sweeper is the external watcher
// that calls CheckTimeout on a cron schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/teepool/internal/metrics"
	"github.com/R3E-Network/teepool/internal/pool"
	"github.com/R3E-Network/teepool/pkg/logger"
)

// DefaultSchedule runs a sweep every five seconds.
const DefaultSchedule = "@every 5s"

// Engine is the part of the pool engine the sweeper drives.
type Engine interface {
	Expired() []pool.PoolID
	CheckTimeout(ctx context.Context, id pool.PoolID) (pool.Phase, error)
}

// Config configures a Sweeper.
type Config struct {
	Engine   Engine // required
	Schedule string

	// CheckRate caps CheckTimeout calls per second within a sweep; zero
	// means unlimited.
	CheckRate  float64
	CheckBurst int

	Metrics metrics.Recorder
	Logger  *logger.Logger
}

// Sweeper periodically crashes expired pools.
type Sweeper struct {
	engine   Engine
	schedule string
	limiter  *rate.Limiter
	metrics  metrics.Recorder
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// New validates the schedule and creates a stopped sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.CheckRate < 0 {
		return nil, fmt.Errorf("check rate must not be negative")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOpCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("sweeper")
	}

	s := &Sweeper{
		engine:   cfg.Engine,
		schedule: cfg.Schedule,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
	if cfg.CheckRate > 0 {
		if cfg.CheckBurst < 1 {
			cfg.CheckBurst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.CheckRate), cfg.CheckBurst)
	}
	return s, nil
}

// RunOnce checks every expired pool and returns the ids it crashed. A pool
// that another watcher resolved or crashed in the meantime is skipped; other
// failures are joined into the returned error.
func (s *Sweeper) RunOnce(ctx context.Context) ([]pool.PoolID, error) {
	began := time.Now()

	var (
		crashed []pool.PoolID
		errs    []error
	)
	for _, id := range s.engine.Expired() {
		if err := s.wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		_, err := s.engine.CheckTimeout(ctx, id)
		switch {
		case err == nil:
			crashed = append(crashed, id)
		case errors.Is(err, pool.ErrWrongPhase), errors.Is(err, pool.ErrDeadlinePending):
			s.log.WithField("pool_id", id.String()).WithError(err).Debug("pool no longer expired")
		default:
			errs = append(errs, err)
		}
	}

	s.metrics.RecordSweep(time.Since(began), len(crashed), len(errs))

	entry := s.log.WithFields(logrus.Fields{
		"crashed":  len(crashed),
		"failures": len(errs),
		"duration": time.Since(began).String(),
	})
	switch {
	case len(errs) > 0:
		entry.Warn("sweep finished with failures")
	case len(crashed) > 0:
		entry.Info("sweep crashed expired pools")
	default:
		entry.Debug("sweep finished")
	}

	return crashed, errors.Join(errs...)
}

func (s *Sweeper) wait(ctx context.Context) error {
	if s.limiter == nil {
		return ctx.Err()
	}
	return s.limiter.Wait(ctx)
}

// Start schedules sweeps until Stop is called or ctx ends.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true

	go func() {
		<-runCtx.Done()
		s.stop(c)
	}()

	s.log.WithField("schedule", s.schedule).Info("sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.stop(nil)
}

// stop halts the running schedule. A non-nil only must match it.
func (s *Sweeper) stop(only *cron.Cron) {
	s.mu.Lock()
	if !s.running || (only != nil && s.cron != only) {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	s.log.Info("sweeper stopped")
}

// Running reports whether sweeps are scheduled.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
