package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the cron service. JobTimeout bounds each job; zero
// leaves jobs bounded only by the service context.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// CycleError lists the jobs that failed during one cycle. The remaining
// jobs still ran.
type CycleError struct {
	Failed map[string]error
}

func (e *CycleError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	slices.Sort(names)
	return fmt.Sprintf("cron cycle: %d job(s) failed: %s", len(names), strings.Join(names, ", "))
}

func (e *CycleError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Service runs every registered job in sequence once per interval. A cycle
// only runs on the replica holding the lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron service: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron service: lock required")
	case params.Registry == nil:
		return nil, errors.New("cron service: registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger.Named("cron"),
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// RunOnce executes a single locked cycle. Failed jobs come back as a
// *CycleError; a cycle skipped because another replica holds the lock
// returns nil.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logCycle(ctx, s.runCycle(ctx))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.logCycle(ctx, s.runCycle(ctx))
		}
	}
}

func (s *Service) logCycle(ctx context.Context, err error) {
	var cycleErr *CycleError
	switch {
	case err == nil:
	case errors.As(err, &cycleErr):
		// each failure was already logged by runJob
		s.logg.Warn(ctx, cycleErr.Error())
	default:
		s.logg.Error(ctx, "cron cycle aborted", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	jobs := s.registry.Jobs()
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "cron lock held elsewhere; cycle skipped")
		for _, job := range jobs {
			s.metrics.IncSkipped(job.Name())
		}
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	start := time.Now()
	failed := map[string]error{}
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			failed[job.Name()] = err
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(jobs),
		"failed_jobs": len(failed),
		"duration_ms": time.Since(start).Milliseconds(),
	}), "cron cycle finished")

	if len(failed) > 0 {
		return &CycleError{Failed: failed}
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", name, rec, debug.Stack())
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRun(name, elapsed, err)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job finished")
	}()
	return job.Run(jobCtx)
}
