package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tracker/pkg/observability"
)

// Func is one unit of scheduled work
type Func func(ctx context.Context) error

type job struct {
	name     string
	schedule string
	fn       Func
}

// Scheduler runs maintenance jobs on cron schedules in UTC. A panicking
// job is recovered and logged; a job still running when its next tick
// arrives is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	jobs    []job
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithTimeout bounds each job run. The default is five minutes.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Scheduler {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		metrics: metrics,
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers fn under name on a standard five-field cron schedule or a
// descriptor such as "@every 1h".
func (s *Scheduler) Add(name, schedule string, fn Func) error {
	j := job{name: name, schedule: schedule, fn: fn}
	if _, err := s.cron.AddFunc(schedule, func() { s.run(context.Background(), j) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start runs the scheduler until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.jobs)).Info("job scheduler started")
	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()
}

// Stop stops scheduling and waits for running jobs, or for ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll runs every registered job once, in registration order, and
// returns the first error.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var first error
	for _, j := range s.jobs {
		if err := s.run(ctx, j); err != nil && first == nil {
			first = fmt.Errorf("job %s: %w", j.name, err)
		}
	}
	return first
}

func (s *Scheduler) run(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := s.logger.WithField("job", j.name)
	start := time.Now()
	err := j.fn(ctx)
	s.metrics.RecordJobRun(j.name, err)
	if err != nil {
		logger.WithError(err).Error("job failed")
		return err
	}
	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("job finished")
	return nil
}

// cronLogger adapts the structured logger to cron's logging interface
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
