// application/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

// Schedule is the cadence of a job
type Schedule struct {
	interval time.Duration
	// immediate runs the job once at start before the first interval elapses
	immediate bool
}

// Every runs a job every d, the first time after d.
func Every(d time.Duration) Schedule {
	return Schedule{interval: d}
}

// EveryNow runs a job at start and then every d.
func EveryNow(d time.Duration) Schedule {
	return Schedule{interval: d, immediate: true}
}

// Job is one periodic task
type Job struct {
	Name        string
	Description string
	Schedule    Schedule
	Handler     func(ctx context.Context) error
	// Timeout bounds one run; zero means the interval
	Timeout time.Duration

	mu      sync.Mutex
	running bool
	nextRun time.Time
	lastRun time.Time
	lastDur time.Duration
	lastErr error
	runs    int
	skipped int
}

// Status returns a snapshot of the job state
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		Name:         j.Name,
		Description:  j.Description,
		Interval:     j.Schedule.interval,
		Running:      j.running,
		NextRun:      j.nextRun,
		LastRun:      j.lastRun,
		LastDuration: j.lastDur,
		LastErr:      j.lastErr,
		Runs:         j.runs,
		Skipped:      j.skipped,
	}
}

// JobStatus is a job snapshot
type JobStatus struct {
	Name         string
	Description  string
	Interval     time.Duration
	Running      bool
	NextRun      time.Time
	LastRun      time.Time
	LastDuration time.Duration
	LastErr      error
	Runs         int
	Skipped      int
}

// Scheduler runs every job on its own goroutine. A run that is still in progress
// when the next one is due makes that one skip.
type Scheduler struct {
	jobs    []*Job
	mu      sync.RWMutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
}

func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a job. Must be called before Start().
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	logger.Info("📋 [Scheduler] Registered %q every %s", job.Name, job.Schedule.interval)
}

// Start launches the job loops; they stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	logger.Info("✅ [Scheduler] Started (%d jobs)", len(s.jobs))
}

// Stop cancels the loops and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	logger.Info("🛑 [Scheduler] Stopped")
}

// Jobs returns the status of every job
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	interval := job.Schedule.interval
	if interval <= 0 {
		logger.Warn("⚠️ [Scheduler] Job %q has no interval, not started", job.Name)
		return
	}
	if job.Schedule.immediate {
		s.Trigger(ctx, job)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	job.mu.Lock()
	job.nextRun = time.Now().Add(interval)
	job.mu.Unlock()

	var inflight sync.WaitGroup
	defer inflight.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.mu.Lock()
			job.nextRun = time.Now().Add(interval)
			job.mu.Unlock()
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				s.Trigger(ctx, job)
			}()
		}
	}
}

// Trigger runs job now unless a run is already in progress. It reports whether it ran.
func (s *Scheduler) Trigger(ctx context.Context, job *Job) bool {
	job.mu.Lock()
	if job.running {
		job.skipped++
		job.mu.Unlock()
		metrics.JobRuns.WithLabelValues(job.Name, "skipped").Inc()
		logger.Debug("⏭️ [Scheduler] %q still running, tick skipped", job.Name)
		return false
	}
	job.running = true
	job.mu.Unlock()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Schedule.interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(runCtx, job)
	elapsed := time.Since(start)

	job.mu.Lock()
	job.running = false
	job.lastRun = start
	job.lastDur = elapsed
	job.lastErr = err
	job.runs++
	job.mu.Unlock()

	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		logger.Error("❌ [Scheduler] %q failed after %v: %v", job.Name, elapsed, err)
	} else {
		metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
		logger.Debug("✅ [Scheduler] %q done in %v", job.Name, elapsed)
	}
	return true
}

func safeRun(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("💥 [Scheduler] %q panicked: %v", job.Name, r)
			err = panicError{value: r}
		}
	}()
	return job.Handler(ctx)
}

type panicError struct{ value interface{} }

func (p panicError) Error() string { return "panic in job" }
