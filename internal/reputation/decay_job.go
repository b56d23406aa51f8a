package reputation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobMetrics provides centralized background job metrics tracking.
// This interface allows the job to report to the centralized job metrics system.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// DecayJobConfig configures the reputation decay job.
type DecayJobConfig struct {
	// Interval is the duration between decay sweeps.
	Interval time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
	// Timeout for each sweep.
	Timeout time.Duration
}

// DefaultDecayInterval is the default interval between decay sweeps. Decay
// accrues per full month of inactivity, so a sweep a few times a day is
// more than enough resolution.
const DefaultDecayInterval = 6 * time.Hour

// DefaultDecayTimeout is the default timeout for a single sweep.
const DefaultDecayTimeout = time.Minute

// DecayJob periodically applies inactivity decay to every stored score.
type DecayJob struct {
	config  DecayJobConfig
	manager *Manager

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewDecayJob creates a reputation decay job over manager's scores.
func NewDecayJob(config DecayJobConfig, manager *Manager) *DecayJob {
	if config.Interval == 0 {
		config.Interval = DefaultDecayInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultDecayTimeout
	}

	return &DecayJob{
		config:  config,
		manager: manager,
	}
}

// Start begins the periodic decay job.
// Returns immediately; the job runs in a background goroutine.
func (j *DecayJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the decay job to stop and waits for it to finish.
func (j *DecayJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *DecayJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// run is the main loop for the decay job.
func (j *DecayJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("reputation decay job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("reputation decay job stopping due to stop signal")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep applies decay to every known actor.
func (j *DecayJob) sweep(parentCtx context.Context) {
	actors, err := j.manager.repo.ListActors()
	if err != nil {
		j.config.Logger.Error("failed to list actors for decay sweep", "error", err)
		if j.config.JobMetrics != nil {
			j.config.JobMetrics.IncJobErrors("reputation_decay", "list_error")
			j.config.JobMetrics.IncJobsTotal("reputation_decay", "failure")
		}
		return
	}
	if len(actors) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	actorCount := len(actors)
	var successCount int

	j.config.Logger.Info("applying reputation decay", "actor_count", actorCount)

	for i, actor := range actors {
		select {
		case <-ctx.Done():
			j.config.Logger.Error("decay sweep timeout exceeded",
				"processed", i,
				"total", actorCount,
				"timeout", j.config.Timeout)
			if j.config.JobMetrics != nil {
				j.config.JobMetrics.IncJobErrors("reputation_decay", "timeout")
				j.config.JobMetrics.IncJobsTotal("reputation_decay", "failure")
				j.config.JobMetrics.ObserveJobDuration("reputation_decay", time.Since(startTime).Seconds())
			}
			return
		default:
		}

		if _, err := j.manager.ApplyDecay(ctx, actor); err != nil {
			j.config.Logger.Error("failed to apply decay",
				"actor", actor,
				"error", err)
			if j.config.JobMetrics != nil {
				j.config.JobMetrics.IncJobErrors("reputation_decay", "decay_error")
			}
			continue
		}
		successCount++
	}

	duration := time.Since(startTime).Seconds()

	status := "success"
	if successCount < actorCount {
		status = "failure"
	}

	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal("reputation_decay", status)
		j.config.JobMetrics.ObserveJobDuration("reputation_decay", duration)
	}

	j.config.Logger.Info("reputation decay sweep completed",
		"duration_seconds", duration,
		"actors_processed", successCount,
		"actors_failed", actorCount-successCount)
}

// SweepNow immediately applies decay without waiting for the ticker.
// This is useful for testing or forcing immediate updates.
func (j *DecayJob) SweepNow() {
	j.sweep(context.Background())
}
