package scheduler

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusScheduled JobStatus = "scheduled"
)

// JobInfo contains information about a scheduled job.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      JobStatus `json:"status"`
	Schedule    string    `json:"schedule"`
	LastRun     time.Time `json:"lastRun"`
	NextRun     time.Time `json:"nextRun"`
	RunCount    int       `json:"runCount"`
	ErrorCount  int       `json:"errorCount"`
	LastError   string    `json:"lastError,omitempty"`
	// LastResult is the summary returned by the last successful run.
	LastResult string `json:"lastResult,omitempty"`
}

// JobFunc is a scheduled function. The returned string summarizes the run.
type JobFunc func(ctx context.Context) (string, error)

type job struct {
	info       JobInfo
	gocron     gocron.Job
	runOnStart bool
}

// Scheduler runs singleton cron jobs and tracks their state.
type Scheduler struct {
	gocron gocron.Scheduler

	mu   sync.RWMutex
	jobs map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler.
func New() (*Scheduler, error) {
	gocronScheduler, err := gocron.NewScheduler(gocron.WithLogger(newLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron: gocronScheduler,
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddSingletonJob registers a cron job of which at most one run is active at a time.
// Overlapping runs are rescheduled.
func (s *Scheduler) AddSingletonJob(id, name, description, schedule string, fn JobFunc, runOnStart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %s already exists", id)
	}

	withSeconds := len(strings.Fields(schedule)) == 6
	gj, err := s.gocron.NewJob(
		gocron.CronJob(schedule, withSeconds),
		gocron.NewTask(s.wrapJobFunc(id, fn)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}

	s.jobs[id] = &job{
		info: JobInfo{
			ID:          id,
			Name:        name,
			Description: description,
			Status:      JobStatusScheduled,
			Schedule:    schedule,
		},
		gocron:     gj,
		runOnStart: runOnStart,
	}
	log.Info("Added job to scheduler", "id", id, "name", name, "schedule", schedule)
	return nil
}

// Start starts the scheduler and triggers the jobs marked to run on start.
func (s *Scheduler) Start() {
	log.Info("Starting job scheduler")
	s.gocron.Start()

	s.mu.Lock()
	var instant []string
	for id, j := range s.jobs {
		if next, err := j.gocron.NextRun(); err == nil {
			j.info.NextRun = next
		}
		if j.runOnStart {
			instant = append(instant, id)
		}
	}
	s.mu.Unlock()

	for _, id := range instant {
		if err := s.RunJobNow(id); err != nil {
			log.Error("Failed to run job after start", "id", id, "error", err)
		}
	}
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	log.Info("Stopping job scheduler")
	s.cancel()
	return s.gocron.Shutdown()
}

// RunJobNow triggers a job immediately.
func (s *Scheduler) RunJobNow(id string) error {
	s.mu.RLock()
	j, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %s not found", id)
	}

	log.Info("Manually triggering job", "id", id)
	if err := j.gocron.RunNow(); err != nil {
		return fmt.Errorf("failed to trigger job %s: %w", id, err)
	}
	return nil
}

// Jobs returns a snapshot of all jobs, sorted by ID.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, id := range slices.Sorted(maps.Keys(s.jobs)) {
		infos = append(infos, s.jobs[id].info)
	}
	return infos
}

// Job returns a snapshot of one job.
func (s *Scheduler) Job(id string) (JobInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.info, true
}

// wrapJobFunc wraps a job function to update job statistics.
func (s *Scheduler) wrapJobFunc(id string, fn JobFunc) func() {
	return func() {
		s.mu.Lock()
		j, ok := s.jobs[id]
		if !ok {
			s.mu.Unlock()
			log.Error("Job info not found", "id", id)
			return
		}
		j.info.Status = JobStatusRunning
		j.info.LastRun = time.Now()
		j.info.RunCount++
		if next, err := j.gocron.NextRun(); err == nil {
			j.info.NextRun = next
		}
		s.mu.Unlock()

		log.Debug("Starting job", "id", id)
		result, err := fn(s.ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			log.Error("Job failed", "id", id, "error", err)
			j.info.Status = JobStatusFailed
			j.info.ErrorCount++
			j.info.LastError = err.Error()
			return
		}
		log.Debug("Job completed", "id", id, "result", result)
		j.info.Status = JobStatusCompleted
		j.info.LastError = ""
		j.info.LastResult = result
	}
}
