package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/ternarybob/compleo/internal/services/pipeline"
	"github.com/ternarybob/compleo/internal/services/profile"
)

// jobRunner is the executor surface the scheduler drives.
type jobRunner interface {
	Run(ctx context.Context, job *models.Job, profile *models.NormalizedProfile) *pipeline.Outcome
}

// JobRequest is an enqueue request after handler validation.
type JobRequest struct {
	URL       string
	SiteID    string
	ProfileID string
	Options   models.JobOptions
}

// Status is a snapshot of scheduler state for the status API.
type Status struct {
	Running       bool          `json:"running"`
	Queued        int           `json:"queued"`
	Active        int           `json:"active"`
	MaxConcurrent int           `json:"max_concurrent"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Degraded      bool          `json:"degraded"`
	Jobs          []JobSnapshot `json:"jobs,omitempty"`
}

// JobSnapshot is the per-active-job view inside Status.
type JobSnapshot struct {
	JobID    string          `json:"job_id"`
	Phase    models.JobPhase `json:"phase"`
	Progress int             `json:"progress"`
}

// Scheduler owns the FIFO job queue and the worker pool. Each worker runs one
// job at a time through the pipeline; a job's browser session belongs to its
// worker alone.
type Scheduler struct {
	runner   jobRunner
	profiles interfaces.ProfileStorage
	sites    interfaces.SiteStorage
	jobs     interfaces.JobStorage
	history  interfaces.HistoryStorage
	config   *common.AutomationConfig
	defaults profile.Defaults
	logger   arbor.ILogger

	mu        sync.Mutex
	queue     []*models.Job
	active    map[string]context.CancelFunc // running jobs by id
	notify    chan struct{}
	running   bool
	degraded  bool
	completed int
	failed    int

	baseCtx  context.Context
	stopFunc context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler over the given executor and stores.
func New(
	runner jobRunner,
	profiles interfaces.ProfileStorage,
	sites interfaces.SiteStorage,
	jobs interfaces.JobStorage,
	history interfaces.HistoryStorage,
	config *common.AutomationConfig,
	logger arbor.ILogger,
) *Scheduler {
	return &Scheduler{
		runner:    runner,
		profiles:  profiles,
		sites:     sites,
		jobs:      jobs,
		history:   history,
		config:    config,
		defaults:  profile.NewDefaults(),
		logger:    logger,
		active:    make(map[string]context.CancelFunc),
		notify:    make(chan struct{}, 1),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	workers := s.config.MaxConcurrentJobs
	if workers <= 0 {
		workers = 4
	}

	s.baseCtx, s.stopFunc = context.WithCancel(context.Background())
	s.running = true

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.logger.Info().Int("workers", workers).Msg("Job scheduler started")
	return nil
}

// Stop cancels all active jobs and waits for workers to drain, bounded to 5s
// past cancellation.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopFunc()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("Scheduler workers did not drain within 5s")
	}

	s.logger.Info().Msg("Job scheduler stopped")
	return nil
}

// SetDegraded toggles license-degraded mode. While degraded, new jobs are
// rejected; running jobs finish normally.
func (s *Scheduler) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded != degraded {
		s.logger.Warn().Bool("degraded", degraded).Msg("Scheduler degraded mode changed")
	}
	s.degraded = degraded
}

// Enqueue validates and queues a new job.
func (s *Scheduler) Enqueue(ctx context.Context, req JobRequest) (*models.Job, error) {
	if err := common.ValidateSiteURL(req.URL); err != nil {
		return nil, err
	}

	p, err := s.profiles.Get(ctx, req.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s not found", req.ProfileID)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler is not running")
	}
	if s.degraded {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: license is invalid, new jobs rejected", models.ErrLicenseInvalid)
	}
	maxConcurrent := s.config.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if len(s.active) >= maxConcurrent {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %d jobs already running", models.ErrCapacityExhausted, maxConcurrent)
	}

	job := &models.Job{
		ID:        common.NewJobID(),
		SiteID:    req.SiteID,
		URL:       req.URL,
		ProfileID: req.ProfileID,
		Options:   req.Options,
		Phase:     models.PhaseCreated,
		CreatedAt: time.Now(),
	}
	s.queue = append(s.queue, job)
	s.mu.Unlock()

	if err := s.jobs.Save(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist queued job")
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("url", job.URL).
		Bool("submit", job.Options.Submit).
		Msg("Job queued")
	return job, nil
}

// Cancel requests cancellation of a queued or running job. Running jobs stop
// at the next suspension point, within 5 seconds.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.queue {
		if job.ID == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.logger.Info().Str("job_id", jobID).Msg("Queued job cancelled")
			go s.finalizeQueuedCancel(job)
			return nil
		}
	}

	if cancel, ok := s.active[jobID]; ok {
		cancel()
		s.logger.Info().Str("job_id", jobID).Msg("Active job cancellation requested")
		return nil
	}

	return fmt.Errorf("job %s is not queued or running", jobID)
}

// CancelAll drains the queue and cancels every active job. Returns the number
// of jobs affected.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	cancels := make([]context.CancelFunc, 0, len(s.active))
	for _, cancel := range s.active {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, job := range queued {
		go s.finalizeQueuedCancel(job)
	}
	for _, cancel := range cancels {
		cancel()
	}

	n := len(queued) + len(cancels)
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("All jobs cancelled")
	}
	return n
}

// Status returns a snapshot of queue and worker state, including a phase
// snapshot per active job. Phases come from the job store, which the pipeline
// updates on every transition.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	status := Status{
		Running:       s.running,
		Queued:        len(s.queue),
		Active:        len(s.active),
		MaxConcurrent: s.config.MaxConcurrentJobs,
		Completed:     s.completed,
		Failed:        s.failed,
		Degraded:      s.degraded,
	}
	s.mu.Unlock()

	sort.Strings(ids)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, id := range ids {
		snapshot := JobSnapshot{JobID: id}
		if job, err := s.jobs.Get(ctx, id); err == nil && job != nil {
			snapshot.Phase = job.Phase
			snapshot.Progress = job.Progress
		}
		status.Jobs = append(status.Jobs, snapshot)
	}
	return status
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		job := s.dequeue()
		if job == nil {
			return
		}
		s.runJob(job)
	}
}

// dequeue blocks until a job is available or the scheduler stops.
func (s *Scheduler) dequeue() *models.Job {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			job := s.queue[0]
			s.queue = s.queue[1:]
			remaining := len(s.queue)
			s.mu.Unlock()
			if remaining > 0 {
				// Wake another worker for the rest of the queue
				select {
				case s.notify <- struct{}{}:
				default:
				}
			}
			return job
		}
		s.mu.Unlock()

		select {
		case <-s.baseCtx.Done():
			return nil
		case <-s.notify:
		}
	}
}

func (s *Scheduler) runJob(job *models.Job) {
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	s.mu.Lock()
	s.active[job.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
	}()

	start := time.Now()
	job.StartedAt = &start

	p, err := s.profiles.Get(jobCtx, job.ProfileID)
	if err != nil || p == nil {
		s.failJob(job, fmt.Errorf("profile %s unavailable: %v", job.ProfileID, err))
		return
	}
	normalized := profile.Normalize(p, s.defaults)

	outcome := s.runner.Run(jobCtx, job, normalized)

	s.mu.Lock()
	if outcome.Result == models.ResultFailed || outcome.Result == models.ResultCancelled {
		s.failed++
	} else {
		s.completed++
	}
	s.mu.Unlock()

	s.recordOutcome(job, outcome, time.Since(start))
}

// recordOutcome writes site status and fill history after a run. Storage
// failures here are logged, never surfaced; the job result already stands.
func (s *Scheduler) recordOutcome(job *models.Job, outcome *pipeline.Outcome, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	success := outcome.Result == models.ResultSuccess
	if outcome.Result == models.ResultPartialSuccess {
		success = s.config.PartialSuccessAs == "success"
	}

	if job.SiteID != "" {
		status := models.SiteStatusFailed
		if success {
			status = models.SiteStatusSuccess
		}
		if err := s.sites.UpdateStatus(ctx, job.SiteID, status, outcome.FieldsFilled, time.Now()); err != nil {
			s.logger.Warn().Err(err).Str("site_id", job.SiteID).Msg("Site status update failed")
		}
		if success && len(outcome.FilledEntries) > 0 {
			plan := &models.FieldPlan{Entries: outcome.FilledEntries, Source: outcome.PlanSource}
			if err := s.sites.UpdateCachedPlan(ctx, job.SiteID, plan); err != nil {
				s.logger.Warn().Err(err).Str("site_id", job.SiteID).Msg("Site cached plan update failed")
			}
		}
	}

	entry := &models.FillHistoryEntry{
		JobID:        job.ID,
		SiteID:       job.SiteID,
		ProfileID:    job.ProfileID,
		URL:          job.URL,
		Success:      success,
		FieldsFilled: outcome.FieldsFilled,
		ErrorKind:    outcome.ErrorKind,
		Duration:     duration,
		CreatedAt:    time.Now(),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("History append failed")
	}
}

// finalizeQueuedCancel marks a never-started job terminal.
func (s *Scheduler) finalizeQueuedCancel(job *models.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	job.Phase = models.PhaseCancelled
	job.Result = models.ResultCancelled
	job.ErrorKind = models.ErrCancelled
	job.CompletedAt = &now
	if err := s.jobs.Save(ctx, job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist cancelled job")
	}
}

func (s *Scheduler) failJob(job *models.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	job.Phase = models.PhaseFailed
	job.Result = models.ResultFailed
	job.ErrorKind = models.ErrInternal
	job.ErrorMessage = err.Error()
	job.CompletedAt = &now

	s.mu.Lock()
	s.failed++
	s.mu.Unlock()

	if saveErr := s.jobs.Save(ctx, job); saveErr != nil {
		s.logger.Warn().Err(saveErr).Str("job_id", job.ID).Msg("Failed to persist failed job")
	}
	s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Job failed before pipeline start")
}
