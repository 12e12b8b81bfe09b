package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// planResolver is the slice of the resolver the pipeline needs.
type planResolver interface {
	Resolve(ctx context.Context, domain, formHTML string, fields []models.FieldDescriptor, availableKeys []string) (*models.FieldPlan, error)
	Learn(ctx context.Context, domain, url string, entries []models.FieldEntry) (int, error)
}

// Executor drives one job through the phase sequence: navigate, clear,
// detect, fill, captcha, submit, learn. Phases advance forward-only; a
// phase-fatal error ends the job, anything else degrades the result.
type Executor struct {
	browser  interfaces.Browser
	resolver planResolver
	solver   interfaces.CaptchaSolver
	events   interfaces.EventService
	jobs     interfaces.JobStorage
	config   *common.AutomationConfig
	captcha  *common.CaptchaConfig
	logger   arbor.ILogger

	navBackoff time.Duration
}

// Outcome summarizes a finished run.
type Outcome struct {
	Result        models.JobResult
	FieldsFilled  int
	FilledEntries []models.FieldEntry
	PlanSource    models.PlanSource
	FieldErrors   []string
	ErrorKind     models.ErrorKind
	ErrorMessage  string
}

// NewExecutor wires the pipeline dependencies.
func NewExecutor(
	browser interfaces.Browser,
	resolver planResolver,
	solver interfaces.CaptchaSolver,
	events interfaces.EventService,
	jobs interfaces.JobStorage,
	config *common.AutomationConfig,
	captcha *common.CaptchaConfig,
	logger arbor.ILogger,
) *Executor {
	return &Executor{
		browser:    browser,
		resolver:   resolver,
		solver:     solver,
		events:     events,
		jobs:       jobs,
		config:     config,
		captcha:    captcha,
		logger:     logger,
		navBackoff: 2 * time.Second,
	}
}

// run-scoped state threaded through the phases.
type runState struct {
	job     *models.Job
	profile *models.NormalizedProfile
	session interfaces.BrowserSession
	domain  string
	plan    *models.FieldPlan

	filledEntries   []models.FieldEntry // successfully filled, fed to learning
	filledSelectors map[string]bool
	fieldErrors     []string
	degradedKind    models.ErrorKind // first non-fatal error kind
	degradedMsg     string
}

// degrade records the first non-fatal error; later ones only add detail to
// the field error list.
func (s *runState) degrade(kind models.ErrorKind, err error) {
	if s.degradedKind == "" {
		s.degradedKind = kind
		s.degradedMsg = err.Error()
		return
	}
	s.fieldErrors = append(s.fieldErrors, fmt.Sprintf("%s: %v", kind, err))
}

// Run executes the job to a terminal outcome. The context carries
// cancellation from the scheduler; cancellation is honored between fields and
// at every phase boundary.
func (e *Executor) Run(ctx context.Context, job *models.Job, profile *models.NormalizedProfile) *Outcome {
	state := &runState{
		job:             job,
		profile:         profile,
		filledSelectors: make(map[string]bool),
	}

	e.emit(ctx, job, models.EventStarted, "")

	outcome := e.execute(ctx, state)

	if state.session != nil {
		if err := state.session.Close(); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Browser session close failed")
		}
	}

	now := time.Now()
	job.CompletedAt = &now
	job.Result = outcome.Result
	job.FieldsFilled = outcome.FieldsFilled
	job.ErrorKind = outcome.ErrorKind
	job.ErrorMessage = outcome.ErrorMessage

	switch outcome.Result {
	case models.ResultCancelled:
		job.Phase = models.PhaseCancelled
		e.emitError(ctx, job, string(models.ErrCancelled))
	case models.ResultFailed:
		job.Phase = models.PhaseFailed
		e.emitError(ctx, job, outcome.ErrorMessage)
	default:
		e.setPhase(ctx, state, models.PhaseDone)
		e.emit(ctx, job, models.EventCompleted, string(outcome.Result))
	}
	e.saveJob(ctx, job)

	return outcome
}

func (e *Executor) execute(ctx context.Context, state *runState) *Outcome {
	if err := e.navigate(ctx, state); err != nil {
		if ctx.Err() != nil {
			return e.cancelled(state)
		}
		return e.fatal(state, models.ErrNavigationTimeout, err)
	}

	e.setPhase(ctx, state, models.PhaseClearing)
	e.dismissPopups(ctx, state)

	if err := e.detect(ctx, state); err != nil {
		if ctx.Err() != nil {
			return e.cancelled(state)
		}
		return e.fatal(state, models.ErrNoFields, err)
	}

	steps := 0
	maxSteps := e.config.MaxFormSteps
	if maxSteps <= 0 {
		maxSteps = 10
	}

	for {
		if err := e.fill(ctx, state); err != nil {
			return e.cancelled(state)
		}

		if err := e.handleCaptcha(ctx, state); err != nil {
			if ctx.Err() != nil {
				return e.cancelled(state)
			}
			if e.captcha.Require {
				return e.fatal(state, models.ErrCaptchaFailed, err)
			}
			state.degrade(models.ErrCaptchaFailed, err)
		}

		if !state.job.Options.Submit {
			break
		}

		e.setPhase(ctx, state, models.PhaseSubmitting)
		if err := e.submit(ctx, state); err != nil {
			if ctx.Err() != nil {
				return e.cancelled(state)
			}
			state.degrade(models.ErrSubmitNotFound, err)
			break
		}

		steps++
		if steps >= maxSteps {
			e.logger.Warn().
				Str("job_id", state.job.ID).
				Int("steps", steps).
				Msg("Form step cap reached")
			break
		}

		// Multi-step forms surface a fresh set of fields after submit
		more, err := e.detectNextStep(ctx, state)
		if err != nil || !more {
			break
		}
		e.emitProgress(ctx, state.job, fmt.Sprintf("form step %d", steps+1))
	}

	e.learn(ctx, state)

	return e.finish(state)
}

// navigate opens the browser session with bounded retries and exponential
// backoff (2s base, 10s cap).
func (e *Executor) navigate(ctx context.Context, state *runState) error {
	e.setPhase(ctx, state, models.PhaseNavigating)

	job := state.job
	domain, err := common.RegistrableDomain(job.URL)
	if err != nil {
		return fmt.Errorf("invalid job URL: %w", err)
	}
	state.domain = domain

	opts := interfaces.OpenOptions{
		Undetected: true,
		Headless:   job.Options.Headless,
		UserAgent:  e.config.UserAgent,
	}

	attempts := e.config.MaxNavRetries + 1
	backoff := e.navBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		navCtx, cancel := context.WithTimeout(ctx, e.config.NavTimeoutDuration())
		session, err := e.browser.Open(navCtx, job.URL, opts)
		if err == nil {
			err = session.WaitReady(navCtx, e.config.NavTimeoutDuration())
			if err == nil {
				cancel()
				state.session = session
				return nil
			}
			session.Close()
		}
		cancel()

		lastErr = err
		e.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Int("attempt", attempt).
			Msg("Navigation attempt failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}
	}
	return fmt.Errorf("navigation failed after %d attempts: %w", attempts, lastErr)
}

// dismissPopups clicks through the configured dismiss candidates. Failures
// are ignored; a popup that cannot be dismissed just stays.
func (e *Executor) dismissPopups(ctx context.Context, state *runState) {
	for _, selector := range e.config.DismissSelectors {
		if ctx.Err() != nil {
			return
		}
		if !state.session.IsVisible(ctx, selector) {
			continue
		}
		if err := state.session.Click(ctx, selector, 2*time.Second); err != nil {
			e.logger.Debug().Err(err).Str("selector", selector).Msg("Popup dismiss failed")
			continue
		}
		e.logger.Debug().Str("selector", selector).Msg("Dismissed popup")
	}
}

// detect enumerates fields and resolves the field plan.
func (e *Executor) detect(ctx context.Context, state *runState) error {
	e.setPhase(ctx, state, models.PhaseDetecting)

	fields, err := state.session.QueryFields(ctx)
	if err != nil {
		return fmt.Errorf("field detection failed: %w", err)
	}
	if countFillable(fields) == 0 {
		return fmt.Errorf("no fillable fields on page")
	}

	formHTML, err := state.session.FormHTML(ctx, 0)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", state.job.ID).Msg("Form HTML extraction failed")
	}

	plan, err := e.resolver.Resolve(ctx, state.domain, formHTML, fields, availableKeys(state.profile))
	if err != nil {
		return err
	}

	state.plan = plan
	state.job.PlanSource = plan.Source
	e.logger.Info().
		Str("job_id", state.job.ID).
		Str("source", string(plan.Source)).
		Int("entries", len(plan.Entries)).
		Msg("Field plan resolved")
	return nil
}

// detectNextStep re-queries the page after a submit. Returns true when a new
// plan with unfilled entries was produced.
func (e *Executor) detectNextStep(ctx context.Context, state *runState) (bool, error) {
	fields, err := state.session.QueryFields(ctx)
	if err != nil {
		return false, err
	}
	if countFillable(fields) == 0 {
		return false, nil
	}

	formHTML, err := state.session.FormHTML(ctx, 0)
	if err != nil {
		formHTML = ""
	}

	plan, err := e.resolver.Resolve(ctx, state.domain, formHTML, fields, availableKeys(state.profile))
	if err != nil {
		return false, nil
	}

	remaining := make([]models.FieldEntry, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		if !state.filledSelectors[entry.Selector] {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) == 0 {
		return false, nil
	}

	state.plan = &models.FieldPlan{Entries: remaining, Source: plan.Source}
	return true, nil
}

// learn merges successfully filled entries back into the domain mapping.
// Cached plans are already the mapping, so only AI- and pattern-sourced runs
// write back. Learning failure never affects the job result.
func (e *Executor) learn(ctx context.Context, state *runState) {
	if len(state.filledEntries) == 0 {
		return
	}
	if state.job.PlanSource == models.PlanSourceCached {
		return
	}

	e.setPhase(ctx, state, models.PhaseLearning)

	if _, err := e.resolver.Learn(ctx, state.domain, state.job.URL, state.filledEntries); err != nil {
		e.logger.Warn().Err(err).Str("domain", state.domain).Msg("Mapping learn failed")
	}
}

func (e *Executor) finish(state *runState) *Outcome {
	outcome := &Outcome{
		FieldsFilled:  len(state.filledEntries),
		FilledEntries: state.filledEntries,
		PlanSource:    state.job.PlanSource,
		FieldErrors:   state.fieldErrors,
	}

	switch {
	case len(state.fieldErrors) == 0 && state.degradedKind == "":
		outcome.Result = models.ResultSuccess
	case len(state.filledEntries) > 0:
		outcome.Result = models.ResultPartialSuccess
		outcome.ErrorKind = state.degradedKind
		outcome.ErrorMessage = state.degradedMsg
		if outcome.ErrorKind == "" {
			outcome.ErrorKind = models.ErrFieldFill
			outcome.ErrorMessage = fmt.Sprintf("%d fields failed to fill", len(state.fieldErrors))
		}
	default:
		outcome.Result = models.ResultFailed
		outcome.ErrorKind = state.degradedKind
		outcome.ErrorMessage = state.degradedMsg
		if outcome.ErrorKind == "" {
			outcome.ErrorKind = models.ErrFieldFill
			outcome.ErrorMessage = "no fields could be filled"
		}
	}
	return outcome
}

func (e *Executor) fatal(state *runState, kind models.ErrorKind, err error) *Outcome {
	return &Outcome{
		Result:       models.ResultFailed,
		FieldsFilled: len(state.filledEntries),
		PlanSource:   state.job.PlanSource,
		FieldErrors:  state.fieldErrors,
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
	}
}

func (e *Executor) cancelled(state *runState) *Outcome {
	return &Outcome{
		Result:       models.ResultCancelled,
		FieldsFilled: len(state.filledEntries),
		PlanSource:   state.job.PlanSource,
		FieldErrors:  state.fieldErrors,
		ErrorKind:    models.ErrCancelled,
		ErrorMessage: "job cancelled",
	}
}

// setPhase advances the job phase forward-only and emits a progress event.
// Percent never decreases, so multi-step loops cannot regress the bar.
func (e *Executor) setPhase(ctx context.Context, state *runState, phase models.JobPhase) {
	job := state.job
	if phaseIndex(phase) < phaseIndex(job.Phase) {
		return
	}
	job.Phase = phase
	if pct := models.PhasePercent[phase]; pct > job.Progress {
		job.Progress = pct
	}
	e.saveJob(ctx, job)
	e.emitProgress(ctx, job, "")
}

func (e *Executor) saveJob(ctx context.Context, job *models.Job) {
	if e.jobs == nil {
		return
	}
	if err := e.jobs.Save(ctx, job); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Job persist failed")
	}
}

func (e *Executor) emit(ctx context.Context, job *models.Job, eventType models.ProgressEventType, message string) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, models.ProgressEvent{
		Type:      eventType,
		JobID:     job.ID,
		Phase:     job.Phase,
		Progress:  job.Progress,
		Message:   message,
		Count:     job.FieldsFilled,
		Timestamp: time.Now(),
	})
}

func (e *Executor) emitProgress(ctx context.Context, job *models.Job, message string) {
	e.emit(ctx, job, models.EventProgress, message)
}

func (e *Executor) emitError(ctx context.Context, job *models.Job, message string) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, models.ProgressEvent{
		Type:      models.EventError,
		JobID:     job.ID,
		Phase:     job.Phase,
		Progress:  job.Progress,
		Error:     message,
		Count:     job.FieldsFilled,
		Timestamp: time.Now(),
	})
}

func phaseIndex(phase models.JobPhase) int {
	for i, p := range models.PhaseOrder {
		if p == phase {
			return i
		}
	}
	return len(models.PhaseOrder)
}

func countFillable(fields []models.FieldDescriptor) int {
	count := 0
	for i := range fields {
		if fields[i].Visible && !fields[i].Disabled {
			count++
		}
	}
	return count
}

func availableKeys(profile *models.NormalizedProfile) []string {
	keys := make([]string, 0, len(profile.Values))
	for _, key := range models.CanonicalKeys {
		if profile.Has(key) {
			keys = append(keys, key)
		}
	}
	return keys
}
