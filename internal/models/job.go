package models

import "time"

// JobPhase is one state of the pipeline state machine. Phases advance
// forward-only; failed and cancelled are terminal.
type JobPhase string

const (
	PhaseCreated    JobPhase = "created"
	PhaseNavigating JobPhase = "navigating"
	PhaseClearing   JobPhase = "clearing"
	PhaseDetecting  JobPhase = "detecting"
	PhaseFilling    JobPhase = "filling"
	PhaseCaptcha    JobPhase = "captcha"
	PhaseSubmitting JobPhase = "submitting"
	PhaseLearning   JobPhase = "learning"
	PhaseDone       JobPhase = "done"
	PhaseFailed     JobPhase = "failed"
	PhaseCancelled  JobPhase = "cancelled"
)

// PhaseOrder is the forward order of non-terminal phases. Used to enforce
// monotonic progress and by tests asserting emitted-phase prefixes.
var PhaseOrder = []JobPhase{
	PhaseCreated, PhaseNavigating, PhaseClearing, PhaseDetecting,
	PhaseFilling, PhaseCaptcha, PhaseSubmitting, PhaseLearning, PhaseDone,
}

// PhasePercent maps each phase to its baseline progress percent.
var PhasePercent = map[JobPhase]int{
	PhaseCreated:    0,
	PhaseNavigating: 10,
	PhaseClearing:   20,
	PhaseDetecting:  30,
	PhaseFilling:    45,
	PhaseCaptcha:    70,
	PhaseSubmitting: 80,
	PhaseLearning:   90,
	PhaseDone:       100,
}

// Terminal reports whether the phase is a terminal state.
func (p JobPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// ErrorKind is the closed set of job error categories.
type ErrorKind string

const (
	ErrNavigationTimeout ErrorKind = "navigation_timeout"
	ErrNoFields          ErrorKind = "no_fields"
	ErrBrowserCrashed    ErrorKind = "browser_crashed"
	ErrFieldFill         ErrorKind = "field_fill_error"
	ErrCaptchaFailed     ErrorKind = "captcha_failed"
	ErrSubmitNotFound    ErrorKind = "submit_not_found"
	ErrAIUnavailable     ErrorKind = "ai_unavailable"
	ErrCancelled         ErrorKind = "cancelled"
	ErrCapacityExhausted ErrorKind = "capacity_exhausted"
	ErrLicenseInvalid    ErrorKind = "license_invalid"
	ErrInternal          ErrorKind = "internal_error"
)

// PhaseFatal reports whether the kind terminates the whole job. Other kinds
// degrade into partial success.
func (k ErrorKind) PhaseFatal() bool {
	switch k {
	case ErrNavigationTimeout, ErrNoFields, ErrBrowserCrashed:
		return true
	}
	return false
}

// JobResult classifies a finished job.
type JobResult string

const (
	ResultSuccess        JobResult = "success"
	ResultPartialSuccess JobResult = "partial_success"
	ResultFailed         JobResult = "failed"
	ResultCancelled      JobResult = "cancelled"
)

// JobOptions carries per-job request flags.
type JobOptions struct {
	Submit   bool `json:"submit"`
	Headless bool `json:"headless"`
}

// Job is one automation run. Owned by a single worker from start to terminal.
type Job struct {
	ID        string     `json:"id" badgerhold:"key"`
	SiteID    string     `json:"site_id,omitempty"`
	URL       string     `json:"url"`
	ProfileID string     `json:"profile_id"`
	Options   JobOptions `json:"options"`

	Phase        JobPhase   `json:"phase"`
	Progress     int        `json:"progress"` // 0..100, monotonic
	Result       JobResult  `json:"result,omitempty"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	FieldsFilled int        `json:"fields_filled"`
	PlanSource   PlanSource `json:"plan_source,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a terminal state.
func (j *Job) Terminal() bool {
	return j.Phase.Terminal()
}

// ProgressEventType enumerates streamed event types.
type ProgressEventType string

const (
	EventStarted         ProgressEventType = "started"
	EventProgress        ProgressEventType = "progress"
	EventFieldFilled     ProgressEventType = "field_filled"
	EventCaptchaDetected ProgressEventType = "captcha_detected"
	EventCompleted       ProgressEventType = "completed"
	EventError           ProgressEventType = "error"
	EventCoalesced       ProgressEventType = "coalesced"
)

// ProgressEvent is one message on a job's progress stream.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	JobID     string            `json:"job_id"`
	Phase     JobPhase          `json:"phase"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message,omitempty"`
	Count     int               `json:"count,omitempty"` // fields filled so far
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// Coalescable reports whether the event may be replaced by a later one when
// the progress channel is full. Phase transitions and field fills never drop.
func (e *ProgressEvent) Coalescable() bool {
	return e.Type == EventProgress || e.Type == EventCoalesced
}
