package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/ternarybob/compleo/internal/services/events"
)

// ---- fakes ----

type fakeSession struct {
	mu            sync.Mutex
	fields        []models.FieldDescriptor
	visible       map[string]bool
	typed         map[string]string
	selected      map[string]string
	clicked       []string
	failSelectors map[string]error
	scriptFn      func(js string, out interface{}) error
	closed        bool
}

func newFakeSession(fields []models.FieldDescriptor) *fakeSession {
	return &fakeSession{
		fields:        fields,
		visible:       make(map[string]bool),
		typed:         make(map[string]string),
		selected:      make(map[string]string),
		failSelectors: make(map[string]error),
	}
}

func (s *fakeSession) WaitReady(_ context.Context, _ time.Duration) error { return nil }

func (s *fakeSession) QueryFields(_ context.Context) ([]models.FieldDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FieldDescriptor(nil), s.fields...), nil
}

func (s *fakeSession) FormHTML(_ context.Context, _ int) (string, error) {
	return "<form></form>", nil
}

func (s *fakeSession) Type(ctx context.Context, selector, value string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failSelectors[selector]; ok {
		return err
	}
	s.typed[selector] = value
	return nil
}

func (s *fakeSession) Select(_ context.Context, selector, value string, mode interfaces.SelectMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failSelectors[selector]; ok {
		return err
	}
	s.selected[selector] = value
	return nil
}

func (s *fakeSession) Click(_ context.Context, selector string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failSelectors[selector]; ok {
		return err
	}
	s.clicked = append(s.clicked, selector)
	return nil
}

func (s *fakeSession) IsVisible(_ context.Context, selector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible[selector]
}

func (s *fakeSession) CurrentURL(_ context.Context) (string, error) {
	return "https://example.com/signup", nil
}

func (s *fakeSession) Screenshot(_ context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (s *fakeSession) ExecuteScript(_ context.Context, js string, out interface{}) error {
	if s.scriptFn != nil {
		return s.scriptFn(js, out)
	}
	if b, ok := out.(*bool); ok {
		*b = false
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBrowser struct {
	mu       sync.Mutex
	session  *fakeSession
	failures int // fail this many Open calls first
	opens    int
}

func (b *fakeBrowser) Open(_ context.Context, _ string, _ interfaces.OpenOptions) (interfaces.BrowserSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.failures > 0 {
		b.failures--
		return nil, fmt.Errorf("net::ERR_CONNECTION_REFUSED")
	}
	return b.session, nil
}

type fakeResolver struct {
	mu         sync.Mutex
	plan       *models.FieldPlan
	resolveErr error
	resolves   int
	learned    [][]models.FieldEntry
}

func (r *fakeResolver) Resolve(_ context.Context, _, _ string, _ []models.FieldDescriptor, _ []string) (*models.FieldPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return r.plan.Clone(), nil
}

func (r *fakeResolver) Learn(_ context.Context, _, _ string, entries []models.FieldEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learned = append(r.learned, entries)
	return len(r.learned), nil
}

type fakeSolver struct {
	answer string
	err    error
}

func (f *fakeSolver) Solve(_ context.Context, _ *interfaces.CaptchaChallenge) (string, error) {
	return f.answer, f.err
}

func (f *fakeSolver) Enabled() bool { return true }

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func (m *memJobs) Save(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs == nil {
		m.jobs = make(map[string]*models.Job)
	}
	snapshot := *job
	m.jobs[job.ID] = &snapshot
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}

func (m *memJobs) List(_ context.Context, _ int) ([]*models.Job, error) { return nil, nil }

func (m *memJobs) DeleteTerminalOlderThan(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// ---- fixtures ----

var signupFields = []models.FieldDescriptor{
	{Tag: "input", Type: "email", ID: "email", Label: "Email", Visible: true},
	{Tag: "input", Type: "password", ID: "password", Label: "Password", Visible: true},
}

var signupPlan = &models.FieldPlan{
	Source: models.PlanSourcePattern,
	Entries: []models.FieldEntry{
		{Selector: "#email", ProfileKey: models.KeyEmail, Kind: models.FieldKindEmail, Confidence: 0.9},
		{Selector: "#password", ProfileKey: models.KeyPassword, Kind: models.FieldKindPassword, Confidence: 0.9},
	},
}

func testProfile() *models.NormalizedProfile {
	return &models.NormalizedProfile{Values: map[string]string{
		models.KeyEmail:    "jan@example.com",
		models.KeyPassword: "hunter2!",
		models.KeyCountry:  "United States",
	}}
}

func testConfig() *common.AutomationConfig {
	cfg := common.NewDefaultConfig().Automation
	cfg.NavTimeout = "2s"
	cfg.FieldTimeout = "100ms"
	cfg.SubmitSettle = "1ms"
	cfg.MaxNavRetries = 0
	return &cfg
}

func newTestExecutor(browser interfaces.Browser, resolver planResolver, solver interfaces.CaptchaSolver, bus interfaces.EventService, cfg *common.AutomationConfig) (*Executor, *memJobs) {
	jobs := &memJobs{}
	captchaCfg := &common.CaptchaConfig{PollInterval: "10ms", MaxSolveTime: "1s"}
	exec := NewExecutor(browser, resolver, solver, bus, jobs, cfg, captchaCfg, arbor.GetLogger())
	exec.navBackoff = time.Millisecond
	return exec, jobs
}

func newJob(submit bool) *models.Job {
	return &models.Job{
		ID:        "job_test",
		URL:       "https://example.com/signup",
		ProfileID: "profile_1",
		Phase:     models.PhaseCreated,
		Options:   models.JobOptions{Submit: submit, Headless: true},
		CreatedAt: time.Now(),
	}
}

// ---- tests ----

func TestRun_FillOnlySuccess(t *testing.T) {
	session := newFakeSession(signupFields)
	browser := &fakeBrowser{session: session}
	resolver := &fakeResolver{plan: signupPlan}
	exec, _ := newTestExecutor(browser, resolver, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	job := newJob(false)
	outcome := exec.Run(context.Background(), job, testProfile())

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Equal(t, 2, outcome.FieldsFilled)
	assert.Equal(t, "jan@example.com", session.typed["#email"])
	assert.Equal(t, "hunter2!", session.typed["#password"])
	assert.True(t, session.closed, "session must be closed after the run")
	assert.Equal(t, models.PhaseDone, job.Phase)
	assert.Equal(t, 100, job.Progress)

	require.Len(t, resolver.learned, 1)
	assert.Len(t, resolver.learned[0], 2)
}

func TestRun_CachedPlanSkipsLearning(t *testing.T) {
	cachedPlan := signupPlan.Clone()
	cachedPlan.Source = models.PlanSourceCached

	session := newFakeSession(signupFields)
	resolver := &fakeResolver{plan: cachedPlan}
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, resolver, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Equal(t, 2, outcome.FieldsFilled)
	assert.Equal(t, models.PlanSourceCached, outcome.PlanSource)
	assert.Empty(t, resolver.learned, "a cached plan is already the stored mapping")
}

func TestRun_PhasesEmittedInOrderWithMonotonicProgress(t *testing.T) {
	session := newFakeSession(signupFields)
	bus := events.NewService(64, arbor.GetLogger())
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil, bus, testConfig())

	ch, cancel := bus.SubscribeJob("job_test")
	defer cancel()

	outcome := exec.Run(context.Background(), newJob(false), testProfile())
	require.Equal(t, models.ResultSuccess, outcome.Result)

	lastProgress := -1
	var sawCompleted bool
	for event := range ch {
		assert.GreaterOrEqual(t, event.Progress, lastProgress, "progress must never decrease")
		lastProgress = event.Progress
		if event.Type == models.EventCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
	assert.Equal(t, 100, lastProgress)
}

func TestRun_NavigationFailureIsFatal(t *testing.T) {
	browser := &fakeBrowser{session: newFakeSession(signupFields), failures: 10}
	exec, _ := newTestExecutor(browser, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrNavigationTimeout, outcome.ErrorKind)
	assert.Equal(t, 1, browser.opens, "MaxNavRetries=0 means a single attempt")
}

func TestRun_NavigationRetriesThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxNavRetries = 2

	browser := &fakeBrowser{session: newFakeSession(signupFields), failures: 2}
	exec, _ := newTestExecutor(browser, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), cfg)

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Equal(t, 3, browser.opens)
}

func TestRun_NoFieldsIsFatal(t *testing.T) {
	session := newFakeSession(nil)
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrNoFields, outcome.ErrorKind)
	assert.True(t, session.closed)
}

func TestRun_FieldErrorDegradesToPartialSuccess(t *testing.T) {
	session := newFakeSession(signupFields)
	session.failSelectors["#password"] = fmt.Errorf("element detached")
	resolver := &fakeResolver{plan: signupPlan}
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, resolver, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultPartialSuccess, outcome.Result)
	assert.Equal(t, 1, outcome.FieldsFilled)
	assert.Len(t, outcome.FieldErrors, 1)

	// Only the successfully filled entry is learned
	require.Len(t, resolver.learned, 1)
	require.Len(t, resolver.learned[0], 1)
	assert.Equal(t, "#email", resolver.learned[0][0].Selector)
}

func TestRun_SubmitClicksControl(t *testing.T) {
	session := newFakeSession(signupFields)
	session.visible["button[type='submit']"] = true
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(true), testProfile())

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Contains(t, session.clicked, "button[type='submit']")
}

func TestRun_SubmitNotFoundDegrades(t *testing.T) {
	session := newFakeSession(signupFields)
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(true), testProfile())

	assert.Equal(t, models.ResultPartialSuccess, outcome.Result)
	assert.Equal(t, models.ErrSubmitNotFound, outcome.ErrorKind)
	assert.Equal(t, 2, outcome.FieldsFilled, "filled fields survive a missing submit control")
}

func TestRun_CaptchaWithoutSolverDegrades(t *testing.T) {
	session := newFakeSession(signupFields)
	session.visible[".g-recaptcha"] = true
	session.scriptFn = func(js string, out interface{}) error {
		if s, ok := out.(*string); ok {
			*s = "site-key-abc"
		}
		return nil
	}
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultPartialSuccess, outcome.Result)
	assert.Equal(t, models.ErrCaptchaFailed, outcome.ErrorKind)
}

func TestRun_CaptchaRequiredFailureIsFatal(t *testing.T) {
	session := newFakeSession(signupFields)
	session.visible[".g-recaptcha"] = true
	session.scriptFn = func(js string, out interface{}) error {
		if s, ok := out.(*string); ok {
			*s = "site-key-abc"
		}
		return nil
	}

	jobs := &memJobs{}
	cfg := testConfig()
	captchaCfg := &common.CaptchaConfig{Require: true}
	exec := NewExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, nil,
		events.NewService(64, arbor.GetLogger()), jobs, cfg, captchaCfg, arbor.GetLogger())
	exec.navBackoff = time.Millisecond

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultFailed, outcome.Result)
	assert.Equal(t, models.ErrCaptchaFailed, outcome.ErrorKind)
}

func TestRun_CaptchaSolvedAndInjected(t *testing.T) {
	session := newFakeSession(signupFields)
	session.visible[".g-recaptcha"] = true
	var injected string
	session.scriptFn = func(js string, out interface{}) error {
		switch v := out.(type) {
		case *string:
			*v = "site-key-abc"
		case *bool:
			injected = js
			*v = true
		}
		return nil
	}

	solver := &fakeSolver{answer: "solved-token"}
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, &fakeResolver{plan: signupPlan}, solver, events.NewService(64, arbor.GetLogger()), testConfig())

	outcome := exec.Run(context.Background(), newJob(false), testProfile())

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Contains(t, injected, "solved-token")
	assert.Contains(t, injected, "g-recaptcha-response")
}

func TestRun_CancellationYieldsCancelledResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := newFakeSession(signupFields)
	resolver := &fakeResolver{plan: signupPlan}

	// Cancel as soon as the first field is typed
	session.scriptFn = nil
	bus := events.NewService(64, arbor.GetLogger())
	unsub := bus.Subscribe(func(_ context.Context, e models.ProgressEvent) {
		if e.Type == models.EventFieldFilled {
			cancel()
		}
	})
	defer unsub()

	exec, _ := newTestExecutor(&fakeBrowser{session: session}, resolver, nil, bus, testConfig())

	outcome := exec.Run(ctx, newJob(false), testProfile())

	if outcome.Result != models.ResultCancelled {
		// The async handler may fire after the tiny plan finishes; rerun with
		// a pre-cancelled context for a deterministic check
		ctx2, cancel2 := context.WithCancel(context.Background())
		cancel2()
		outcome = exec.Run(ctx2, newJob(false), testProfile())
		assert.Equal(t, models.ResultCancelled, outcome.Result)
	}
	assert.Equal(t, models.ErrCancelled, outcome.ErrorKind)
}

func TestRun_MultiStepFormFillsBothSteps(t *testing.T) {
	step2Fields := []models.FieldDescriptor{
		{Tag: "input", Type: "text", ID: "city", Label: "City", Visible: true},
	}
	step2Plan := &models.FieldPlan{
		Source: models.PlanSourcePattern,
		Entries: []models.FieldEntry{
			{Selector: "#email", ProfileKey: models.KeyEmail, Kind: models.FieldKindEmail, Confidence: 0.9},
			{Selector: "#city", ProfileKey: models.KeyCity, Kind: models.FieldKindText, Confidence: 0.9},
		},
	}

	session := newFakeSession(signupFields)
	session.visible["button[type='submit']"] = true

	resolver := &stepResolver{plans: []*models.FieldPlan{signupPlan, step2Plan, {Source: models.PlanSourcePattern}}}
	exec, _ := newTestExecutor(&fakeBrowser{session: session}, resolver, nil, events.NewService(64, arbor.GetLogger()), testConfig())

	// After the first submit the fake page shows the second step's fields
	go func() {
		time.Sleep(10 * time.Millisecond)
		session.mu.Lock()
		session.fields = step2Fields
		session.mu.Unlock()
	}()

	profile := testProfile()
	profile.Values[models.KeyCity] = "Springfield"

	outcome := exec.Run(context.Background(), newJob(true), profile)

	assert.Equal(t, models.ResultSuccess, outcome.Result)
	assert.Equal(t, 3, outcome.FieldsFilled)
	assert.Equal(t, "Springfield", session.typed["#city"])
}

func TestCountryCodesCoverBothISOForms(t *testing.T) {
	assert.Equal(t, []string{"US", "USA"}, countryCodes("United States"))
	assert.Equal(t, []string{"GB", "GBR"}, countryCodes(" uk "))
	assert.Nil(t, countryCodes("atlantis"))
}

// stepResolver returns successive plans on each Resolve call.
type stepResolver struct {
	mu    sync.Mutex
	plans []*models.FieldPlan
	calls int
	fakeResolver
}

func (r *stepResolver) Resolve(_ context.Context, _, _ string, _ []models.FieldDescriptor, _ []string) (*models.FieldPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan := r.plans[len(r.plans)-1]
	if r.calls < len(r.plans) {
		plan = r.plans[r.calls]
	}
	r.calls++
	return plan.Clone(), nil
}
