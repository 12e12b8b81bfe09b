package captcha

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
)

type fakeVision struct {
	answer string
	err    error
	calls  int
}

func (f *fakeVision) SolveImageText(_ context.Context, _ []byte) (string, error) {
	f.calls++
	return f.answer, f.err
}

func newTestSolver(t *testing.T, endpoint string, vision visionFallback) *Solver {
	t.Helper()
	config := &common.CaptchaConfig{
		ProviderKey:  "test-key",
		Endpoint:     endpoint,
		PollInterval: "10ms",
		MaxSolveTime: "2s",
	}
	return NewSolver(config, vision, arbor.GetLogger())
}

func TestSolve_RecaptchaV2(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/in.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "userrecaptcha", r.Form.Get("method"))
			assert.Equal(t, "site-key-123", r.Form.Get("googlekey"))
			assert.Equal(t, "https://example.com/signup", r.Form.Get("pageurl"))
			fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
		case "/res.php":
			assert.Equal(t, "task-42", r.URL.Query().Get("id"))
			if atomic.AddInt32(&polls, 1) < 3 {
				fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
				return
			}
			fmt.Fprint(w, `{"status":1,"request":"solved-token"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	solver := newTestSolver(t, server.URL, nil)
	token, err := solver.Solve(context.Background(), &interfaces.CaptchaChallenge{
		Type:    interfaces.CaptchaRecaptchaV2,
		SiteKey: "site-key-123",
		PageURL: "https://example.com/signup",
	})
	require.NoError(t, err)
	assert.Equal(t, "solved-token", token)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&polls), int32(3))
}

func TestSolve_ProviderRejectsSubmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":0,"request":"ERROR_WRONG_USER_KEY"}`)
	}))
	defer server.Close()

	solver := newTestSolver(t, server.URL, nil)
	_, err := solver.Solve(context.Background(), &interfaces.CaptchaChallenge{
		Type:    interfaces.CaptchaHCaptcha,
		SiteKey: "k",
		PageURL: "https://example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR_WRONG_USER_KEY")
}

func TestSolve_TimesOutWhileNotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			fmt.Fprint(w, `{"status":1,"request":"task-1"}`)
			return
		}
		fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
	}))
	defer server.Close()

	solver := newTestSolver(t, server.URL, nil)
	solver.maxTime = 100 * time.Millisecond

	_, err := solver.Solve(context.Background(), &interfaces.CaptchaChallenge{
		Type:    interfaces.CaptchaRecaptchaV2,
		SiteKey: "k",
		PageURL: "https://example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestSolve_TextPrefersVision(t *testing.T) {
	vision := &fakeVision{answer: "XK42P"}
	solver := newTestSolver(t, "http://127.0.0.1:1", vision)

	answer, err := solver.Solve(context.Background(), &interfaces.CaptchaChallenge{
		Type:  interfaces.CaptchaText,
		Image: []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "XK42P", answer)
	assert.Equal(t, 1, vision.calls)
}

func TestSolve_TextFallsBackToProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in.php" {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "base64", r.Form.Get("method"))
			assert.NotEmpty(t, r.Form.Get("body"))
			fmt.Fprint(w, `{"status":1,"request":"task-7"}`)
			return
		}
		fmt.Fprint(w, `{"status":1,"request":"R2D2"}`)
	}))
	defer server.Close()

	vision := &fakeVision{err: fmt.Errorf("model unavailable")}
	solver := newTestSolver(t, server.URL, vision)

	answer, err := solver.Solve(context.Background(), &interfaces.CaptchaChallenge{
		Type:  interfaces.CaptchaText,
		Image: []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "R2D2", answer)
}

func TestEnabled(t *testing.T) {
	noKey := NewSolver(&common.CaptchaConfig{}, nil, arbor.GetLogger())
	assert.False(t, noKey.Enabled())

	withKey := NewSolver(&common.CaptchaConfig{ProviderKey: "k"}, nil, arbor.GetLogger())
	assert.True(t, withKey.Enabled())

	withVision := NewSolver(&common.CaptchaConfig{}, &fakeVision{}, arbor.GetLogger())
	assert.True(t, withVision.Enabled())
}
