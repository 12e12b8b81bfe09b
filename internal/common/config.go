package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	AdminServer AdminServerConfig `toml:"admin_server"`
	Callback    CallbackConfig    `toml:"callback"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	AI          AIConfig          `toml:"ai"`
	Captcha     CaptchaConfig     `toml:"captcha"`
	Automation  AutomationConfig  `toml:"automation"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Retention   RetentionConfig   `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// AdminServerConfig configures the central admin HTTP surface.
type AdminServerConfig struct {
	Port        int      `toml:"port"`
	Host        string   `toml:"host"`
	LicenseKeys []string `toml:"license_keys"` // Accepted license keys (empty = accept all)
}

// CallbackConfig configures the node-side admin callback loop.
type CallbackConfig struct {
	AdminURLs           []string `toml:"admin_urls"`            // Admin endpoints to heartbeat to
	HeartbeatInterval   string   `toml:"heartbeat_interval"`    // e.g. "5s"
	LicenseKey          string   `toml:"license_key"`           // License key reported in heartbeats
	RequireValidLicense bool     `toml:"require_valid_license"` // Reject new jobs when license is invalid
	ExecutedSetSize     int      `toml:"executed_set_size"`     // LRU size for at-most-once command tracking
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path (DATA_DIR)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// AIProvider represents the AI provider type
type AIProvider string

const (
	// AIProviderClaude uses Anthropic Claude API
	AIProviderClaude AIProvider = "claude"
	// AIProviderGemini uses Google Gemini API
	AIProviderGemini AIProvider = "gemini"
)

// AIConfig contains field-analyzer provider configuration
type AIConfig struct {
	Provider      AIProvider `toml:"provider"`       // "claude" or "gemini"
	APIKey        string     `toml:"api_key"`        // Provider API key
	Endpoint      string     `toml:"endpoint"`       // Optional base URL override
	Model         string     `toml:"model"`          // Model for field analysis
	Timeout       string     `toml:"timeout"`        // Analysis timeout (default "30s")
	Temperature   float32    `toml:"temperature"`    // Kept low for reproducible field maps
	MinConfidence float64    `toml:"min_confidence"` // Discard entries below this confidence
	MaxHTMLBytes  int        `toml:"max_html_bytes"` // Form HTML byte budget sent to the model
	RateLimit     string     `toml:"rate_limit"`     // Minimum spacing between analyzer calls
	MaxTokens     int        `toml:"max_tokens"`
}

// CaptchaConfig contains external CAPTCHA solver configuration
type CaptchaConfig struct {
	ProviderKey  string `toml:"provider_key"`  // Solver API key (empty disables solving)
	Endpoint     string `toml:"endpoint"`      // Solver base URL
	PollInterval string `toml:"poll_interval"` // Poll spacing (default "5s")
	MaxSolveTime string `toml:"max_solve_time"` // Hard cap on a solve attempt (default "120s")
	Require      bool   `toml:"require"`       // Fail the job when solving fails
}

// AutomationConfig contains pipeline and scheduler tuning
type AutomationConfig struct {
	MaxConcurrentJobs  int      `toml:"max_concurrent_jobs"`  // Active job slots (default 4)
	NavTimeout         string   `toml:"nav_timeout"`          // Per-attempt navigation timeout (default "30s")
	MaxNavRetries      int      `toml:"max_nav_retries"`      // Navigation retries after first attempt (default 2)
	FieldTimeout       string   `toml:"field_timeout"`        // Per-field fill timeout (default "10s")
	SubmitSettle       string   `toml:"submit_settle"`        // Post-submit settle delay (default "2s")
	MaxFormSteps       int      `toml:"max_form_steps"`       // Multi-step form bound (default 10)
	MaxCacheAge        string   `toml:"max_cache_age"`        // Domain mapping freshness window ("" = unbounded)
	PartialSuccessAs   string   `toml:"partial_success_as"`   // Site status for partial success: "success" or "failed"
	ProgressBufferSize int      `toml:"progress_buffer_size"` // Bounded per-job progress channel (default 64)
	UserAgent          string   `toml:"user_agent"`
	DismissSelectors   []string `toml:"dismiss_selectors"` // Popup/cookie-banner dismiss candidates
	SubmitPhrases      []string `toml:"submit_phrases"`    // Submit control text phrases
}

// WebSocketConfig contains configuration for WebSocket progress streaming
type WebSocketConfig struct {
	MinLevel          string            `toml:"min_level"`          // Minimum log level to broadcast
	AllowedEvents     []string          `toml:"allowed_events"`     // Whitelist of event types (empty = allow all)
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // Per-event-type rate limits, e.g. {"progress": "250ms"}
}

// RetentionConfig controls pruning of terminal jobs and fill history
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule for the pruning run
	MaxAge   string `toml:"max_age"`  // Entries older than this are removed
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 5511,
			Host: "localhost",
		},
		AdminServer: AdminServerConfig{
			Port: 5512,
			Host: "localhost",
		},
		Callback: CallbackConfig{
			AdminURLs:           []string{},
			HeartbeatInterval:   "5s",
			RequireValidLicense: false,
			ExecutedSetSize:     1024,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		AI: AIConfig{
			Provider:      AIProviderClaude,
			Model:         "claude-haiku-3-5-20241022",
			Timeout:       "30s",
			Temperature:   0.1, // Low temperature for reproducible field maps
			MinConfidence: 0.5,
			MaxHTMLBytes:  5000,
			RateLimit:     "1s",
			MaxTokens:     4096,
		},
		Captcha: CaptchaConfig{
			Endpoint:     "https://api.2captcha.com",
			PollInterval: "5s",
			MaxSolveTime: "120s",
			Require:      false,
		},
		Automation: AutomationConfig{
			MaxConcurrentJobs:  4,
			NavTimeout:         "30s",
			MaxNavRetries:      2,
			FieldTimeout:       "10s",
			SubmitSettle:       "2s",
			MaxFormSteps:       10,
			MaxCacheAge:        "", // Unbounded - cached plans never expire by default
			PartialSuccessAs:   "failed",
			ProgressBufferSize: 64,
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DismissSelectors: []string{
				"button[aria-label='Close']",
				"button[aria-label='Dismiss']",
				".cookie-banner button",
				"#onetrust-accept-btn-handler",
				".cc-dismiss",
				".modal-close",
				"button.close",
				"[data-dismiss='modal']",
			},
			SubmitPhrases: []string{
				"submit", "sign up", "signup", "register", "create account",
				"continue", "next", "join", "get started",
			},
		},
		WebSocket: WebSocketConfig{
			MinLevel:      "info",
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"progress": "250ms",
			},
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 0 3 * * *", // Daily at 03:00
			MaxAge:   "720h",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COMPLEO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COMPLEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COMPLEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("COMPLEO_ADMIN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.AdminServer.Port = p
		}
	}

	// Admin callback configuration
	if urls := os.Getenv("ADMIN_URLS"); urls != "" {
		config.Callback.AdminURLs = splitAndTrim(urls)
	} else if u := os.Getenv("ADMIN_URL"); u != "" {
		config.Callback.AdminURLs = []string{u}
	}
	if interval := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); interval != "" {
		if secs, err := strconv.Atoi(interval); err == nil && secs > 0 {
			config.Callback.HeartbeatInterval = (time.Duration(secs) * time.Second).String()
		}
	}
	if key := os.Getenv("LICENSE_KEY"); key != "" {
		config.Callback.LicenseKey = key
	}
	if req := os.Getenv("REQUIRE_VALID_LICENSE"); req != "" {
		config.Callback.RequireValidLicense = req == "true" || req == "1"
	}

	// Scheduler configuration
	if maxJobs := os.Getenv("MAX_CONCURRENT_JOBS"); maxJobs != "" {
		if n, err := strconv.Atoi(maxJobs); err == nil && n > 0 {
			config.Automation.MaxConcurrentJobs = n
		}
	}

	// AI configuration
	if endpoint := os.Getenv("AI_ENDPOINT"); endpoint != "" {
		config.AI.Endpoint = endpoint
	}
	if model := os.Getenv("AI_MODEL"); model != "" {
		config.AI.Model = model
	}
	if timeout := os.Getenv("AI_TIMEOUT_SECONDS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			config.AI.Timeout = (time.Duration(secs) * time.Second).String()
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.AI.APIKey == "" {
		config.AI.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.AI.Provider == AIProviderGemini && config.AI.APIKey == "" {
		config.AI.APIKey = key
	}

	// CAPTCHA configuration
	if key := os.Getenv("CAPTCHA_PROVIDER_KEY"); key != "" {
		config.Captcha.ProviderKey = key
	}
	if timeout := os.Getenv("CAPTCHA_TIMEOUT_SECONDS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			config.Captcha.MaxSolveTime = (time.Duration(secs) * time.Second).String()
		}
	}

	// Storage configuration
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		config.Storage.Badger.Path = dir
	}

	// Logging configuration
	if level := os.Getenv("COMPLEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// HeartbeatIntervalDuration parses the configured heartbeat interval with a 5s fallback.
func (c *CallbackConfig) HeartbeatIntervalDuration() time.Duration {
	return parseDurationOr(c.HeartbeatInterval, 5*time.Second)
}

// TimeoutDuration parses the configured AI timeout with a 30s fallback.
func (c *AIConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// PollIntervalDuration parses the solver poll interval with a 5s fallback.
func (c *CaptchaConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 5*time.Second)
}

// MaxSolveTimeDuration parses the solve-time cap with a 120s fallback.
func (c *CaptchaConfig) MaxSolveTimeDuration() time.Duration {
	return parseDurationOr(c.MaxSolveTime, 120*time.Second)
}

// NavTimeoutDuration parses the navigation timeout with a 30s fallback.
func (c *AutomationConfig) NavTimeoutDuration() time.Duration {
	return parseDurationOr(c.NavTimeout, 30*time.Second)
}

// FieldTimeoutDuration parses the per-field timeout with a 10s fallback.
func (c *AutomationConfig) FieldTimeoutDuration() time.Duration {
	return parseDurationOr(c.FieldTimeout, 10*time.Second)
}

// SubmitSettleDuration parses the post-submit settle delay with a 2s fallback.
func (c *AutomationConfig) SubmitSettleDuration() time.Duration {
	return parseDurationOr(c.SubmitSettle, 2*time.Second)
}

// MaxCacheAgeDuration parses the mapping freshness window. Zero means unbounded.
func (c *AutomationConfig) MaxCacheAgeDuration() time.Duration {
	if c.MaxCacheAge == "" {
		return 0
	}
	return parseDurationOr(c.MaxCacheAge, 0)
}

// MaxAgeDuration parses the retention window with a 30-day fallback.
func (c *RetentionConfig) MaxAgeDuration() time.Duration {
	return parseDurationOr(c.MaxAge, 720*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
