package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/ternarybob/compleo/internal/services/scheduler"
)

// schedulerControl is the scheduler surface the callback loop needs.
type schedulerControl interface {
	Status() scheduler.Status
	SetDegraded(degraded bool)
}

// Service runs the node-side admin callback loop: periodic heartbeats to each
// configured admin endpoint, command execution with at-most-once semantics,
// and license-degraded propagation to the scheduler.
type Service struct {
	config    *common.CallbackConfig
	scheduler schedulerControl
	client    *http.Client
	logger    arbor.ILogger

	machineID string
	hostname  string
	localIP   string

	browser     interfaces.Browser
	restartHook func()
	configPath  string

	executed *executedSet
	commands chan commandTask

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// commandTask pairs a command with the admin endpoint that issued it, so the
// result goes back to the right place.
type commandTask struct {
	adminURL string
	cmd      *models.Command
}

// NewService creates the callback service. Machine identity is computed once
// at construction.
func NewService(config *common.CallbackConfig, sched schedulerControl, logger arbor.ILogger) *Service {
	hostname, _ := os.Hostname()

	size := config.ExecutedSetSize
	if size <= 0 {
		size = 1024
	}

	return &Service{
		config:    config,
		scheduler: sched,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger,
		machineID: common.MachineID(),
		hostname:  hostname,
		localIP:   common.LocalIP(),
		executed:  newExecutedSet(size),
	}
}

// MachineID returns the stable machine identifier reported in heartbeats.
func (s *Service) MachineID() string {
	return s.machineID
}

// SetBrowser provides the browser capability used by the screenshot and
// execute_script commands. Without it those commands report an error.
func (s *Service) SetBrowser(browser interfaces.Browser) {
	s.browser = browser
}

// SetRestartHook installs the callback invoked by the restart command.
func (s *Service) SetRestartHook(hook func()) {
	s.restartHook = hook
}

// SetConfigPath records where update_config writes when no path is given.
func (s *Service) SetConfigPath(path string) {
	s.configPath = path
}

// Start launches one heartbeat loop per configured admin URL. With no URLs
// configured the service is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("callback service already started")
	}
	if len(s.config.AdminURLs) == 0 {
		s.logger.Info().Msg("No admin URLs configured, callback loop disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.running = true
	s.commands = make(chan commandTask, 32)

	s.wg.Add(1)
	go s.commandWorker(ctx)

	for _, url := range s.config.AdminURLs {
		s.wg.Add(1)
		go s.heartbeatLoop(ctx, strings.TrimSuffix(url, "/"))
	}

	s.logger.Info().
		Str("machine_id", s.machineID).
		Int("admin_urls", len(s.config.AdminURLs)).
		Str("interval", s.config.HeartbeatInterval).
		Msg("Admin callback loop started")
	return nil
}

// Stop halts all heartbeat loops.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Admin callback loop stopped")
	return nil
}

// heartbeatLoop beats against one admin endpoint. Consecutive failures back
// off exponentially with jitter, capped at 10x the base interval; any success
// resets the delay.
func (s *Service) heartbeatLoop(ctx context.Context, adminURL string) {
	defer s.wg.Done()

	base := s.config.HeartbeatIntervalDuration()
	delay := base

	for {
		ack, err := s.beat(ctx, adminURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("admin_url", adminURL).Msg("Heartbeat failed")
			delay = nextBackoff(delay, base)
		} else {
			delay = base
			s.handleAck(ctx, adminURL, ack)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func nextBackoff(current, base time.Duration) time.Duration {
	next := current * 2
	if limit := 10 * base; next > limit {
		next = limit
	}
	// Up to 20% jitter so multiple nodes never thunder in lockstep
	if fifth := int64(next) / 5; fifth > 0 {
		next -= time.Duration(rand.Int63n(fifth))
	}
	return next
}

// beat posts one heartbeat and decodes the ack.
func (s *Service) beat(ctx context.Context, adminURL string) (*models.HeartbeatAck, error) {
	hb := models.Heartbeat{
		MachineID:       s.machineID,
		Hostname:        s.hostname,
		LocalIP:         s.localIP,
		Platform:        runtime.GOOS,
		PlatformVersion: runtime.GOARCH,
		Version:         common.GetVersion(),
		LicenseKey:      s.config.LicenseKey,
		Timestamp:       time.Now().UTC(),
	}

	body, err := json.Marshal(hb)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, adminURL+"/api/heartbeat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin returned HTTP %d", resp.StatusCode)
	}

	var ack models.HeartbeatAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeat ack: %w", err)
	}
	return &ack, nil
}

// handleAck applies license state and hands piggybacked commands to the
// command worker, so a long-running command never delays the next heartbeat.
func (s *Service) handleAck(ctx context.Context, adminURL string, ack *models.HeartbeatAck) {
	if s.config.RequireValidLicense {
		s.scheduler.SetDegraded(!ack.LicenseValid)
	}

	for _, cmd := range ack.Commands {
		if cmd == nil || cmd.ID == "" {
			continue
		}
		// At-most-once: a command id seen before is acknowledged but not rerun
		if !s.executed.Add(cmd.ID) {
			s.logger.Debug().Str("command_id", cmd.ID).Msg("Duplicate command ignored")
			continue
		}

		task := commandTask{adminURL: adminURL, cmd: cmd}
		select {
		case s.commands <- task:
		default:
			// Queue full; run the overflow directly instead of stalling the loop
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.runCommand(ctx, task)
			}()
		}
	}
}

// commandWorker drains the command queue in arrival order.
func (s *Service) commandWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.commands:
			s.runCommand(ctx, task)
		}
	}
}

func (s *Service) runCommand(ctx context.Context, task commandTask) {
	result := s.execute(ctx, task.cmd)
	if err := s.reportResult(ctx, task.adminURL, result); err != nil {
		s.logger.Warn().
			Err(err).
			Str("command_id", task.cmd.ID).
			Msg("Command result report failed")
	}
}

// reportResult posts a command result back to the admin.
func (s *Service) reportResult(ctx context.Context, adminURL string, result *models.CommandResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, adminURL+"/api/command_result", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin returned HTTP %d", resp.StatusCode)
	}
	return nil
}
