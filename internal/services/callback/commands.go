package callback

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// execute runs one admin command and builds its result. Unknown or
// unsupported kinds produce an error result rather than a dropped command, so
// the admin always sees a report.
func (s *Service) execute(ctx context.Context, cmd *models.Command) *models.CommandResult {
	result := &models.CommandResult{
		CommandID:  cmd.ID,
		MachineID:  s.machineID,
		Kind:       cmd.Kind,
		Status:     "success",
		ReportedAt: time.Now().UTC(),
	}

	s.logger.Info().
		Str("command_id", cmd.ID).
		Str("kind", string(cmd.Kind)).
		Msg("Executing admin command")

	data, err := s.dispatch(ctx, cmd)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		return result
	}
	result.Data = data
	return result
}

func (s *Service) dispatch(ctx context.Context, cmd *models.Command) (map[string]interface{}, error) {
	switch cmd.Kind {
	case models.CmdPing:
		return map[string]interface{}{"pong": true, "time": time.Now().UTC().Format(time.RFC3339)}, nil

	case models.CmdGetStatus:
		status := s.scheduler.Status()
		return map[string]interface{}{
			"running":        status.Running,
			"queued":         status.Queued,
			"active":         status.Active,
			"max_concurrent": status.MaxConcurrent,
			"completed":      status.Completed,
			"failed":         status.Failed,
			"degraded":       status.Degraded,
		}, nil

	case models.CmdScreenshot:
		return s.screenshot(ctx, cmd)

	case models.CmdExecuteScript:
		return s.executeScript(ctx, cmd)

	case models.CmdRestart:
		return s.restart()

	case models.CmdUpdateConfig:
		return s.updateConfig(cmd)

	case models.CmdListProcesses:
		return listProcesses()

	case models.CmdKillProcess:
		return killProcess(cmd)

	case models.CmdListDirectory:
		return s.listDirectory(cmd)

	case models.CmdReadFile:
		return s.readFile(cmd)

	case models.CmdWriteFile:
		return s.writeFile(cmd)

	case models.CmdDeleteFile:
		return s.deleteFile(cmd)

	case models.CmdCreateFolder:
		return s.createFolder(cmd)

	case models.CmdStorageGetInfo:
		return s.storageInfo(cmd)

	case models.CmdNetworkGetConfig:
		return networkConfig()

	case models.CmdNetworkSetConfig:
		return nil, fmt.Errorf("network reconfiguration is not supported on this node")

	case models.CmdCameraList, models.CmdCameraStart, models.CmdCameraSnapshot, models.CmdCameraStop:
		return nil, fmt.Errorf("no camera capability on this node")

	default:
		return nil, fmt.Errorf("unsupported command: %s", cmd.Kind)
	}
}

// screenshot opens a headless session on the requested URL and returns the
// captured page as base64 PNG.
func (s *Service) screenshot(ctx context.Context, cmd *models.Command) (map[string]interface{}, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("no browser capability available")
	}
	url, err := stringParam(cmd, "url")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	session, err := s.browser.Open(ctx, url, interfaces.OpenOptions{Headless: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer session.Close()

	if err := session.WaitReady(ctx, 15*time.Second); err != nil {
		return nil, fmt.Errorf("page never became ready: %w", err)
	}
	image, err := session.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return map[string]interface{}{
		"url":          url,
		"image_base64": base64.StdEncoding.EncodeToString(image),
	}, nil
}

// executeScript runs a JS snippet on the requested URL in a throwaway
// headless session and returns the script's JSON result.
func (s *Service) executeScript(ctx context.Context, cmd *models.Command) (map[string]interface{}, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("no browser capability available")
	}
	url, err := stringParam(cmd, "url")
	if err != nil {
		return nil, err
	}
	script, err := stringParam(cmd, "script")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	session, err := s.browser.Open(ctx, url, interfaces.OpenOptions{Headless: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer session.Close()

	var out interface{}
	if err := session.ExecuteScript(ctx, script, &out); err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}
	return map[string]interface{}{"url": url, "result": out}, nil
}

// restart acknowledges first, then fires the hook after a grace period so the
// result reaches the admin before shutdown begins.
func (s *Service) restart() (map[string]interface{}, error) {
	if s.restartHook == nil {
		return nil, fmt.Errorf("restart is not supported on this node")
	}
	time.AfterFunc(2*time.Second, s.restartHook)
	return map[string]interface{}{"restarting": true}, nil
}

// updateConfig overwrites the node config file. Changes apply on restart.
func (s *Service) updateConfig(cmd *models.Command) (map[string]interface{}, error) {
	content, err := stringParam(cmd, "content")
	if err != nil {
		return nil, err
	}
	path := s.configPath
	if p, err := stringParam(cmd, "path"); err == nil {
		path = p
	}
	if path == "" {
		return nil, fmt.Errorf("no config path configured")
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write config: %w", err)
	}
	return map[string]interface{}{"path": path, "applies": "on_restart"}, nil
}

// listProcesses walks /proc for pid and command name. Non-Linux hosts report
// an error.
func listProcesses() (map[string]interface{}, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("process listing is not supported on %s", runtime.GOOS)
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	procs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			continue
		}
		procs = append(procs, map[string]interface{}{
			"pid":  pid,
			"name": strings.TrimSpace(string(comm)),
		})
	}
	return map[string]interface{}{"processes": procs, "count": len(procs)}, nil
}

func killProcess(cmd *models.Command) (map[string]interface{}, error) {
	raw, ok := cmd.Params["pid"]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", "pid")
	}
	pid, ok := raw.(float64)
	if !ok || pid <= 0 {
		return nil, fmt.Errorf("parameter %q must be a positive number", "pid")
	}

	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d not found: %w", int(pid), err)
	}
	if err := proc.Kill(); err != nil {
		return nil, fmt.Errorf("failed to kill process %d: %w", int(pid), err)
	}
	return map[string]interface{}{"pid": int(pid), "killed": true}, nil
}

func stringParam(cmd *models.Command, key string) (string, error) {
	raw, ok := cmd.Params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return value, nil
}

func (s *Service) listDirectory(cmd *models.Command) (map[string]interface{}, error) {
	path, err := stringParam(cmd, "path")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		item := map[string]interface{}{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
			item["modified"] = info.ModTime().UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return map[string]interface{}{"path": path, "entries": items}, nil
}

func (s *Service) readFile(cmd *models.Command) (map[string]interface{}, error) {
	path, err := stringParam(cmd, "path")
	if err != nil {
		return nil, err
	}

	const maxReadBytes = 1 << 20
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("file exceeds %d byte read limit", maxReadBytes)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return map[string]interface{}{"path": path, "content": string(content), "size": info.Size()}, nil
}

func (s *Service) writeFile(cmd *models.Command) (map[string]interface{}, error) {
	path, err := stringParam(cmd, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringParam(cmd, "content")
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return map[string]interface{}{"path": path, "bytes_written": len(content)}, nil
}

func (s *Service) deleteFile(cmd *models.Command) (map[string]interface{}, error) {
	path, err := stringParam(cmd, "path")
	if err != nil {
		return nil, err
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("failed to delete: %w", err)
	}
	return map[string]interface{}{"path": path, "deleted": true}, nil
}

func (s *Service) createFolder(cmd *models.Command) (map[string]interface{}, error) {
	path, err := stringParam(cmd, "path")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return map[string]interface{}{"path": path, "created": true}, nil
}

// storageInfo reports the on-disk size of a directory tree (the data dir by
// default).
func (s *Service) storageInfo(cmd *models.Command) (map[string]interface{}, error) {
	path := "./data"
	if p, err := stringParam(cmd, "path"); err == nil {
		path = p
	}

	var totalBytes int64
	var fileCount int
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			totalBytes += info.Size()
			fileCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}

	return map[string]interface{}{
		"path":        path,
		"total_bytes": totalBytes,
		"file_count":  fileCount,
		"platform":    runtime.GOOS,
	}, nil
}

// networkConfig lists the machine's non-loopback interfaces.
func networkConfig() (map[string]interface{}, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	out := make([]map[string]interface{}, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		entry := map[string]interface{}{
			"name": iface.Name,
			"mac":  iface.HardwareAddr.String(),
			"up":   iface.Flags&net.FlagUp != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			list := make([]string, 0, len(addrs))
			for _, addr := range addrs {
				list = append(list, addr.String())
			}
			entry["addresses"] = list
		}
		out = append(out, entry)
	}
	return map[string]interface{}{"interfaces": out}, nil
}
