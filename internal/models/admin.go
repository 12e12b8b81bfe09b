package models

import "time"

// ClientInfo is the admin-side record of a node, keyed by its machine id.
type ClientInfo struct {
	MachineID  string    `json:"machine_id" badgerhold:"key"`
	Hostname   string    `json:"hostname"`
	LocalIP    string    `json:"local_ip"`
	Platform   string    `json:"platform"`
	PlatformVersion string `json:"platform_version,omitempty"`
	Version    string    `json:"version"`
	LicenseKey string    `json:"license_key,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
	IsOnline   bool      `json:"is_online" badgerhold:"-"` // computed at read time
}

// Heartbeat is the node-to-admin keepalive payload.
type Heartbeat struct {
	MachineID       string    `json:"machine_id"`
	Hostname        string    `json:"hostname"`
	LocalIP         string    `json:"local_ip"`
	Platform        string    `json:"platform"`
	PlatformVersion string    `json:"platform_version,omitempty"`
	Version         string    `json:"version"`
	LicenseKey      string    `json:"license_key,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// HeartbeatAck is the admin's reply, carrying license validity and any
// commands queued for the node. Returned commands are marked delivered.
type HeartbeatAck struct {
	Status       string     `json:"status"`
	LicenseValid bool       `json:"license_valid"`
	Commands     []*Command `json:"commands,omitempty"`
}

// CommandKind enumerates the command kinds the core must support.
type CommandKind string

const (
	CmdPing             CommandKind = "ping"
	CmdGetStatus        CommandKind = "get_status"
	CmdScreenshot       CommandKind = "screenshot"
	CmdRestart          CommandKind = "restart"
	CmdUpdateConfig     CommandKind = "update_config"
	CmdExecuteScript    CommandKind = "execute_script"
	CmdListDirectory    CommandKind = "list_directory"
	CmdReadFile         CommandKind = "read_file"
	CmdWriteFile        CommandKind = "write_file"
	CmdDeleteFile       CommandKind = "delete_file"
	CmdCreateFolder     CommandKind = "create_folder"
	CmdListProcesses    CommandKind = "list_processes"
	CmdKillProcess      CommandKind = "kill_process"
	CmdCameraList       CommandKind = "camera_list"
	CmdCameraStart      CommandKind = "camera_start"
	CmdCameraSnapshot   CommandKind = "camera_snapshot"
	CmdCameraStop       CommandKind = "camera_stop"
	CmdNetworkGetConfig CommandKind = "network_get_config"
	CmdNetworkSetConfig CommandKind = "network_set_config"
	CmdStorageGetInfo   CommandKind = "storage_get_info"
)

// Command is an admin-to-client instruction. Executed at most once per client.
type Command struct {
	ID        string                 `json:"id" badgerhold:"key"`
	MachineID string                 `json:"machine_id"`
	Kind      CommandKind            `json:"kind"`
	Params    map[string]interface{} `json:"params,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Delivered bool                   `json:"delivered"`
}

// CommandResult is the client's report for one executed command.
type CommandResult struct {
	CommandID  string                 `json:"command_id" badgerhold:"key"`
	MachineID  string                 `json:"machine_id"`
	Kind       CommandKind            `json:"kind"`
	Status     string                 `json:"status"` // "success" or "error"
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}
