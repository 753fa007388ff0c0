package domain

import (
	"path/filepath"
	"time"
)

const (
	DefaultCoreFile = "server.jar"
	DefaultJavaPath = "java"
	DefaultJavaArgs = "-Xmx1024M -Xms1024M"
	DefaultCoreType = "vanilla"
	DefaultPort     = 25565
)

// ServerConfig is the launch configuration of one server instance.
type ServerConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	CoreFile  string    `json:"coreFile"`
	JavaPath  string    `json:"javaPath"`
	JavaArgs  string    `json:"javaArgs"`
	Port      int       `json:"port"`
	CoreType  string    `json:"coreType"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c ServerConfig) CorePath() string {
	return filepath.Join(c.Dir, c.CoreFile)
}

func (c ServerConfig) LogPath() string {
	return filepath.Join(c.Dir, "logs", "latest.log")
}

func (c ServerConfig) BackupDir() string {
	return filepath.Join(c.Dir, "backups")
}

// ServerPatch carries the editable settings; nil fields are left untouched.
type ServerPatch struct {
	Name     *string
	JavaPath *string
	JavaArgs *string
	Port     *int
}

func (p ServerPatch) Empty() bool {
	return p.Name == nil && p.JavaPath == nil && p.JavaArgs == nil && p.Port == nil
}

type ServerState string

const (
	StateStopped ServerState = "STOPPED"
	StateRunning ServerState = "RUNNING"
)

type ServerStatus struct {
	State      ServerState `json:"state"`
	PID        int         `json:"pid,omitempty"`
	CPUPercent float64     `json:"cpuPercent"`
	MemoryMB   float64     `json:"memoryMb"`
	StartedAt  time.Time   `json:"startedAt,omitempty"`
}

func (s ServerStatus) Running() bool {
	return s.State == StateRunning
}

type CommandEntry struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

type BackupRecord struct {
	Name      string    `json:"name"`
	SizeMB    float64   `json:"sizeMb"`
	Timestamp time.Time `json:"timestamp"`
}
