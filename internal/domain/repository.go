package domain

import "time"

type ServerRepository interface {
	SaveServer(srv *ServerConfig) error
	UpdateServer(id string, patch ServerPatch) error
	UpdateServerCore(id, coreFile, coreType string) error
	ListServers() ([]ServerConfig, error)
	GetServerByID(id string) (*ServerConfig, error)
	DeleteServer(id string) error
}

type TaskRepository interface {
	SaveTask(task *ScheduledTask) error
	UpdateTask(task *ScheduledTask) error
	RecordTaskRun(id string, at time.Time, runErr string) error
	ListTasks() ([]ScheduledTask, error)
	DeleteTask(id string) error
}

type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key string, value string) error
	GetPortRange() (int, int, error)
	SetPortRange(start int, end int) error
}

// QuickCommandRepository saves quick commands keyed by name. Saving an
// existing name replaces it.
type QuickCommandRepository interface {
	ListQuickCommands() ([]QuickCommand, error)
	SaveQuickCommand(qc QuickCommand) error
	DeleteQuickCommand(name string) error
}

type JavaPathRepository interface {
	ListJavaPaths() ([]JavaInstall, error)
	SaveJavaPath(install JavaInstall) error
	DeleteJavaPath(path string) error
}

type Repository interface {
	ServerRepository
	TaskRepository
	SettingRepository
	QuickCommandRepository
	JavaPathRepository
}
