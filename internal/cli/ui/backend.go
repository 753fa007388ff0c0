package ui

import (
	"context"

	"ems3/internal/domain"
)

// Backend is what the panel drives. It runs in the same process as the
// supervisor.
type Backend interface {
	ListServers() ([]domain.ServerConfig, error)
	GetServer(id string) (*domain.ServerConfig, error)
	Status(id string) domain.ServerStatus
	Start(id string) error
	Stop(id string) error
	Restart(id string) error
	Backup(ctx context.Context, id string) (domain.BackupRecord, error)
	Tail(id string, maxLines int) ([]string, error)
	OnlinePlayers(id string) ([]string, error)
	SendCommand(id, command string) error
	History(id string) []domain.CommandEntry
	QuickCommands() ([]domain.QuickCommand, error)
}
