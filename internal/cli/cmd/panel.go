package cmd

import (
	"context"
	"fmt"

	"ems3/internal/app"
	"ems3/internal/cli/ui"
	"ems3/internal/domain"

	"github.com/spf13/cobra"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive panel (servers stop when it exits)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPanel(cmd.Context())
	},
}

func init() {
	RootCmd.AddCommand(panelCmd)
}

func runPanel(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := openContainer(true)
	if err != nil {
		return err
	}
	defer closeContainer(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		return err
	}
	if addr := c.Config.Console.Listen; addr != "" {
		go serveConsole(ctx, c, addr)
	}

	backend := panelBackend{c: c}
	for {
		id, err := ui.RunDashboard(backend)
		if err != nil {
			return err
		}
		if id == "" {
			return nil
		}
		back, err := ui.RunConsole(backend, id)
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		if !back {
			return nil
		}
	}
}

type panelBackend struct {
	c *app.Container
}

func (b panelBackend) ListServers() ([]domain.ServerConfig, error) {
	return b.c.ServerManager.ListServers()
}

func (b panelBackend) GetServer(id string) (*domain.ServerConfig, error) {
	return b.c.ServerManager.GetServer(id)
}

func (b panelBackend) Status(id string) domain.ServerStatus { return b.c.Supervisor.Status(id) }
func (b panelBackend) Start(id string) error                { return b.c.Supervisor.StartServer(id) }
func (b panelBackend) Stop(id string) error                 { return b.c.Supervisor.StopServer(id) }
func (b panelBackend) Restart(id string) error              { return b.c.Supervisor.RestartServer(id) }

func (b panelBackend) Backup(ctx context.Context, id string) (domain.BackupRecord, error) {
	return b.c.BackupManager.CreateBackup(ctx, id)
}

func (b panelBackend) Tail(id string, maxLines int) ([]string, error) {
	return b.c.LogReader.Tail(id, maxLines)
}

func (b panelBackend) OnlinePlayers(id string) ([]string, error) {
	return b.c.LogReader.OnlinePlayers(id)
}

func (b panelBackend) SendCommand(id, command string) error {
	return b.c.Supervisor.SendCommand(id, command)
}

func (b panelBackend) History(id string) []domain.CommandEntry {
	return b.c.Supervisor.History(id)
}

func (b panelBackend) QuickCommands() ([]domain.QuickCommand, error) {
	return b.c.QuickCommands.List()
}
