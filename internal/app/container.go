package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"ems3/internal/backup"
	"ems3/internal/config"
	"ems3/internal/domain"
	"ems3/internal/jvm"
	"ems3/internal/loader"
	"ems3/internal/logs"
	"ems3/internal/runner"
	"ems3/internal/scheduler"
	"ems3/internal/server"
	"ems3/internal/storage"
	"ems3/internal/ws"
)

const schedulerStopTimeout = 30 * time.Second

// Container holds every long-lived component of the supervisor.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Store         *storage.GormStore
	Supervisor    *runner.Supervisor
	LogReader     *logs.Reader
	Catalog       *loader.Catalog
	Downloads     *loader.Worker
	BackupManager *backup.Manager
	Scheduler     *scheduler.Scheduler
	ServerManager *server.Manager
	QuickCommands *server.QuickCommands
	JavaPaths     *jvm.Registry
	HubManager    *ws.HubManager

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.ServersPath, 0755); err != nil {
		return nil, fmt.Errorf("could not create servers directory %q: %w", cfg.ServersPath, err)
	}

	store, err := storage.NewGormStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if cfg.PortRange.Start > 0 && cfg.PortRange.End >= cfg.PortRange.Start {
		if err := store.SetPortRange(cfg.PortRange.Start, cfg.PortRange.End); err != nil {
			store.Close()
			return nil, err
		}
	}

	var translator *logs.Translator
	if !cfg.Console.RawLogs {
		translator = logs.NewTranslator(logs.DefaultPhrases)
	}

	supervisor := runner.NewSupervisor(store, logger)
	catalog := loader.NewCatalog(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	backups := backup.NewManager(store, supervisor, logger)
	sched := scheduler.New(store, store, supervisor, backups, logger)
	hubs := ws.NewHubManager(cfg.Console.History, supervisor, translator, logger)

	c := &Container{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Supervisor:    supervisor,
		LogReader:     logs.NewReader(store, supervisor, translator),
		Catalog:       catalog,
		Downloads:     loader.NewWorker(catalog, store, logger),
		BackupManager: backups,
		Scheduler:     sched,
		ServerManager: server.NewManager(cfg.ServersPath, store, supervisor, sched, logger),
		QuickCommands: server.NewQuickCommands(store),
		JavaPaths:     jvm.NewRegistry(store),
		HubManager:    hubs,
	}

	supervisor.Subscribe(func(srv domain.ServerConfig, state domain.ServerState) {
		switch state {
		case domain.StateRunning:
			hubs.Attach(srv.ID, srv.LogPath())
		case domain.StateStopped:
			if !supervisor.IsRunning(srv.ID) {
				hubs.Detach(srv.ID)
			}
		}
	})

	return c, nil
}

// Start launches the download worker and loads and starts the scheduler.
func (c *Container) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Downloads.Run(ctx)
	}()

	if err := c.Scheduler.Load(); err != nil {
		return fmt.Errorf("loading scheduled tasks: %w", err)
	}
	c.Scheduler.Start()
	return nil
}

// ConsoleHandler serves the live console websocket route.
func (c *Container) ConsoleHandler() http.Handler {
	return ws.Handler(c.HubManager, c.Store)
}

// Close stops every running server, then the background workers, then the
// database.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.Supervisor.StopAll()
		c.Scheduler.Stop(schedulerStopTimeout)
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		c.HubManager.Close()
		err = c.Store.Close()
	})
	return err
}

// WaitDownload polls the download of a server until it completes or fails.
func (c *Container) WaitDownload(ctx context.Context, serverID string, onUpdate func(domain.DownloadTask)) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		task := c.Downloads.StatusOf(serverID)
		if onUpdate != nil {
			onUpdate(task)
		}
		switch task.Status {
		case domain.DownloadCompleted:
			return nil
		case domain.DownloadFailed:
			return errors.New(task.Message)
		case domain.DownloadNone:
			return fmt.Errorf("no download for server %s", serverID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
