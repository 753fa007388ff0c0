package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"ems3/internal/logs"
)

type Commander interface {
	SendCommand(serverID, command string) error
}

type HubManager struct {
	hubs      map[string]*Hub
	followers map[string]context.CancelFunc
	mu        sync.Mutex

	historySize int
	commander   Commander
	translator  *logs.Translator
	logger      *slog.Logger
}

func NewHubManager(historySize int, commander Commander, translator *logs.Translator, logger *slog.Logger) *HubManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HubManager{
		hubs:        make(map[string]*Hub),
		followers:   make(map[string]context.CancelFunc),
		historySize: historySize,
		commander:   commander,
		translator:  translator,
		logger:      logger.With("component", "console"),
	}
}

// GetHub returns the hub of a server, creating it on first use. Commands
// typed by its clients go to the server's console.
func (m *HubManager) GetHub(serverID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[serverID]; ok {
		return hub
	}

	hub := NewHub(m.historySize)
	go hub.Run()
	go m.forwardCommands(serverID, hub)
	m.hubs[serverID] = hub
	return hub
}

func (m *HubManager) forwardCommands(serverID string, hub *Hub) {
	for {
		select {
		case command := <-hub.Commands:
			if m.commander == nil {
				continue
			}
			if err := m.commander.SendCommand(serverID, string(command)); err != nil {
				m.logger.Warn("console command rejected", "server", serverID, "err", err)
				hub.Broadcast([]byte(fmt.Sprintf("[ems3] %v", err)))
			}
		case <-hub.stop:
			return
		}
	}
}

// Attach starts following the server's log file into its hub, replacing any
// previous follower. History from an earlier run is dropped.
func (m *HubManager) Attach(serverID, logPath string) {
	hub := m.GetHub(serverID)

	m.mu.Lock()
	if cancel, ok := m.followers[serverID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.followers[serverID] = cancel
	m.mu.Unlock()

	hub.ClearLogs()
	follower := logs.NewFollower(logPath, m.translator, func(line string) {
		hub.Broadcast([]byte(line))
	}, m.logger)

	go func() {
		if err := follower.Run(ctx); err != nil {
			m.logger.Warn("log follow stopped", "server", serverID, "err", err)
		}
	}()
}

// Detach stops following the log. The hub and its history stay so clients
// still see the last lines of the run.
func (m *HubManager) Detach(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.followers[serverID]; ok {
		cancel()
		delete(m.followers, serverID)
	}
}

func (m *HubManager) RemoveHub(serverID string) {
	m.Detach(serverID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[serverID]; ok {
		hub.Stop()
		delete(m.hubs, serverID)
	}
}

func (m *HubManager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.hubs))
	for id := range m.hubs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.RemoveHub(id)
	}
}

func (m *HubManager) ServeConsole(w http.ResponseWriter, r *http.Request, serverID string) {
	if err := m.GetHub(serverID).ServeWs(w, r); err != nil {
		m.logger.Warn("websocket upgrade failed", "server", serverID, "err", err)
	}
}
