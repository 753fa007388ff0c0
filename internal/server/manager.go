package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ems3/internal/domain"
	"ems3/internal/jvm"

	"github.com/google/uuid"
)

type Store interface {
	domain.ServerRepository
	GetPortRange() (int, int, error)
}

// Runtime runs fn only while the server is stopped and cannot be started.
type Runtime interface {
	HoldStopped(serverID string, fn func() error) error
}

type TaskCanceller interface {
	CancelForServer(serverID string) error
}

type CreateRequest struct {
	Name     string
	CoreFile string
	CoreType string
	JavaPath string
	JavaArgs string
	Port     int
}

// Manager is the write side of the server registry: it owns server
// directories and their records.
type Manager struct {
	ServersPath string

	store   Store
	runtime Runtime
	tasks   TaskCanceller
	logger  *slog.Logger

	detectJava func(path string) (*jvm.Runtime, error)
	now        func() time.Time
}

func NewManager(serversPath string, store Store, runtime Runtime, tasks TaskCanceller, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ServersPath: serversPath,
		store:       store,
		runtime:     runtime,
		tasks:       tasks,
		logger:      logger.With("component", "servers"),
		detectJava:  jvm.Detect,
		now:         time.Now,
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("server name cannot be empty")
	}
	if strings.ContainsAny(name, "\\/:*?\"<>|") || strings.Contains(name, "..") {
		return errors.New("invalid server name: contains forbidden characters")
	}
	return nil
}

func (m *Manager) checkPort(id string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	servers, err := m.store.ListServers()
	if err != nil {
		return err
	}
	for _, s := range servers {
		if s.ID != id && s.Port == port {
			return fmt.Errorf("port %d is already used by %s", port, s.Name)
		}
	}
	return nil
}

func (m *Manager) checkJava(path string) error {
	if path == "" || path == domain.DefaultJavaPath {
		return nil
	}
	rt, err := m.detectJava(path)
	if err != nil {
		return err
	}
	m.logger.Info("java runtime validated", "path", path, "major", rt.Major)
	return nil
}

func (m *Manager) CreateServer(req CreateRequest) (*domain.ServerConfig, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if err := m.checkJava(req.JavaPath); err != nil {
		return nil, err
	}

	port := req.Port
	if port == 0 {
		allocated, err := AllocatePort(m.store)
		if err != nil {
			return nil, fmt.Errorf("error allocating port: %w", err)
		}
		port = allocated
	} else if err := m.checkPort("", port); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	srv := &domain.ServerConfig{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Dir:       filepath.Join(m.ServersPath, id),
		CoreFile:  orDefault(req.CoreFile, domain.DefaultCoreFile),
		CoreType:  orDefault(req.CoreType, domain.DefaultCoreType),
		JavaPath:  orDefault(req.JavaPath, domain.DefaultJavaPath),
		JavaArgs:  orDefault(req.JavaArgs, domain.DefaultJavaArgs),
		Port:      port,
		CreatedAt: m.now(),
	}

	if err := os.MkdirAll(srv.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	if err := WriteEULA(srv.Dir); err != nil {
		os.RemoveAll(srv.Dir)
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	if err := SetPort(srv.Dir, port); err != nil {
		os.RemoveAll(srv.Dir)
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	if err := m.store.SaveServer(srv); err != nil {
		os.RemoveAll(srv.Dir)
		return nil, fmt.Errorf("saving server: %w", err)
	}

	m.logger.Info("server created", "server", id, "name", srv.Name, "port", port)
	return srv, nil
}

func (m *Manager) GetServer(id string) (*domain.ServerConfig, error) {
	srv, err := m.store.GetServerByID(id)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("%w: server %s", domain.ErrNotFound, id)
	}
	return srv, nil
}

func (m *Manager) ListServers() ([]domain.ServerConfig, error) {
	return m.store.ListServers()
}

// UpdateSettings applies a patch. Port changes are written to
// server.properties right away and take effect on the next start.
func (m *Manager) UpdateSettings(id string, patch domain.ServerPatch) (*domain.ServerConfig, error) {
	srv, err := m.GetServer(id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return srv, nil
	}

	if patch.Name != nil {
		if err := validateName(*patch.Name); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}
	if patch.JavaPath != nil {
		javaPath := orDefault(*patch.JavaPath, domain.DefaultJavaPath)
		patch.JavaPath = &javaPath
		if err := m.checkJava(javaPath); err != nil {
			return nil, err
		}
	}
	if patch.JavaArgs != nil && strings.TrimSpace(*patch.JavaArgs) == "" {
		return nil, errors.New("java arguments cannot be empty")
	}
	if patch.Port != nil {
		if err := m.checkPort(id, *patch.Port); err != nil {
			return nil, err
		}
		if err := SetPort(srv.Dir, *patch.Port); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
		}
	}

	if err := m.store.UpdateServer(id, patch); err != nil {
		return nil, err
	}
	return m.GetServer(id)
}

// DeleteServer removes a stopped server together with its directory and
// scheduled tasks.
func (m *Manager) DeleteServer(id string) error {
	srv, err := m.GetServer(id)
	if err != nil {
		return err
	}

	remove := func() error {
		return m.deleteServer(srv)
	}
	if m.runtime != nil {
		err = m.runtime.HoldStopped(id, remove)
	} else {
		err = remove()
	}
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			return fmt.Errorf("%w: stop %s before deleting it", domain.ErrAlreadyRunning, srv.Name)
		}
		return err
	}

	m.logger.Info("server deleted", "server", id)
	return nil
}

func (m *Manager) deleteServer(srv *domain.ServerConfig) error {
	if m.tasks != nil {
		if err := m.tasks.CancelForServer(srv.ID); err != nil {
			return fmt.Errorf("cancelling tasks: %w", err)
		}
	}

	if err := os.RemoveAll(srv.Dir); err != nil {
		return fmt.Errorf("%w: deleting server files: %v", domain.ErrIO, err)
	}
	if err := m.store.DeleteServer(srv.ID); err != nil {
		return fmt.Errorf("error deleting server from database: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
