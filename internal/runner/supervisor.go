package runner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ems3/internal/domain"
	"ems3/internal/server"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	stopGrace    = 2 * time.Second
	restartDelay = 5 * time.Second
	cpuSample    = 100 * time.Millisecond
)

// Registry is the read side of the server registry the supervisor launches from.
type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
}

// StateListener is told when a runtime appears or disappears.
type StateListener func(srv domain.ServerConfig, state domain.ServerState)

type Supervisor struct {
	registry  Registry
	logger    *slog.Logger
	processes map[string]*ActiveProcess
	mu        sync.RWMutex
	locks     keyedMutex
	history   *commandHistory

	listenersMu sync.RWMutex
	listeners   []StateListener

	grace  time.Duration
	settle time.Duration
}

// ActiveProcess is the runtime of one live server.
type ActiveProcess struct {
	Server    domain.ServerConfig
	Cmd       *exec.Cmd
	Stdin     io.WriteCloser
	LogFile   *os.File
	StartedAt time.Time

	done chan struct{}
}

func (p *ActiveProcess) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func NewSupervisor(registry Registry, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		registry:  registry,
		logger:    logger.With("component", "supervisor"),
		processes: make(map[string]*ActiveProcess),
		locks:     keyedMutex{locks: make(map[string]*sync.Mutex)},
		history:   newCommandHistory(historyLimit),
		grace:     stopGrace,
		settle:    restartDelay,
	}
}

func (s *Supervisor) Subscribe(fn StateListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Supervisor) notify(srv domain.ServerConfig, state domain.ServerState) {
	s.listenersMu.RLock()
	listeners := append([]StateListener(nil), s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(srv, state)
	}
}

func (s *Supervisor) get(id string) *ActiveProcess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[id]
}

// remove drops the runtime only if it is still the one registered for id.
func (s *Supervisor) remove(id string, proc *ActiveProcess) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.processes[id]; ok && cur == proc {
		delete(s.processes, id)
		return true
	}
	return false
}

// live returns the runtime for id after reaping it if the child has exited.
func (s *Supervisor) live(id string) *ActiveProcess {
	proc := s.get(id)
	if proc == nil {
		return nil
	}
	if !proc.alive() {
		s.remove(id, proc)
		return nil
	}
	return proc
}

func (s *Supervisor) StartServer(serverID string) error {
	unlock := s.locks.lock(serverID)
	defer unlock()

	srv, err := s.registry.GetServerByID(serverID)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("%w: server %s", domain.ErrNotFound, serverID)
	}

	if s.live(serverID) != nil {
		return domain.ErrAlreadyRunning
	}

	absServerDir, err := filepath.Abs(srv.Dir)
	if err != nil {
		return fmt.Errorf("error getting absolute path for server: %w", err)
	}

	corePath := filepath.Join(absServerDir, srv.CoreFile)
	if info, err := os.Stat(corePath); err != nil || info.IsDir() {
		if err == nil || os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrCoreMissing, corePath)
		}
		return fmt.Errorf("%w: accessing %s: %v", domain.ErrIO, corePath, err)
	}

	if err := server.SetPort(absServerDir, srv.Port); err != nil {
		s.logger.Warn("could not update server.properties", "server", serverID, "err", err)
	}

	logDir := filepath.Join(absServerDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, "latest.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening log file: %v", domain.ErrIO, err)
	}

	javaPath := srv.JavaPath
	if javaPath == "" {
		javaPath = domain.DefaultJavaPath
	}
	args := append(strings.Fields(srv.JavaArgs), "-jar", corePath, "nogui")

	cmd := exec.Command(javaPath, args...)
	cmd.Dir = absServerDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	prepareCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		return err
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start: %w", err)
	}

	proc := &ActiveProcess{
		Server:    *srv,
		Cmd:       cmd,
		Stdin:     stdin,
		LogFile:   logFile,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.processes[serverID] = proc
	s.mu.Unlock()

	s.logger.Info("server started", "server", serverID, "pid", cmd.Process.Pid)

	go s.wait(serverID, proc)

	s.notify(*srv, domain.StateRunning)
	return nil
}

func (s *Supervisor) wait(id string, proc *ActiveProcess) {
	err := proc.Cmd.Wait()
	close(proc.done)
	_ = proc.LogFile.Close()

	s.remove(id, proc)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		s.logger.Info("server exited", "server", id)
	case errors.As(err, &exitErr):
		s.logger.Info("server exited", "server", id, "code", exitErr.ExitCode())
	default:
		s.logger.Warn("server wait failed", "server", id, "err", err)
	}

	s.notify(proc.Server, domain.StateStopped)
}

func (s *Supervisor) StopServer(serverID string) error {
	unlock := s.locks.lock(serverID)
	defer unlock()

	proc := s.live(serverID)
	if proc == nil {
		return domain.ErrNotRunning
	}

	if err := terminate(proc.Cmd.Process); err != nil {
		s.logger.Debug("graceful termination failed, killing", "server", serverID, "err", err)
		_ = proc.Cmd.Process.Kill()
	}

	select {
	case <-proc.done:
	case <-time.After(s.grace):
		s.logger.Warn("server did not stop in time, killing", "server", serverID)
		_ = proc.Cmd.Process.Kill()
		select {
		case <-proc.done:
		case <-time.After(s.grace):
			s.logger.Error("server still not reaped after kill", "server", serverID)
		}
	}

	s.remove(serverID, proc)
	return nil
}

// RestartServer stops the server if it is running, waits for the OS to release
// its port and files, then starts it again. Stop failures are only logged.
func (s *Supervisor) RestartServer(serverID string) error {
	if err := s.StopServer(serverID); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		s.logger.Warn("stop before restart failed", "server", serverID, "err", err)
	}
	time.Sleep(s.settle)
	return s.StartServer(serverID)
}

func (s *Supervisor) SendCommand(serverID string, command string) error {
	unlock := s.locks.lock(serverID)
	defer unlock()

	proc := s.live(serverID)
	if proc == nil {
		return domain.ErrNotRunning
	}

	if _, err := io.WriteString(proc.Stdin, command+"\n"); err != nil {
		if !proc.alive() {
			s.remove(serverID, proc)
			return domain.ErrNotRunning
		}
		return fmt.Errorf("%w: writing to console: %v", domain.ErrIO, err)
	}

	s.history.add(serverID, command, time.Now())
	return nil
}

// History returns the recent console commands of a server, oldest first.
func (s *Supervisor) History(serverID string) []domain.CommandEntry {
	return s.history.list(serverID)
}

func (s *Supervisor) IsRunning(serverID string) bool {
	return s.live(serverID) != nil
}

// HoldStopped runs fn while no start can race it. It fails with
// ErrAlreadyRunning when the server is up.
func (s *Supervisor) HoldStopped(serverID string, fn func() error) error {
	unlock := s.locks.lock(serverID)
	defer unlock()

	if s.live(serverID) != nil {
		return fmt.Errorf("%w: server %s is running", domain.ErrAlreadyRunning, serverID)
	}
	return fn()
}

func (s *Supervisor) Status(serverID string) domain.ServerStatus {
	proc := s.live(serverID)
	if proc == nil {
		return domain.ServerStatus{State: domain.StateStopped}
	}

	status := domain.ServerStatus{
		State:     domain.StateRunning,
		PID:       proc.Cmd.Process.Pid,
		StartedAt: proc.StartedAt,
	}

	p, err := process.NewProcess(int32(status.PID))
	if err != nil {
		if !proc.alive() {
			s.remove(serverID, proc)
			return domain.ServerStatus{State: domain.StateStopped}
		}
		s.logger.Debug("could not inspect process", "server", serverID, "err", err)
		return status
	}

	if pct, err := p.Percent(cpuSample); err == nil {
		if cores, err := cpu.Counts(true); err == nil && cores > 0 {
			pct /= float64(cores)
		}
		status.CPUPercent = round2(pct)
	}
	if mem, err := p.MemoryInfo(); err == nil {
		status.MemoryMB = round2(float64(mem.RSS) / 1024 / 1024)
	}
	return status
}

// Running lists the ids of servers with a live runtime.
func (s *Supervisor) Running() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	live := ids[:0]
	for _, id := range ids {
		if s.IsRunning(id) {
			live = append(live, id)
		}
	}
	return live
}

func (s *Supervisor) StopAll() {
	var wg sync.WaitGroup
	for _, id := range s.Running() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.StopServer(id); err != nil && !errors.Is(err, domain.ErrNotRunning) {
				s.logger.Warn("stop failed", "server", id, "err", err)
			}
		}(id)
	}
	wg.Wait()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
