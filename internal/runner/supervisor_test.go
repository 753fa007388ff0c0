package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"ems3/internal/domain"
)

const fakeJava = `#!/bin/sh
echo "[Server thread/INFO]: Starting minecraft server on *:$PORT"
echo "[Server thread/INFO]: Done (0.5s)! For help, type \"help\""
while IFS= read -r line; do
  case "$line" in
    list) echo "[Server thread/INFO]: There are 2 of a max of 20 players online: Alice, Bob" ;;
    stop) echo "[Server thread/INFO]: Stopping server"; exit 0 ;;
    *) echo "[Server thread/INFO]: ran $line" ;;
  esac
done
`

const stubbornJava = `#!/bin/sh
trap '' TERM
echo "[Server thread/INFO]: Done"
while IFS= read -r line; do
  echo "$line"
done
`

type mapRegistry struct {
	mu      sync.Mutex
	servers map[string]*domain.ServerConfig
}

func (r *mapRegistry) GetServerByID(id string) (*domain.ServerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[id]
	if !ok {
		return nil, nil
	}
	cp := *srv
	return &cp, nil
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "java")
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatalf("Failed to write fake java: %v", err)
	}
	return path
}

func newTestSupervisor(t *testing.T, script string, withCore bool) (*Supervisor, *domain.ServerConfig) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake java runtime is a shell script")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "s1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if withCore {
		if err := os.WriteFile(filepath.Join(dir, "server.jar"), []byte("jar"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	srv := &domain.ServerConfig{
		ID:       "s1",
		Name:     "test",
		Dir:      dir,
		CoreFile: "server.jar",
		JavaPath: writeScript(t, root, script),
		JavaArgs: domain.DefaultJavaArgs,
		Port:     25565,
		CoreType: "vanilla",
	}

	sup := NewSupervisor(&mapRegistry{servers: map[string]*domain.ServerConfig{"s1": srv}}, nil)
	sup.grace = 300 * time.Millisecond
	sup.settle = 10 * time.Millisecond
	t.Cleanup(sup.StopAll)
	return sup, srv
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNotRunningErrors(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	if err := sup.StopServer("s1"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning from stop, got %v", err)
	}
	if err := sup.SendCommand("s1", "say hi"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning from sendCommand, got %v", err)
	}
	if st := sup.Status("s1"); st.State != domain.StateStopped {
		t.Errorf("Expected Stopped, got %s", st.State)
	}
}

func TestStartUnknownServer(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	if err := sup.StartServer("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStartWithoutCore(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, false)

	if err := sup.StartServer("s1"); !errors.Is(err, domain.ErrCoreMissing) {
		t.Fatalf("Expected ErrCoreMissing, got %v", err)
	}
	if sup.IsRunning("s1") {
		t.Error("Expected no runtime after failed start")
	}
}

func TestStartTwice(t *testing.T) {
	sup, srv := newTestSupervisor(t, fakeJava, true)

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}
	if err := sup.StartServer("s1"); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	props, _ := os.ReadFile(filepath.Join(srv.Dir, "server.properties"))
	if !strings.Contains(string(props), "server-port=25565") {
		t.Errorf("Expected server.properties to carry the port, got %q", string(props))
	}
}

func TestConcurrentStartsSpawnOnce(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	started, rejected := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sup.StartServer("s1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, domain.ErrAlreadyRunning):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if started != 1 || rejected != 7 {
		t.Errorf("Expected 1 start and 7 rejections, got %d and %d", started, rejected)
	}
}

func TestStatusReapsKilledProcess(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}

	st := sup.Status("s1")
	if st.State != domain.StateRunning || st.PID <= 0 {
		t.Fatalf("Expected Running with a pid, got %+v", st)
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		t.Fatal(err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Failed to kill child: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return sup.Status("s1").State == domain.StateStopped
	})
	if st := sup.Status("s1"); st.State != domain.StateStopped {
		t.Errorf("Expected second status to be Stopped, got %s", st.State)
	}
	if err := sup.SendCommand("s1", "list"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning after crash, got %v", err)
	}
}

func TestStopGraceful(t *testing.T) {
	sup, srv := newTestSupervisor(t, fakeJava, true)

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		data, _ := os.ReadFile(srv.LogPath())
		return strings.Contains(string(data), "Done")
	})

	if err := sup.StopServer("s1"); err != nil {
		t.Fatalf("StopServer failed: %v", err)
	}
	if sup.IsRunning("s1") {
		t.Error("Expected runtime to be removed after stop")
	}
	if err := sup.StopServer("s1"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning on second stop, got %v", err)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	sup, _ := newTestSupervisor(t, stubbornJava, true)

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	if err := sup.StopServer("s1"); err != nil {
		t.Fatalf("StopServer failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < sup.grace {
		t.Errorf("Expected stop to wait out the grace period, took %v", elapsed)
	}
	if sup.IsRunning("s1") {
		t.Error("Expected runtime to be removed after forced kill")
	}
}

func TestCommandHistoryBound(t *testing.T) {
	sup, srv := newTestSupervisor(t, fakeJava, true)

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}

	for i := 0; i < 60; i++ {
		if err := sup.SendCommand("s1", fmt.Sprintf("say %d", i)); err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}
	}

	history := sup.History("s1")
	if len(history) != 50 {
		t.Fatalf("Expected 50 history entries, got %d", len(history))
	}
	if history[0].Command != "say 10" || history[49].Command != "say 59" {
		t.Errorf("Expected say 10..say 59, got %s..%s", history[0].Command, history[49].Command)
	}

	waitFor(t, 5*time.Second, func() bool {
		data, _ := os.ReadFile(srv.LogPath())
		return strings.Contains(string(data), "ran say 59")
	})
}

func TestRestart(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	if err := sup.RestartServer("s1"); err != nil {
		t.Fatalf("Restart of a stopped server failed: %v", err)
	}
	first := sup.Status("s1").PID

	if err := sup.RestartServer("s1"); err != nil {
		t.Fatalf("Restart of a running server failed: %v", err)
	}
	st := sup.Status("s1")
	if st.State != domain.StateRunning || st.PID == first {
		t.Errorf("Expected a fresh running process, got %+v (old pid %d)", st, first)
	}
}

func TestStateListener(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	events := make(chan domain.ServerState, 4)
	sup.Subscribe(func(srv domain.ServerConfig, state domain.ServerState) {
		events <- state
	})

	if err := sup.StartServer("s1"); err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}
	if err := sup.StopServer("s1"); err != nil {
		t.Fatalf("StopServer failed: %v", err)
	}

	for _, want := range []domain.ServerState{domain.StateRunning, domain.StateStopped} {
		select {
		case got := <-events:
			if got != want {
				t.Errorf("Expected %s, got %s", want, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestHoldStoppedBlocksStart(t *testing.T) {
	sup, _ := newTestSupervisor(t, fakeJava, true)

	entered := make(chan struct{})
	release := make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- sup.HoldStopped("s1", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	started := make(chan error, 1)
	go func() { started <- sup.StartServer("s1") }()

	select {
	case err := <-started:
		t.Fatalf("Expected start to wait for the hold, got %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	if err := <-held; err != nil {
		t.Fatalf("HoldStopped failed: %v", err)
	}
	if err := <-started; err != nil {
		t.Fatalf("StartServer failed: %v", err)
	}

	called := false
	err := sup.HoldStopped("s1", func() error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	if called {
		t.Error("Expected fn not to run while the server is up")
	}
}
