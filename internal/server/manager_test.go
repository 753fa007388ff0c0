package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ems3/internal/domain"
	"ems3/internal/jvm"
	"ems3/internal/storage"
)

type fakeRuntime map[string]bool

func (f fakeRuntime) HoldStopped(id string, fn func() error) error {
	if f[id] {
		return domain.ErrAlreadyRunning
	}
	return fn()
}

type fakeTasks struct{ cancelled []string }

func (f *fakeTasks) CancelForServer(id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newTestManager(t *testing.T) (*Manager, fakeRuntime, *fakeTasks) {
	t.Helper()
	store, err := storage.NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	prev := portFree
	portFree = func(int) bool { return true }
	t.Cleanup(func() { portFree = prev })

	rt := fakeRuntime{}
	tasks := &fakeTasks{}
	m := NewManager(filepath.Join(t.TempDir(), "servers"), store, rt, tasks, nil)
	m.detectJava = func(path string) (*jvm.Runtime, error) {
		if path == "/opt/java17/bin/java" {
			return &jvm.Runtime{Path: path, Major: 17}, nil
		}
		return nil, errors.New("not a java binary")
	}
	return m, rt, tasks
}

func TestCreateServerDefaults(t *testing.T) {
	m, _, _ := newTestManager(t)

	srv, err := m.CreateServer(CreateRequest{Name: "Survival"})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if srv.Dir != filepath.Join(m.ServersPath, srv.ID) {
		t.Errorf("Expected dir under servers path named by id, got %s", srv.Dir)
	}
	if srv.CoreFile != domain.DefaultCoreFile || srv.JavaPath != domain.DefaultJavaPath || srv.JavaArgs != domain.DefaultJavaArgs {
		t.Errorf("Expected defaults, got %+v", srv)
	}
	if srv.Port != 25565 {
		t.Errorf("Expected first port of the range, got %d", srv.Port)
	}

	eula, err := os.ReadFile(filepath.Join(srv.Dir, "eula.txt"))
	if err != nil || string(eula) != "eula=true\n" {
		t.Errorf("Expected accepted eula, got %q (%v)", eula, err)
	}
	props, _ := ReadProperties(srv.Dir)
	if props["server-port"] != "25565" {
		t.Errorf("Expected server-port 25565, got %q", props["server-port"])
	}

	second, err := m.CreateServer(CreateRequest{Name: "Creative"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Port != 25566 {
		t.Errorf("Expected next free port 25566, got %d", second.Port)
	}
}

func TestCreateServerValidation(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.CreateServer(CreateRequest{Name: "../etc"}); err == nil {
		t.Error("Expected error for forbidden name")
	}
	if _, err := m.CreateServer(CreateRequest{Name: "A", JavaPath: "/usr/bin/false"}); err == nil {
		t.Error("Expected error for unusable java")
	}
	if _, err := m.CreateServer(CreateRequest{Name: "A", Port: 30000}); err != nil {
		t.Fatalf("Expected explicit port to be accepted, got %v", err)
	}
	if _, err := m.CreateServer(CreateRequest{Name: "B", Port: 30000}); err == nil {
		t.Error("Expected error for duplicate port")
	}
}

func TestAllocatePortSkipsBusyPorts(t *testing.T) {
	m, _, _ := newTestManager(t)
	portFree = func(p int) bool { return p != 25565 }

	srv, err := m.CreateServer(CreateRequest{Name: "Survival"})
	if err != nil {
		t.Fatal(err)
	}
	if srv.Port != 25566 {
		t.Errorf("Expected busy host port to be skipped, got %d", srv.Port)
	}

	portFree = func(int) bool { return false }
	if _, err := m.CreateServer(CreateRequest{Name: "Full"}); err == nil {
		t.Error("Expected error when the range is exhausted")
	}
}

func TestUpdateSettings(t *testing.T) {
	m, _, _ := newTestManager(t)
	srv, err := m.CreateServer(CreateRequest{Name: "Survival"})
	if err != nil {
		t.Fatal(err)
	}

	name := "Hardcore"
	port := 25570
	java := "/opt/java17/bin/java"
	updated, err := m.UpdateSettings(srv.ID, domain.ServerPatch{Name: &name, Port: &port, JavaPath: &java})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if updated.Name != name || updated.Port != port || updated.JavaPath != java {
		t.Errorf("Expected patched settings, got %+v", updated)
	}
	props, _ := ReadProperties(srv.Dir)
	if props["server-port"] != "25570" {
		t.Errorf("Expected server.properties to follow the port, got %q", props["server-port"])
	}

	bad := "/nowhere/java"
	if _, err := m.UpdateSettings(srv.ID, domain.ServerPatch{JavaPath: &bad}); err == nil {
		t.Error("Expected error for invalid java path")
	}
	if _, err := m.UpdateSettings("ghost", domain.ServerPatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteServer(t *testing.T) {
	m, rt, tasks := newTestManager(t)
	srv, err := m.CreateServer(CreateRequest{Name: "Survival"})
	if err != nil {
		t.Fatal(err)
	}

	rt[srv.ID] = true
	if err := m.DeleteServer(srv.ID); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("Expected ErrAlreadyRunning, got %v", err)
	}

	rt[srv.ID] = false
	if err := m.DeleteServer(srv.ID); err != nil {
		t.Fatalf("DeleteServer failed: %v", err)
	}
	if _, err := os.Stat(srv.Dir); !os.IsNotExist(err) {
		t.Error("Expected server directory to be removed")
	}
	if len(tasks.cancelled) != 1 || tasks.cancelled[0] != srv.ID {
		t.Errorf("Expected tasks of %s to be cancelled, got %v", srv.ID, tasks.cancelled)
	}
	if _, err := m.GetServer(srv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := m.DeleteServer(srv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestExpand(t *testing.T) {
	got, err := Expand("gamemode {mode} {player}", map[string]string{"mode": "creative", "player": "Steve"})
	if err != nil || got != "gamemode creative Steve" {
		t.Errorf("Expected expanded command, got %q (%v)", got, err)
	}

	if _, err := Expand("op {player}", map[string]string{"player": " "}); err == nil {
		t.Error("Expected error for blank placeholder")
	}

	names := Placeholders("give {player} {item} {player}")
	if len(names) != 2 || names[0] != "player" || names[1] != "item" {
		t.Errorf("Expected [player item], got %v", names)
	}

	if got, _ := Expand("save-all", nil); got != "save-all" {
		t.Errorf("Expected template without placeholders unchanged, got %q", got)
	}
}
