package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"ems3/internal/domain"

	"github.com/klauspost/compress/zip"
)

type stubRegistry map[string]*domain.ServerConfig

func (r stubRegistry) GetServerByID(id string) (*domain.ServerConfig, error) {
	return r[id], nil
}

type stubRuntime bool

func (r stubRuntime) HoldStopped(id string, fn func() error) error {
	if r {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, id)
	}
	return fn()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T, running bool) (*Manager, *domain.ServerConfig, *time.Time) {
	t.Helper()
	srv := &domain.ServerConfig{ID: "s1", Dir: t.TempDir(), Port: 25570}
	m := NewManager(stubRegistry{"s1": srv}, stubRuntime(running), nil)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	m.now = func() time.Time { return clock }
	return m, srv, &clock
}

func archiveEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreateBackupExcludesTransientDirs(t *testing.T) {
	m, srv, _ := newTestManager(t, false)

	writeFile(t, filepath.Join(srv.Dir, "server.properties"), "server-port=25570\n")
	writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "level")
	writeFile(t, filepath.Join(srv.Dir, "logs", "latest.log"), "log line")
	writeFile(t, filepath.Join(srv.Dir, "backups", "old.zip"), "old")
	writeFile(t, filepath.Join(srv.Dir, "plugins", "logs", "kept.txt"), "nested logs dir is not excluded")

	rec, err := m.CreateBackup(context.Background(), "s1")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	if rec.Name != "backup_20240501_120000.zip" {
		t.Errorf("Unexpected backup name %q", rec.Name)
	}

	got := archiveEntries(t, filepath.Join(srv.BackupDir(), rec.Name))
	want := []string{"plugins/", "plugins/logs/", "plugins/logs/kept.txt", "server.properties", "world/", "world/level.dat"}
	if len(got) != len(want) {
		t.Fatalf("Expected entries %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected entries %v, got %v", want, got)
			break
		}
	}

	if _, err := m.CreateBackup(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSameSecondBackupsGetSuffix(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	first, err := m.CreateBackup(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateBackup(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Name == second.Name || second.Name != "backup_20240501_120000_2.zip" {
		t.Errorf("Expected a suffixed second name, got %q and %q", first.Name, second.Name)
	}

	list, _ := m.ListBackups("s1")
	if len(list) != 2 || list[0].Name != second.Name {
		t.Errorf("Expected the suffixed backup to sort first, got %+v", list)
	}
}

func TestRetentionKeepsNewest(t *testing.T) {
	m, srv, clock := newTestManager(t, false)
	writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "level")

	var names []string
	for i := 0; i < 4; i++ {
		rec, err := m.CreateBackup(context.Background(), "s1")
		if err != nil {
			t.Fatalf("CreateBackup %d failed: %v", i, err)
		}
		names = append(names, rec.Name)
		if _, err := m.Prune("s1", 2); err != nil {
			t.Fatalf("Prune failed: %v", err)
		}
		*clock = clock.Add(time.Minute)
	}

	list, err := m.ListBackups("s1")
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 backups, got %d", len(list))
	}
	if list[0].Name != names[3] || list[1].Name != names[2] {
		t.Errorf("Expected %s and %s, got %s and %s", names[3], names[2], list[0].Name, list[1].Name)
	}
}

func TestDeleteBackupValidatesName(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	if err := m.DeleteBackup("s1", "../server.properties"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for traversal, got %v", err)
	}
	if err := m.DeleteBackup("s1", "backup_20240501_120000.zip"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing backup, got %v", err)
	}

	rec, _ := m.CreateBackup(context.Background(), "s1")
	if err := m.DeleteBackup("s1", rec.Name); err != nil {
		t.Fatalf("DeleteBackup failed: %v", err)
	}
	list, _ := m.ListBackups("s1")
	if len(list) != 0 {
		t.Errorf("Expected no backups, got %d", len(list))
	}
}

func TestRestoreBackup(t *testing.T) {
	m, srv, _ := newTestManager(t, false)
	writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "before")

	rec, err := m.CreateBackup(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "after")
	writeFile(t, filepath.Join(srv.Dir, "griefed.txt"), "x")

	if err := m.RestoreBackup("s1", rec.Name); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(srv.Dir, "world", "level.dat"))
	if string(data) != "before" {
		t.Errorf("Expected restored content, got %q", string(data))
	}
	if _, err := os.Stat(filepath.Join(srv.Dir, "griefed.txt")); !os.IsNotExist(err) {
		t.Error("Expected files created after the backup to be gone")
	}
	if _, err := os.Stat(filepath.Join(srv.BackupDir(), rec.Name)); err != nil {
		t.Errorf("Expected the archive to survive the restore: %v", err)
	}
	for _, dir := range []string{stagingDir, retiredDir} {
		if _, err := os.Stat(filepath.Join(srv.Dir, dir)); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be cleaned up", dir)
		}
	}
	props, _ := os.ReadFile(filepath.Join(srv.Dir, "server.properties"))
	if string(props) != "server-port=25570\n" {
		t.Errorf("Expected port to be written back, got %q", string(props))
	}
}

func TestRestoreRefusedWhileRunning(t *testing.T) {
	m, srv, _ := newTestManager(t, false)
	rec, err := m.CreateBackup(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	m.runtime = stubRuntime(true)
	writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "live")
	if err := m.RestoreBackup("s1", rec.Name); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(srv.Dir, "world", "level.dat"))
	if string(data) != "live" {
		t.Errorf("Expected files of a running server untouched, got %q", string(data))
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFailedRestoreKeepsServerFiles(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, path string)
	}{
		{"corrupt archive", func(t *testing.T, path string) {
			writeFile(t, path, "this is not a zip file")
		}},
		{"entry escaping the directory", func(t *testing.T, path string) {
			writeZip(t, path, map[string]string{
				"world/level.dat": "from backup",
				"../escaped.txt":  "x",
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, srv, _ := newTestManager(t, false)
			writeFile(t, filepath.Join(srv.Dir, "world", "level.dat"), "live")
			writeFile(t, filepath.Join(srv.Dir, "server.properties"), "server-port=25570\n")

			name := "backup_20240101_000000.zip"
			tt.write(t, filepath.Join(srv.BackupDir(), name))

			if err := m.RestoreBackup("s1", name); err == nil {
				t.Fatal("Expected restore to fail")
			}

			data, err := os.ReadFile(filepath.Join(srv.Dir, "world", "level.dat"))
			if err != nil || string(data) != "live" {
				t.Errorf("Expected world/level.dat to survive, got %q (%v)", string(data), err)
			}
			if _, err := os.Stat(filepath.Join(srv.Dir, "server.properties")); err != nil {
				t.Errorf("Expected server.properties to survive: %v", err)
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(srv.Dir), "escaped.txt")); !os.IsNotExist(err) {
				t.Error("Expected nothing written outside the server directory")
			}
			for _, dir := range []string{stagingDir, retiredDir} {
				if _, err := os.Stat(filepath.Join(srv.Dir, dir)); !os.IsNotExist(err) {
					t.Errorf("Expected %s to be cleaned up", dir)
				}
			}
		})
	}
}
