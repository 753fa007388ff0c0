package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ems3/internal/domain"
)

var jarBytes = []byte(strings.Repeat("paperclip", 4096))

type memRegistry struct {
	mu      sync.Mutex
	servers map[string]*domain.ServerConfig
}

func (r *memRegistry) GetServerByID(id string) (*domain.ServerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[id]
	if !ok {
		return nil, nil
	}
	cp := *srv
	return &cp, nil
}

func (r *memRegistry) UpdateServerCore(id, coreFile, coreType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[id]
	if !ok {
		return domain.ErrNotFound
	}
	srv.CoreFile = coreFile
	srv.CoreType = coreType
	return nil
}

type fakeMirror struct {
	*httptest.Server
	release chan struct{}
}

func newFakeMirror(t *testing.T) *fakeMirror {
	t.Helper()
	m := &fakeMirror{release: make(chan struct{})}
	mux := http.NewServeMux()

	build := func(file, name, sum string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": map[string]string{
					"download_url": m.URL + "/files/" + file,
					"filename":     name,
					"sha1":         sum,
				},
			})
		}
	}
	digest := sha1.Sum(jarBytes)

	mux.HandleFunc("/Paper/1.20.1/196", build("ok", "Paper-1.20.1-196.jar", hex.EncodeToString(digest[:])))
	mux.HandleFunc("/Paper/1.20.1/broken", build("short", "Paper-1.20.1-broken.jar", ""))
	mux.HandleFunc("/Paper/1.20.1/slow", build("slow", "Paper-1.20.1-slow.jar", ""))
	mux.HandleFunc("/Paper/1.20.1/tampered", build("ok", "Paper-1.20.1-tampered.jar", "deadbeef"))
	mux.HandleFunc("/Paper/1.20.1/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"build not found"}`))
	})
	mux.HandleFunc("/Paper", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"mc_versions":["1.19.4","1.20.1","1.8.8"]}}`))
	})
	mux.HandleFunc("/files/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write(jarBytes)
	})
	mux.HandleFunc("/files/short", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		w.Write(jarBytes[:1000])
	})
	mux.HandleFunc("/files/slow", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2000")
		w.Write(jarBytes[:1000])
		w.(http.Flusher).Flush()
		select {
		case <-m.release:
		case <-r.Context().Done():
			return
		}
		w.Write(jarBytes[:1000])
	})

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func newTestWorker(t *testing.T, mirror *fakeMirror) (*Worker, *memRegistry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := &memRegistry{servers: map[string]*domain.ServerConfig{
		"s1": {ID: "s1", Dir: dir, CoreFile: "server.jar", CoreType: "vanilla"},
	}}
	w := NewWorker(NewCatalog(mirror.URL, 5*time.Second), reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, reg, dir
}

func waitStatus(t *testing.T, w *Worker, id string, want domain.DownloadStatus) domain.DownloadTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := w.StatusOf(id); st.Status == want {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, last status %+v", want, w.StatusOf(id))
	return domain.DownloadTask{}
}

func req(build string) domain.DownloadRequest {
	return domain.DownloadRequest{ServerID: "s1", Core: "Paper", MCVersion: "1.20.1", BuildVersion: build}
}

func TestDownloadInstallsCore(t *testing.T) {
	mirror := newFakeMirror(t)
	w, reg, dir := newTestWorker(t, mirror)

	if st := w.StatusOf("s1"); st.Status != domain.DownloadNone {
		t.Errorf("Expected none before any task, got %s", st.Status)
	}

	name, err := w.Enqueue(context.Background(), req("196"))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if name != "Paper-1.20.1-196.jar" {
		t.Errorf("Unexpected filename %q", name)
	}

	st := waitStatus(t, w, "s1", domain.DownloadCompleted)
	if st.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", st.Progress)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil || len(data) != len(jarBytes) {
		t.Fatalf("Expected installed core, got %d bytes, err %v", len(data), err)
	}
	if _, err := os.Stat(filepath.Join(dir, name+".tmp")); !os.IsNotExist(err) {
		t.Error("Expected no temp file after completion")
	}

	srv, _ := reg.GetServerByID("s1")
	if srv.CoreFile != name || srv.CoreType != "paper" {
		t.Errorf("Expected registry updated to %s/paper, got %s/%s", name, srv.CoreFile, srv.CoreType)
	}
}

func TestDownloadFailureLeavesNoTrace(t *testing.T) {
	mirror := newFakeMirror(t)
	w, _, dir := newTestWorker(t, mirror)

	for _, build := range []string{"broken", "tampered"} {
		if _, err := w.Enqueue(context.Background(), req(build)); err != nil {
			t.Fatalf("Enqueue %s failed: %v", build, err)
		}
		st := waitStatus(t, w, "s1", domain.DownloadFailed)
		if st.Message == "" {
			t.Errorf("Expected a failure message for %s", build)
		}

		final := filepath.Join(dir, "Paper-1.20.1-"+build+".jar")
		if _, err := os.Stat(final); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be absent", final)
		}
		if _, err := os.Stat(final + ".tmp"); !os.IsNotExist(err) {
			t.Errorf("Expected temp file for %s to be removed", build)
		}
	}
}

func TestEnqueueRejectsWhileDownloading(t *testing.T) {
	mirror := newFakeMirror(t)
	w, _, _ := newTestWorker(t, mirror)

	if _, err := w.Enqueue(context.Background(), req("slow")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var before domain.DownloadTask
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		before = w.StatusOf("s1")
		if before.Status == domain.DownloadDownloading && before.Progress >= 50 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if before.Status != domain.DownloadDownloading {
		t.Fatalf("Expected downloading, got %+v", before)
	}

	if _, err := w.Enqueue(context.Background(), req("196")); !errors.Is(err, domain.ErrAlreadyDownloading) {
		t.Errorf("Expected ErrAlreadyDownloading, got %v", err)
	}
	after := w.StatusOf("s1")
	if after.BuildVersion != "slow" || after.Progress != before.Progress {
		t.Errorf("Expected first task untouched, got %+v", after)
	}

	close(mirror.release)
	waitStatus(t, w, "s1", domain.DownloadCompleted)
}

func TestEnqueueValidatesUpFront(t *testing.T) {
	mirror := newFakeMirror(t)
	w, _, _ := newTestWorker(t, mirror)

	if _, err := w.Enqueue(context.Background(), req("missing")); !errors.Is(err, domain.ErrFetchFailed) {
		t.Errorf("Expected ErrFetchFailed, got %v", err)
	}
	if st := w.StatusOf("s1"); st.Status != domain.DownloadNone {
		t.Errorf("Expected no task after rejected enqueue, got %s", st.Status)
	}

	bad := req("196")
	bad.ServerID = "ghost"
	if _, err := w.Enqueue(context.Background(), bad); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCatalogVersionsSorted(t *testing.T) {
	mirror := newFakeMirror(t)
	c := NewCatalog(mirror.URL, time.Second)

	versions, err := c.Versions(context.Background(), "Paper")
	if err != nil {
		t.Fatalf("Versions failed: %v", err)
	}
	want := []string{"1.20.1", "1.19.4", "1.8.8"}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, versions)
		}
	}

	if _, err := c.Builds(context.Background(), "Nope", "1.0"); !errors.Is(err, domain.ErrFetchFailed) {
		t.Errorf("Expected ErrFetchFailed for unknown core, got %v", err)
	}
}

func TestProgressOf(t *testing.T) {
	if pct, msg := progressOf(512, 1024); pct != 50 || msg != "Downloading... 50.0%" {
		t.Errorf("Unexpected known-length progress %v %q", pct, msg)
	}
	if pct, msg := progressOf(3*1024*1024, -1); pct != 0 || msg != "Downloading... 3.0 MB" {
		t.Errorf("Unexpected unknown-length progress %v %q", pct, msg)
	}
}

func TestStalledDownloadFails(t *testing.T) {
	mirror := newFakeMirror(t)
	w, _, dir := newTestWorker(t, mirror)
	w.idleTimeout = 200 * time.Millisecond

	if _, err := w.Enqueue(context.Background(), req("slow")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	st := waitStatus(t, w, "s1", domain.DownloadFailed)
	if !strings.Contains(st.Message, "stalled") {
		t.Errorf("Expected a stalled message, got %q", st.Message)
	}
	final := filepath.Join(dir, "Paper-1.20.1-slow.jar")
	if _, err := os.Stat(final + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be removed")
	}

	if _, err := w.Enqueue(context.Background(), req("196")); err != nil {
		t.Fatalf("Expected a retry to be accepted, got %v", err)
	}
	waitStatus(t, w, "s1", domain.DownloadCompleted)
}
