package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ems3/internal/domain"
)

type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
	UpdateServerCore(id, coreFile, coreType string) error
}

// Worker drains download requests one at a time, in the order they were
// accepted.
type Worker struct {
	catalog  *Catalog
	registry Registry
	client   *http.Client
	logger   *slog.Logger

	// idleTimeout aborts a transfer that delivers no bytes for this long.
	idleTimeout time.Duration

	mu    sync.RWMutex
	tasks map[string]*domain.DownloadTask

	qmu   sync.Mutex
	queue []domain.DownloadRequest
	wake  chan struct{}
}

func NewWorker(catalog *Catalog, registry Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		catalog:  catalog,
		registry: registry,
		client:   newDownloadClient(),
		logger:   logger.With("component", "downloads"),
		tasks:    make(map[string]*domain.DownloadTask),
		wake:     make(chan struct{}, 1),

		idleTimeout: 60 * time.Second,
	}
}

func newDownloadClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &http.Client{Transport: transport}
}

// Enqueue checks the request against the catalog before accepting it, so bad
// parameters fail here rather than in the background. It returns the file
// name the core will be installed as.
func (w *Worker) Enqueue(ctx context.Context, req domain.DownloadRequest) (string, error) {
	srv, err := w.registry.GetServerByID(req.ServerID)
	if err != nil {
		return "", err
	}
	if srv == nil {
		return "", fmt.Errorf("%w: server %s", domain.ErrNotFound, req.ServerID)
	}

	if w.busy(req.ServerID) {
		return "", domain.ErrAlreadyDownloading
	}

	info, err := w.catalog.Resolve(ctx, req.Core, req.MCVersion, req.BuildVersion)
	if err != nil {
		return "", err
	}
	if err := checkFilename(info.Filename); err != nil {
		return "", err
	}

	w.mu.Lock()
	if t, ok := w.tasks[req.ServerID]; ok && (t.Status == domain.DownloadDownloading || t.Status == domain.DownloadQueued) {
		w.mu.Unlock()
		return "", domain.ErrAlreadyDownloading
	}
	w.tasks[req.ServerID] = &domain.DownloadTask{
		DownloadRequest: req,
		Filename:        info.Filename,
		Status:          domain.DownloadQueued,
		Message:         "Queued",
		UpdatedAt:       time.Now(),
	}
	w.mu.Unlock()

	w.qmu.Lock()
	w.queue = append(w.queue, req)
	w.qmu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}

	w.logger.Info("download queued", "server", req.ServerID, "core", req.Core, "version", req.MCVersion, "build", req.BuildVersion)
	return info.Filename, nil
}

func (w *Worker) busy(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.tasks[id]
	return ok && (t.Status == domain.DownloadDownloading || t.Status == domain.DownloadQueued)
}

// StatusOf returns a copy of the server's download task, or a record with
// status "none" if it never had one.
func (w *Worker) StatusOf(id string) domain.DownloadTask {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if t, ok := w.tasks[id]; ok {
		return *t
	}
	return domain.DownloadTask{
		DownloadRequest: domain.DownloadRequest{ServerID: id},
		Status:          domain.DownloadNone,
	}
}

func (w *Worker) update(id string, fn func(t *domain.DownloadTask)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tasks[id]; ok {
		fn(t)
		t.UpdatedAt = time.Now()
	}
}

func (w *Worker) next() (domain.DownloadRequest, bool) {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	if len(w.queue) == 0 {
		return domain.DownloadRequest{}, false
	}
	req := w.queue[0]
	w.queue = w.queue[1:]
	return req, true
}

// Run processes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
				continue
			}
		}

		if err := w.process(ctx, req); err != nil {
			w.logger.Warn("download failed", "server", req.ServerID, "err", err)
			w.update(req.ServerID, func(t *domain.DownloadTask) {
				t.Status = domain.DownloadFailed
				t.Message = err.Error()
			})
			continue
		}
		w.logger.Info("download completed", "server", req.ServerID)
	}
}

func (w *Worker) process(ctx context.Context, req domain.DownloadRequest) error {
	w.update(req.ServerID, func(t *domain.DownloadTask) {
		t.Status = domain.DownloadDownloading
		t.Progress = 0
		t.Message = "Fetching download info..."
	})

	srv, err := w.registry.GetServerByID(req.ServerID)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("%w: server %s", domain.ErrNotFound, req.ServerID)
	}

	info, err := w.catalog.Resolve(ctx, req.Core, req.MCVersion, req.BuildVersion)
	if err != nil {
		return err
	}
	if err := checkFilename(info.Filename); err != nil {
		return err
	}

	finalPath := filepath.Join(srv.Dir, info.Filename)
	if err := w.download(ctx, req.ServerID, info, finalPath); err != nil {
		return err
	}

	coreType := strings.ToLower(req.Core)
	if err := w.registry.UpdateServerCore(req.ServerID, info.Filename, coreType); err != nil {
		return fmt.Errorf("saving core change: %w", err)
	}

	w.update(req.ServerID, func(t *domain.DownloadTask) {
		t.Filename = info.Filename
		t.Status = domain.DownloadCompleted
		t.Progress = 100
		t.Message = "Download completed"
	})
	return nil
}

// download streams into <final>.tmp and renames it over the final path, so the
// final file is either the old one or the complete new one.
func (w *Worker) download(ctx context.Context, id string, info domain.BuildInfo, finalPath string) (err error) {
	tmpPath := finalPath + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var stalled atomic.Bool
	idle := time.AfterFunc(w.idleTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download responded with status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	var sum hash.Hash
	var dst io.Writer = out
	if info.SHA1 != "" {
		sum = sha1.New()
		dst = io.MultiWriter(out, sum)
	}

	body := &ProgressReader{
		Reader: resp.Body,
		Total:  resp.ContentLength,
		OnProgress: func(current, total int64) {
			idle.Reset(w.idleTimeout)
			w.update(id, func(t *domain.DownloadTask) {
				t.Progress, t.Message = progressOf(current, total)
			})
		},
	}

	_, copyErr := io.Copy(dst, body)
	closeErr := out.Close()
	if copyErr != nil {
		if stalled.Load() {
			return fmt.Errorf("%w: transfer stalled for %s", domain.ErrFetchFailed, w.idleTimeout)
		}
		return fmt.Errorf("%w: transfer interrupted: %v", domain.ErrFetchFailed, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, closeErr)
	}
	if resp.ContentLength > 0 && body.Current != resp.ContentLength {
		return fmt.Errorf("%w: received %d of %d bytes", domain.ErrFetchFailed, body.Current, resp.ContentLength)
	}

	if sum != nil {
		if got := hex.EncodeToString(sum.Sum(nil)); !strings.EqualFold(got, info.SHA1) {
			return fmt.Errorf("%w: sha1 mismatch, expected %s got %s", domain.ErrFetchFailed, info.SHA1, got)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: installing core: %v", domain.ErrIO, err)
	}
	return nil
}

// progressOf stays at 0 when the length is unknown and reports megabytes
// received instead.
func progressOf(current, total int64) (float64, string) {
	if total <= 0 {
		return 0, fmt.Sprintf("Downloading... %.1f MB", float64(current)/1024/1024)
	}
	pct := float64(current) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, fmt.Sprintf("Downloading... %.1f%%", pct)
}

func checkFilename(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: unsafe core file name %q", domain.ErrFetchFailed, name)
	}
	return nil
}
