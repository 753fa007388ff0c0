package logs

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Follower streams lines appended to a log file. It survives the file being
// truncated or recreated, which happens on every server start.
type Follower struct {
	path       string
	translator *Translator
	emit       func(line string)
	logger     *slog.Logger
	poll       time.Duration

	offset  int64
	partial []byte
}

func NewFollower(path string, translator *Translator, emit func(line string), logger *slog.Logger) *Follower {
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{
		path:       path,
		translator: translator,
		emit:       emit,
		logger:     logger,
		poll:       time.Second,
	}
}

// Run blocks until ctx is done, then drains whatever is left in the file.
func (f *Follower) Run(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	f.readNew()
	for {
		select {
		case <-ctx.Done():
			f.readNew()
			f.flushPartial()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Has(fsnotify.Create) {
				f.reset()
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				f.readNew()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Debug("log watcher error", "path", f.path, "err", err)
		case <-ticker.C:
			f.readNew()
		}
	}
}

func (f *Follower) reset() {
	f.offset = 0
	f.partial = nil
}

func (f *Follower) readNew() {
	file, err := os.Open(f.path)
	if err != nil {
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return
	}
	if info.Size() < f.offset {
		f.reset()
	}
	if info.Size() == f.offset {
		return
	}

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, info.Size()-f.offset))
	if err != nil {
		f.logger.Debug("log read failed", "path", f.path, "err", err)
		return
	}
	f.offset += int64(len(data))

	data = append(f.partial, data...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		f.send(data[:idx])
		data = data[idx+1:]
	}
	f.partial = append([]byte(nil), data...)
}

func (f *Follower) flushPartial() {
	if len(f.partial) > 0 {
		f.send(f.partial)
		f.partial = nil
	}
}

func (f *Follower) send(raw []byte) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}
	f.emit(f.translator.Translate(string(bytes.TrimRight(raw, "\r"))))
}
