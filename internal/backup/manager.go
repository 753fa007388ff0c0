package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ems3/internal/domain"
	"ems3/internal/server"

	"github.com/klauspost/compress/zip"
)

const stampLayout = "20060102_150405"

var backupName = regexp.MustCompile(`^backup_(\d{8}_\d{6})(?:_(\d+))?\.zip$`)

// Subtrees of a server directory that never go into an archive.
var excludedDirs = map[string]bool{
	"backups":  true,
	"logs":     true,
	stagingDir: true,
	retiredDir: true,
}

const (
	stagingDir = ".restore.tmp"
	retiredDir = ".restore.old"
)

type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
}

// Runtime runs fn only while the server is stopped and cannot be started.
type Runtime interface {
	HoldStopped(id string, fn func() error) error
}

type Manager struct {
	registry Registry
	runtime  Runtime
	logger   *slog.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewManager(registry Registry, runtime Runtime, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		runtime:  runtime,
		logger:   logger.With("component", "backup"),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(id string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) server(id string) (*domain.ServerConfig, error) {
	srv, err := m.registry.GetServerByID(id)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("%w: server %s", domain.ErrNotFound, id)
	}
	return srv, nil
}

// CreateBackup archives the server directory, minus backups/ and logs/, into
// <dir>/backups/backup_<timestamp>.zip.
func (m *Manager) CreateBackup(ctx context.Context, serverID string) (domain.BackupRecord, error) {
	srv, err := m.server(serverID)
	if err != nil {
		return domain.BackupRecord{}, err
	}

	unlock := m.lock(serverID)
	defer unlock()

	backupsDir := srv.BackupDir()
	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%w: could not create backups directory: %v", domain.ErrIO, err)
	}

	stamp := m.now()
	name := freeName(backupsDir, stamp)
	finalPath := filepath.Join(backupsDir, name)
	tempPath := finalPath + ".tmp"

	if err := writeArchive(ctx, srv.Dir, tempPath); err != nil {
		os.Remove(tempPath)
		return domain.BackupRecord{}, fmt.Errorf("%w: error creating backup: %v", domain.ErrIO, err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return domain.BackupRecord{}, fmt.Errorf("%w: error renaming temp file: %v", domain.ErrIO, err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return domain.BackupRecord{}, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	m.logger.Info("backup created", "server", serverID, "name", name, "bytes", info.Size())
	return domain.BackupRecord{
		Name:      name,
		SizeMB:    toMB(info.Size()),
		Timestamp: stamp.Truncate(time.Second),
	}, nil
}

// freeName picks backup_<stamp>.zip, adding _2, _3... when a backup was
// already taken in the same second.
func freeName(dir string, stamp time.Time) string {
	base := "backup_" + stamp.Format(stampLayout)
	name := base + ".zip"
	for n := 2; exists(filepath.Join(dir, name)) || exists(filepath.Join(dir, name+".tmp")); n++ {
		name = fmt.Sprintf("%s_%d.zip", base, n)
	}
	return name
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func writeArchive(ctx context.Context, root, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return err
	}

	zipWriter := zip.NewWriter(out)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if d.IsDir() && excludedDirs[relPath] {
			return filepath.SkipDir
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if d.IsDir() {
			header.Name += "/"
			_, err = zipWriter.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})

	zipErr := zipWriter.Close()
	fileErr := out.Close()

	if walkErr != nil {
		return walkErr
	}
	if zipErr != nil {
		return zipErr
	}
	return fileErr
}

type entry struct {
	record domain.BackupRecord
	seq    int
}

// ListBackups returns the archives of a server, newest first.
func (m *Manager) ListBackups(serverID string) ([]domain.BackupRecord, error) {
	srv, err := m.server(serverID)
	if err != nil {
		return nil, err
	}

	files, err := os.ReadDir(srv.BackupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.BackupRecord{}, nil
		}
		return nil, fmt.Errorf("%w: could not read backups directory: %v", domain.ErrIO, err)
	}

	var entries []entry
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		match := backupName.FindStringSubmatch(file.Name())
		if match == nil {
			continue
		}
		stamp, err := time.ParseInLocation(stampLayout, match[1], time.Local)
		if err != nil {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		seq := 1
		if match[2] != "" {
			seq, _ = strconv.Atoi(match[2])
		}
		entries = append(entries, entry{
			record: domain.BackupRecord{Name: file.Name(), SizeMB: toMB(info.Size()), Timestamp: stamp},
			seq:    seq,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].record.Timestamp.Equal(entries[j].record.Timestamp) {
			return entries[i].record.Timestamp.After(entries[j].record.Timestamp)
		}
		return entries[i].seq > entries[j].seq
	})

	backups := make([]domain.BackupRecord, 0, len(entries))
	for _, e := range entries {
		backups = append(backups, e.record)
	}
	return backups, nil
}

func (m *Manager) DeleteBackup(serverID, name string) error {
	srv, err := m.server(serverID)
	if err != nil {
		return err
	}
	path, err := archivePath(srv, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

// Prune deletes every backup beyond the newest keep; keep <= 0 disables it.
func (m *Manager) Prune(serverID string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	backups, err := m.ListBackups(serverID)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, b := range backups[min(keep, len(backups)):] {
		if err := m.DeleteBackup(serverID, b.Name); err != nil {
			return removed, err
		}
		removed = append(removed, b.Name)
	}
	if len(removed) > 0 {
		m.logger.Info("old backups pruned", "server", serverID, "removed", len(removed), "keep", keep)
	}
	return removed, nil
}

// RestoreBackup replaces the server's files with the archive contents. The
// archive is extracted into a staging directory first, so a bad archive
// leaves the server untouched. The backups directory itself is kept.
func (m *Manager) RestoreBackup(serverID, name string) error {
	srv, err := m.server(serverID)
	if err != nil {
		return err
	}
	archive, err := archivePath(srv, name)
	if err != nil {
		return err
	}

	unlock := m.lock(serverID)
	defer unlock()

	restore := func() error {
		return m.restore(srv, archive)
	}
	if m.runtime != nil {
		err = m.runtime.HoldStopped(serverID, restore)
	} else {
		err = restore()
	}
	if err != nil {
		return err
	}

	m.logger.Info("backup restored", "server", serverID, "name", name)
	return nil
}

func (m *Manager) restore(srv *domain.ServerConfig, archive string) error {
	staging := filepath.Join(srv.Dir, stagingDir)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	defer os.RemoveAll(staging)

	if err := unzip(archive, staging); err != nil {
		return fmt.Errorf("%w: failed to unzip backup: %v", domain.ErrIO, err)
	}
	if err := server.SetPort(staging, srv.Port); err != nil {
		return fmt.Errorf("%w: failed to update server properties: %v", domain.ErrIO, err)
	}

	if err := swapIn(srv.Dir, staging); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

// swapIn moves the current server files aside, moves the staged files into
// place and drops the old ones. Any failure puts the old files back.
func swapIn(dir, staging string) error {
	old := filepath.Join(dir, retiredDir)
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	if err := os.Mkdir(old, 0755); err != nil {
		return err
	}

	current, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var moved []string
	rollback := func() {
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if !keptOnRestore(e.Name()) {
				os.RemoveAll(filepath.Join(dir, e.Name()))
			}
		}
		for _, name := range moved {
			os.Rename(filepath.Join(old, name), filepath.Join(dir, name))
		}
		os.RemoveAll(old)
	}

	for _, e := range current {
		if keptOnRestore(e.Name()) {
			continue
		}
		if err := os.Rename(filepath.Join(dir, e.Name()), filepath.Join(old, e.Name())); err != nil {
			rollback()
			return err
		}
		moved = append(moved, e.Name())
	}

	staged, err := os.ReadDir(staging)
	if err != nil {
		rollback()
		return err
	}
	for _, e := range staged {
		if keptOnRestore(e.Name()) {
			continue
		}
		if err := os.Rename(filepath.Join(staging, e.Name()), filepath.Join(dir, e.Name())); err != nil {
			rollback()
			return err
		}
	}
	return os.RemoveAll(old)
}

func keptOnRestore(name string) bool {
	return name == "backups" || name == stagingDir || name == retiredDir
}

func archivePath(srv *domain.ServerConfig, name string) (string, error) {
	if !backupName.MatchString(name) {
		return "", fmt.Errorf("%w: invalid backup name %q", domain.ErrNotFound, name)
	}
	path := filepath.Join(srv.BackupDir(), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: backup %s", domain.ErrNotFound, name)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return path, nil
}

func unzip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	cleanDest := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range r.File {
		if !strings.HasPrefix(filepath.Join(dest, f.Name), cleanDest) {
			return fmt.Errorf("%s: illegal file path", f.Name)
		}
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}
		if err := extract(f, fpath); err != nil {
			return err
		}
	}
	return nil
}

func extract(f *zip.File, path string) error {
	outFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0200)
	if err != nil {
		return err
	}
	defer outFile.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(outFile, rc)
	return err
}

func toMB(size int64) float64 {
	return math.Round(float64(size)/1024/1024*100) / 100
}
