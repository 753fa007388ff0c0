package jvm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ems3/internal/domain"
)

type Store interface {
	domain.JavaPathRepository
	ListServers() ([]domain.ServerConfig, error)
}

// Registry keeps the Java executables added by hand next to the one found
// on PATH.
type Registry struct {
	store  Store
	detect func(path string) (*Runtime, error)
	now    func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, detect: Detect, now: time.Now}
}

// List returns the runtime on PATH, nil when there is none, followed by the
// registered ones.
func (r *Registry) List() (*Runtime, []domain.JavaInstall, error) {
	installs, err := r.store.ListJavaPaths()
	if err != nil {
		return nil, nil, err
	}
	auto, err := r.detect(DefaultPath)
	if err != nil {
		auto = nil
	}
	return auto, installs, nil
}

// Add checks that path runs as Java and registers it. The plain "java"
// command is only checked, never stored.
func (r *Registry) Add(path string) (domain.JavaInstall, error) {
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	if path == "" {
		return domain.JavaInstall{}, fmt.Errorf("a java path is required")
	}

	if path == DefaultPath {
		rt, err := r.detect(DefaultPath)
		if err != nil {
			return domain.JavaInstall{}, fmt.Errorf("no java found on PATH: %w", err)
		}
		return domain.JavaInstall{Path: rt.Path, Version: rt.Version, Major: rt.Major}, nil
	}

	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return domain.JavaInstall{}, fmt.Errorf("%s is not a java executable", path)
	}
	rt, err := r.detect(path)
	if err != nil {
		return domain.JavaInstall{}, err
	}

	install := domain.JavaInstall{
		Path:    path,
		Version: rt.Version,
		Major:   rt.Major,
		AddedAt: r.now(),
	}
	if err := r.store.SaveJavaPath(install); err != nil {
		return domain.JavaInstall{}, err
	}
	return install, nil
}

// Remove unregisters path unless a server still launches with it.
func (r *Registry) Remove(path string) error {
	path = strings.TrimSpace(path)
	servers, err := r.store.ListServers()
	if err != nil {
		return err
	}
	for _, srv := range servers {
		if srv.JavaPath == path {
			return fmt.Errorf("%w: java path is used by server %s", domain.ErrInUse, srv.Name)
		}
	}
	return r.store.DeleteJavaPath(path)
}
