package jvm

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ems3/internal/domain"
	"ems3/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.GormStore) {
	t.Helper()
	store, err := storage.NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRegistry(store), store
}

func TestRegistryAddAndList(t *testing.T) {
	r, _ := newTestRegistry(t)
	path := fakeJava(t, `openjdk version "17.0.9" 2023-10-17`)

	install, err := r.Add(` "` + path + `" `)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if install.Path != path || install.Major != 17 {
		t.Errorf("Expected %s with major 17, got %+v", path, install)
	}
	if _, err := r.Add(path); !errors.Is(err, domain.ErrExists) {
		t.Errorf("Expected ErrExists for a duplicate, got %v", err)
	}

	r.detect = func(p string) (*Runtime, error) {
		if p == DefaultPath {
			return &Runtime{Path: p, Version: `openjdk version "21.0.2"`, Major: 21}, nil
		}
		return Detect(p)
	}
	auto, installs, err := r.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if auto == nil || auto.Major != 21 {
		t.Errorf("Expected java 21 on PATH, got %+v", auto)
	}
	if len(installs) != 1 || installs[0].Path != path {
		t.Errorf("Expected one registered path, got %+v", installs)
	}

	if _, err := r.Add("java"); err != nil {
		t.Errorf("Expected java on PATH to be accepted, got %v", err)
	}
	if _, installs, _ := r.List(); len(installs) != 1 {
		t.Errorf("Expected java on PATH not to be stored, got %+v", installs)
	}
}

func TestRegistryRejectsNonJava(t *testing.T) {
	r, _ := newTestRegistry(t)

	if _, err := r.Add(""); err == nil {
		t.Error("Expected empty path to be rejected")
	}
	if _, err := r.Add(t.TempDir()); err == nil {
		t.Error("Expected a directory to be rejected")
	}
	if _, err := r.Add(fakeJava(t, "hello")); err == nil {
		t.Error("Expected a binary without a version banner to be rejected")
	}
	if _, installs, _ := r.List(); len(installs) != 0 {
		t.Errorf("Expected nothing stored, got %+v", installs)
	}
}

func TestRegistryRemoveRefusesPathInUse(t *testing.T) {
	r, store := newTestRegistry(t)
	path := fakeJava(t, `openjdk version "17.0.9" 2023-10-17`)
	if _, err := r.Add(path); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	srv := &domain.ServerConfig{ID: "s1", Name: "Survival", Dir: t.TempDir(), JavaPath: path, Port: 25565, CreatedAt: time.Now()}
	if err := store.SaveServer(srv); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove(path); !errors.Is(err, domain.ErrInUse) {
		t.Fatalf("Expected ErrInUse, got %v", err)
	}

	if err := store.DeleteServer("s1"); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Remove(path); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
