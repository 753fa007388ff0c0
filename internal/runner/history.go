package runner

import (
	"sync"
	"time"

	"ems3/internal/domain"
)

const historyLimit = 50

type commandHistory struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]domain.CommandEntry
}

func newCommandHistory(limit int) *commandHistory {
	return &commandHistory{limit: limit, entries: make(map[string][]domain.CommandEntry)}
}

func (h *commandHistory) add(id, command string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[id], domain.CommandEntry{Command: command, Timestamp: at})
	if len(list) > h.limit {
		list = append([]domain.CommandEntry(nil), list[len(list)-h.limit:]...)
	}
	h.entries[id] = list
}

func (h *commandHistory) list(id string) []domain.CommandEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.CommandEntry, len(h.entries[id]))
	copy(out, h.entries[id])
	return out
}
