package logs

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ems3/internal/domain"
)

const (
	DefaultTailLines = 100
	playerScanLines  = 10
	tailWindow       = 256 * 1024
)

type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
}

// Runtime is the slice of the process supervisor the reader needs.
type Runtime interface {
	IsRunning(id string) bool
	SendCommand(id, command string) error
}

type Reader struct {
	registry   Registry
	runtime    Runtime
	translator *Translator
	listDelay  time.Duration
}

func NewReader(registry Registry, runtime Runtime, translator *Translator) *Reader {
	return &Reader{
		registry:   registry,
		runtime:    runtime,
		translator: translator,
		listDelay:  300 * time.Millisecond,
	}
}

func (r *Reader) logPath(id string) (string, error) {
	srv, err := r.registry.GetServerByID(id)
	if err != nil {
		return "", err
	}
	if srv == nil {
		return "", fmt.Errorf("%w: server %s", domain.ErrNotFound, id)
	}
	return srv.LogPath(), nil
}

// Tail returns up to maxLines of the newest non-empty log lines, translated.
// A missing log file yields no lines, and reaps the runtime if its process
// has already exited.
func (r *Reader) Tail(id string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultTailLines
	}
	path, err := r.logPath(id)
	if err != nil {
		return nil, err
	}

	lines, err := lastLines(path, maxLines)
	if err != nil {
		if os.IsNotExist(err) {
			r.runtime.IsRunning(id)
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: reading log: %v", domain.ErrIO, err)
	}

	for i, line := range lines {
		lines[i] = r.translator.Translate(line)
	}
	return lines, nil
}

// OnlinePlayers asks the server for its player list and scrapes the answer
// from the log. The reply may not be flushed yet, so an empty result is not
// proof that nobody is online.
func (r *Reader) OnlinePlayers(id string) ([]string, error) {
	path, err := r.logPath(id)
	if err != nil {
		return nil, err
	}
	if err := r.runtime.SendCommand(id, "list"); err != nil {
		return nil, err
	}
	time.Sleep(r.listDelay)

	lines, err := lastLines(path, playerScanLines)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: reading log: %v", domain.ErrIO, err)
	}
	return ParsePlayerList(lines), nil
}

// ParsePlayerList finds the newest "There are N ... players online: a, b"
// line and returns the names after its last colon.
func ParsePlayerList(lines []string) []string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "There are") || !strings.Contains(line, "players online") {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			return []string{}
		}
		players := []string{}
		for _, name := range strings.Split(line[idx+1:], ",") {
			if name = strings.TrimSpace(name); name != "" {
				players = append(players, name)
			}
		}
		return players
	}
	return []string{}
}

// lastLines reads only the end of the file. A partial first line inside the
// window is dropped; a partial last line is kept.
func lastLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	offset := info.Size() - tailWindow
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		if _, err := reader.ReadBytes('\n'); err != nil && err != io.EOF {
			return nil, err
		}
	}

	ring := make([]string, 0, n)
	for {
		raw, err := reader.ReadBytes('\n')
		if line := string(bytes.TrimSpace(raw)); line != "" {
			if len(ring) == n {
				ring = append(ring[:0], ring[1:]...)
			}
			ring = append(ring, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return ring, nil
}
