package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"ems3/internal/domain"
	"ems3/internal/logging"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

type Registry interface {
	GetServerByID(id string) (*domain.ServerConfig, error)
}

// Runtime is the part of the process supervisor scheduled jobs drive.
type Runtime interface {
	SendCommand(id, command string) error
	RestartServer(id string) error
}

type Backups interface {
	CreateBackup(ctx context.Context, serverID string) (domain.BackupRecord, error)
	Prune(serverID string, keep int) ([]string, error)
}

type entry struct {
	task     domain.ScheduledTask
	schedule cron.Schedule
	cronID   cron.EntryID
	gen      uint64
}

// Scheduler owns the scheduled tasks and their cron registrations. The task
// records are authoritative; cron entries are rebuilt from them.
type Scheduler struct {
	cron     *cron.Cron
	store    domain.TaskRepository
	registry Registry
	runtime  Runtime
	backups  Backups
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*entry
}

func New(store domain.TaskRepository, registry Registry, runtime Runtime, backups Backups, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cronLog := logging.NewCronLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		store:    store,
		registry: registry,
		runtime:  runtime,
		backups:  backups,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[string]*entry),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the trigger engine and waits up to timeout for running jobs.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		s.logger.Warn("scheduled jobs still running at shutdown")
	}
}

// Load registers every persisted task. Tasks whose trigger no longer parses
// are logged and skipped.
func (s *Scheduler) Load() error {
	tasks, err := s.store.ListTasks()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		if _, ok := s.tasks[task.ID]; ok {
			continue
		}
		sched, err := buildSchedule(task.Trigger, s.now(), true)
		if err != nil {
			s.logger.Warn("skipping stored task", "task", task.ID, "err", err)
			continue
		}
		e := &entry{task: task, schedule: sched}
		e.cronID = s.cron.Schedule(sched, s.job(task.ID, e.gen))
		s.tasks[task.ID] = e
	}
	s.logger.Info("scheduled tasks loaded", "count", len(s.tasks))
	return nil
}

func (s *Scheduler) validate(task domain.ScheduledTask) error {
	if _, err := domain.ParseTaskAction(string(task.Action)); err != nil {
		return err
	}
	if task.Action == domain.ActionCommand && strings.TrimSpace(task.Command) == "" {
		return errors.New("command tasks need a command")
	}
	if task.KeepBackups < 0 {
		return errors.New("keep backups cannot be negative")
	}
	srv, err := s.registry.GetServerByID(task.ServerID)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("%w: server %s", domain.ErrNotFound, task.ServerID)
	}
	return nil
}

// Create validates and registers a task, returning its new id.
func (s *Scheduler) Create(task domain.ScheduledTask) (string, error) {
	if err := s.validate(task); err != nil {
		return "", err
	}
	sched, err := buildSchedule(task.Trigger, s.now(), false)
	if err != nil {
		return "", err
	}

	task.ID = uuid.New().String()
	task.CreatedAt = s.now()
	task.LastRun = nil
	task.LastError = ""
	if strings.TrimSpace(task.Name) == "" {
		task.Name = fmt.Sprintf("%s %s", task.Action, task.Trigger)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveTask(&task); err != nil {
		return "", err
	}
	e := &entry{task: task, schedule: sched}
	e.cronID = s.cron.Schedule(sched, s.job(task.ID, e.gen))
	s.tasks[task.ID] = e

	s.logger.Info("task scheduled", "task", task.ID, "action", task.Action, "server", task.ServerID, "trigger", task.Trigger.String())
	return task.ID, nil
}

// Reschedule swaps the trigger of a task. The new cron entry is added before
// the old one is removed, and the generation bump makes a late fire of the old
// entry a no-op.
func (s *Scheduler) Reschedule(id string, trigger domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	sched, err := buildSchedule(trigger, s.now(), false)
	if err != nil {
		return err
	}

	updated := e.task
	updated.Trigger = trigger
	if err := s.store.UpdateTask(&updated); err != nil {
		return err
	}

	gen := e.gen + 1
	newID := s.cron.Schedule(sched, s.job(id, gen))
	oldID := e.cronID

	e.task = updated
	e.schedule = sched
	e.cronID = newID
	e.gen = gen
	s.cron.Remove(oldID)

	s.logger.Info("task rescheduled", "task", id, "trigger", trigger.String())
	return nil
}

func (s *Scheduler) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	updated := e.task
	updated.Name = name
	if err := s.store.UpdateTask(&updated); err != nil {
		return err
	}
	e.task = updated
	return nil
}

// Cancel removes a task. Unknown ids are not an error. A fire that already
// started is allowed to finish.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.tasks[id]; ok {
		s.cron.Remove(e.cronID)
		delete(s.tasks, id)
	}
	return s.store.DeleteTask(id)
}

// CancelForServer removes every task that targets the server.
func (s *Scheduler) CancelForServer(serverID string) error {
	s.mu.Lock()
	var ids []string
	for id, e := range s.tasks {
		if e.task.ServerID == serverID {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Cancel(id); err != nil {
			return err
		}
	}
	return nil
}

// List returns every task with its next fire time, oldest task first.
func (s *Scheduler) List() []domain.TaskView {
	s.mu.Lock()
	entries := make([]entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, *e)
	}
	s.mu.Unlock()

	now := s.now()
	views := make([]domain.TaskView, 0, len(entries))
	for _, e := range entries {
		view := domain.TaskView{ScheduledTask: e.task}

		next := s.cron.Entry(e.cronID).Next
		if next.IsZero() || next.Before(now) {
			next = e.schedule.Next(now)
		}
		if !next.IsZero() {
			view.NextRun = &next
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.Before(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
	return views
}

func (s *Scheduler) job(id string, gen uint64) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		e, ok := s.tasks[id]
		if !ok || e.gen != gen {
			s.mu.Unlock()
			return
		}
		task := e.task
		s.mu.Unlock()

		s.execute(task)
	})
}

// execute runs one fire. Errors are recorded on the task and logged; they
// never reach the cron loop.
func (s *Scheduler) execute(task domain.ScheduledTask) {
	started := s.now()
	err := s.dispatch(task)

	msg := ""
	if err != nil {
		msg = err.Error()
		s.logger.Warn("scheduled task failed", "task", task.ID, "action", task.Action, "server", task.ServerID, "err", err)
	} else {
		s.logger.Info("scheduled task ran", "task", task.ID, "action", task.Action, "server", task.ServerID)
	}

	s.mu.Lock()
	if e, ok := s.tasks[task.ID]; ok {
		e.task.LastRun = &started
		e.task.LastError = msg
	}
	s.mu.Unlock()

	if err := s.store.RecordTaskRun(task.ID, started, msg); err != nil {
		s.logger.Warn("could not record task run", "task", task.ID, "err", err)
	}
}

func (s *Scheduler) dispatch(task domain.ScheduledTask) error {
	switch task.Action {
	case domain.ActionCommand:
		return s.runtime.SendCommand(task.ServerID, task.Command)
	case domain.ActionRestart:
		return s.runtime.RestartServer(task.ServerID)
	case domain.ActionBackup:
		rec, err := s.backups.CreateBackup(s.ctx, task.ServerID)
		if err != nil {
			return err
		}
		s.logger.Info("scheduled backup written", "task", task.ID, "name", rec.Name, "size_mb", rec.SizeMB)
		if task.KeepBackups > 0 {
			if _, err := s.backups.Prune(task.ServerID, task.KeepBackups); err != nil {
				return fmt.Errorf("retention: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown task action %q", task.Action)
}
