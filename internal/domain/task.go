package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TaskAction string

const (
	ActionCommand TaskAction = "command"
	ActionRestart TaskAction = "restart"
	ActionBackup  TaskAction = "backup"
)

func ParseTaskAction(s string) (TaskAction, error) {
	switch a := TaskAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCommand, ActionRestart, ActionBackup:
		return a, nil
	}
	return "", fmt.Errorf("unknown task action %q", s)
}

type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerOnce     TriggerKind = "once"
)

// Trigger is one of Cron, Interval or Once; only the field matching Kind is set.
type Trigger struct {
	Kind     TriggerKind   `json:"kind"`
	Cron     string        `json:"cron,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	At       time.Time     `json:"at,omitempty"`
}

func CronTrigger(expr string) Trigger {
	return Trigger{Kind: TriggerCron, Cron: expr}
}

func IntervalTrigger(seconds int) Trigger {
	return Trigger{Kind: TriggerInterval, Interval: time.Duration(seconds) * time.Second}
}

func OnceTrigger(at time.Time) Trigger {
	return Trigger{Kind: TriggerOnce, At: at}
}

// Value renders the trigger payload in its persisted form.
func (t Trigger) Value() string {
	switch t.Kind {
	case TriggerCron:
		return t.Cron
	case TriggerInterval:
		return strconv.FormatInt(int64(t.Interval/time.Second), 10)
	case TriggerOnce:
		return t.At.UTC().Format(time.RFC3339)
	}
	return ""
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s(%s)", t.Kind, t.Value())
}

// ParseTrigger rebuilds a trigger from its kind and persisted value. It only
// checks the shape of the value; schedule validity is checked by the scheduler.
func ParseTrigger(kind, value string) (Trigger, error) {
	value = strings.TrimSpace(value)
	switch TriggerKind(strings.ToLower(strings.TrimSpace(kind))) {
	case TriggerCron:
		return CronTrigger(value), nil
	case TriggerInterval:
		n, err := strconv.Atoi(value)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: interval %q is not a number of seconds", ErrInvalidTrigger, value)
		}
		return IntervalTrigger(n), nil
	case TriggerOnce:
		at, err := time.Parse(time.RFC3339, value)
		if err != nil {
			at, err = time.ParseInLocation("2006-01-02 15:04:05", value, time.Local)
		}
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: invalid date %q", ErrInvalidTrigger, value)
		}
		return OnceTrigger(at), nil
	}
	return Trigger{}, fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidTrigger, kind)
}

type ScheduledTask struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Action      TaskAction `json:"action"`
	ServerID    string     `json:"serverId"`
	Trigger     Trigger    `json:"trigger"`
	Command     string     `json:"command,omitempty"`
	KeepBackups int        `json:"keepBackups,omitempty"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TaskView is a task merged with its computed next fire time; NextRun is nil
// once the trigger is exhausted.
type TaskView struct {
	ScheduledTask
	NextRun *time.Time `json:"nextRun"`
}
